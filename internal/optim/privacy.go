package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// DifferentiallyPrivateAggregate aggregates per-example gradients the way
// DP-SGD does. Every leaf of updates carries the batch on axis 0. For each
// example the gradient is clipped to global L2 norm l2NormClip, the clipped
// gradients are summed, Gaussian noise with standard deviation
// l2NormClip*noiseMultiplier is added, and the sum is divided by the batch
// size.
//
// Unlike other transformations the output drops the batch axis, so updates
// come out shaped like the parameters. Leaves without a shared leading batch
// dimension fail with ErrBatchDimension. State: {rng_key}.
//
// Reference: "Deep Learning with Differential Privacy" (Abadi et al., 2016)
func DifferentiallyPrivateAggregate(l2NormClip, noiseMultiplier float64, seed uint64) GradientTransformation {
	const name = "differentially_private_aggregate"
	noiseStd := l2NormClip * noiseMultiplier
	return GradientTransformation{
		Init: func(tree.Node) (tree.Node, error) {
			return newState(field(keyRNGKey, tree.Key(seed))), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			key := rd.rngKey(keyRNGKey)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			leaves := tree.Leaves(updates)
			if len(leaves) == 0 {
				return updates, newState(field(keyRNGKey, tree.Key(key))), nil
			}
			batch, err := batchSize(leaves)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}

			// Global norm of each example across all leaves.
			norms := make([]float64, batch)
			for _, g := range leaves {
				values := g.Float64s()
				per := len(values) / batch
				for b := 0; b < batch; b++ {
					for _, v := range values[b*per : (b+1)*per] {
						norms[b] += v * v
					}
				}
			}
			divisors := make([]float64, batch)
			for b, sq := range norms {
				divisors[b] = math.Max(math.Sqrt(sq)/l2NormClip, 1)
			}

			keys := splitKey(key, len(leaves)+1)
			out := make([]*tensor.RawTensor, len(leaves))
			for i, g := range leaves {
				values := g.Float64s()
				per := len(values) / batch
				sum := make([]float64, per)
				for b := 0; b < batch; b++ {
					for j, v := range values[b*per : (b+1)*per] {
						sum[j] += v / divisors[b]
					}
				}
				clipped, err := tensor.FromFloat64s(sum, g.Shape()[1:], g.DType())
				if err != nil {
					return nil, nil, errors.Wrap(err, name)
				}
				noisy := tensor.AddScaled(clipped, noiseStd, normalLike(clipped, keys[i+1], 1))
				out[i] = tensor.Scale(noisy, 1/float64(batch))
			}

			aggregated, err := tree.Unflatten(updates, out)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return aggregated, newState(field(keyRNGKey, tree.Key(keys[0]))), nil
		},
	}
}

func batchSize(leaves []*tensor.RawTensor) (int, error) {
	batch := -1
	for i, g := range leaves {
		shape := g.Shape()
		if shape.Rank() == 0 {
			return 0, errors.Wrapf(ErrBatchDimension, "leaf %d is a scalar", i)
		}
		if batch == -1 {
			batch = shape[0]
		}
		if shape[0] != batch {
			return 0, errors.Wrapf(ErrBatchDimension, "leaf %d has batch %d, want %d", i, shape[0], batch)
		}
	}
	return batch, nil
}
