package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// AddNoise adds annealed Gaussian noise to the updates:
//
//	variance = eta / (t+1)^gamma
//	out = g + variance * N(0, 1)
//
// where t counts previous calls. The PRNG key lives in state and is split
// on every call, so a run replays exactly from the same seed.
// State: {count, rng_key}.
//
// Reference: "Adding Gradient Noise Improves Learning for Very Deep
// Networks" (Neelakantan et al., 2015)
func AddNoise(eta, gamma float64, seed uint64) GradientTransformation {
	const name = "add_noise"
	return GradientTransformation{
		Init: func(tree.Node) (tree.Node, error) {
			return newState(
				field(keyCount, tree.Int32(0)),
				field(keyRNGKey, tree.Key(seed)),
			), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			key := rd.rngKey(keyRNGKey)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			count = safeIncrement(count)
			variance := eta / math.Pow(float64(count), gamma)

			leaves := tree.Leaves(updates)
			keys := splitKey(key, len(leaves)+1)
			noisy := make([]*tensor.RawTensor, len(leaves))
			for i, g := range leaves {
				noisy[i] = tensor.AddScaled(g, variance, normalLike(g, keys[i+1], 1))
			}
			out, err := tree.Unflatten(updates, noisy)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(
				field(keyCount, tree.Int32(count)),
				field(keyRNGKey, tree.Key(keys[0])),
			), nil
		},
	}
}
