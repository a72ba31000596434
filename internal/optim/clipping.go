package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// Clip clamps every update element to [-maxDelta, maxDelta]. Stateless.
func Clip(maxDelta float64) GradientTransformation {
	return stateless(func(updates, _ tree.Node) (tree.Node, error) {
		return mapElems(updates, func(x float64) float64 {
			return math.Max(-maxDelta, math.Min(x, maxDelta))
		}), nil
	})
}

// ClipByGlobalNorm rescales all updates by maxNorm/norm when their joint L2
// norm exceeds maxNorm. Updates under the threshold pass unchanged. Stateless.
func ClipByGlobalNorm(maxNorm float64) GradientTransformation {
	return stateless(func(updates, _ tree.Node) (tree.Node, error) {
		norm := GlobalNorm(updates)
		if norm < maxNorm {
			return updates, nil
		}
		return scaleTree(updates, maxNorm/norm), nil
	})
}

// AdaptiveGradClip clips updates unit-wise relative to the size of the
// parameters they apply to. For each unit (see unitwiseNorm), updates whose
// norm reaches
//
//	max(||param||, eps) * clipping
//
// are rescaled down to that bound. Requires params.
//
// Reference: "High-Performance Large-Scale Image Recognition Without
// Normalization" (Brock et al., 2021)
func AdaptiveGradClip(clipping, eps float64) GradientTransformation {
	const name = "adaptive_grad_clip"
	return stateless(func(updates, params tree.Node) (tree.Node, error) {
		if err := requireParams(name, params); err != nil {
			return nil, err
		}
		if err := tree.CheckCompatible(updates, params); err != nil {
			return nil, errors.Wrap(err, name)
		}

		grads, ps := tree.Leaves(updates), tree.Leaves(params)
		out := make([]*tensor.RawTensor, len(grads))
		for i, g := range grads {
			gnorm, err := unitwiseNorm(g)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: leaf %d", name, i)
			}
			pnorm, err := unitwiseNorm(ps[i])
			if err != nil {
				return nil, errors.Wrapf(err, "%s: leaf %d", name, i)
			}
			out[i] = tensor.Map3(g, gnorm, pnorm, func(x, gn, pn float64) float64 {
				maxNorm := math.Max(pn, eps) * clipping
				if gn < maxNorm {
					return x
				}
				return x * maxNorm / math.Max(gn, 1e-6)
			})
		}
		return tree.Unflatten(updates, out)
	})
}

// unitwiseNorm returns, broadcast to the shape of x, the L2 norm of the unit
// each element belongs to:
//   - vectors and scalars (ignoring size-1 axes): the whole leaf
//   - rank 2 and 3: each slice along axis 0 (one output unit of a dense
//     layer)
//   - rank 4: axes 0-2 (one output channel of a convolution kernel)
func unitwiseNorm(x *tensor.RawTensor) (*tensor.RawTensor, error) {
	shape := x.Shape()
	squared := tensor.Map(x, func(v float64) float64 { return v * v })

	var axes []int
	nonUnit := 0
	for _, d := range shape {
		if d > 1 {
			nonUnit++
		}
	}
	switch {
	case nonUnit <= 1:
		axes = tensor.OtherAxes(shape.Rank())
	case shape.Rank() == 2 || shape.Rank() == 3:
		axes = []int{0}
	case shape.Rank() == 4:
		axes = []int{0, 1, 2}
	default:
		return nil, errors.Wrapf(ErrUnsupportedRank, "unit-wise norm of shape %v", shape)
	}

	if len(axes) == 0 {
		return tensor.Map(squared, math.Sqrt), nil
	}
	sum, err := tensor.SumAxes(squared, axes...)
	if err != nil {
		return nil, err
	}
	return tensor.BroadcastTo(tensor.Map(sum, math.Sqrt), shape)
}
