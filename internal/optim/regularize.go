package optim

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// AddDecayedWeights adds decay * params to the updates (decoupled weight
// decay). With a non-nil mask only the selected leaves are decayed; the rest
// pass through unchanged. Requires params.
//
// Example:
//
//	// Decay weights but not biases.
//	mask := optim.MaskFromPaths(func(path string) bool {
//	    return !strings.HasSuffix(path, "bias")
//	})
//	tx := optim.AddDecayedWeights(1e-4, mask)
func AddDecayedWeights(decay float64, mask MaskFn) GradientTransformation {
	const name = "add_decayed_weights"
	tx := stateless(func(updates, params tree.Node) (tree.Node, error) {
		if err := requireParams(name, params); err != nil {
			return nil, err
		}
		out, err := zipElems(updates, params, func(g, p float64) float64 { return g + decay*p })
		return out, errors.Wrap(err, name)
	})
	if mask != nil {
		return Masked(tx, mask)
	}
	return tx
}

// AdditiveWeightDecay is AddDecayedWeights without a mask.
//
// Deprecated: use AddDecayedWeights.
func AdditiveWeightDecay(decay float64) GradientTransformation {
	return AddDecayedWeights(decay, nil)
}

// Centralize subtracts from each leaf of rank 2 or more its mean over every
// axis except the first (gradient centralization). Leaves of lower rank pass
// unchanged. Stateless.
//
// Reference: "Gradient Centralization" (Yong et al., 2020)
func Centralize() GradientTransformation {
	return stateless(func(updates, _ tree.Node) (tree.Node, error) {
		return tree.Map(updates, centralizeLeaf), nil
	})
}

// centralizeLeaf views x as a matrix with one row per index of axis 0 and
// removes each row's mean.
func centralizeLeaf(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if shape.Rank() < 2 {
		return x
	}
	rows := shape[0]
	cols := shape.NumElements() / rows
	m := mat.NewDense(rows, cols, x.Float64s())
	for i := 0; i < rows; i++ {
		row := m.RawRowView(i)
		floats.AddConst(-floats.Sum(row)/float64(cols), row)
	}
	out, err := tensor.FromFloat64s(m.RawMatrix().Data, shape, x.DType())
	if err != nil {
		panic(err)
	}
	return out
}
