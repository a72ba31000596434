package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// mapElems applies f to every element of every leaf.
func mapElems(n tree.Node, f func(x float64) float64) tree.Node {
	return tree.Map(n, func(t *tensor.RawTensor) *tensor.RawTensor {
		return tensor.Map(t, f)
	})
}

// zipElems applies f elementwise over two trees. The result takes the
// structure, shapes and dtypes of a.
func zipElems(a, b tree.Node, f func(x, y float64) float64) (tree.Node, error) {
	return tree.Zip2(a, b, func(x, y *tensor.RawTensor) *tensor.RawTensor {
		return tensor.Map2(x, y, f)
	})
}

func zipElems3(a, b, c tree.Node, f func(x, y, z float64) float64) (tree.Node, error) {
	return tree.Zip3(a, b, c, func(x, y, z *tensor.RawTensor) *tensor.RawTensor {
		return tensor.Map3(x, y, z, f)
	})
}

// updateMoment folds updates into an exponential moving average of their
// order-th power: decay*m + (1-decay)*g^order. The result keeps the dtypes
// of moments.
func updateMoment(name string, updates, moments tree.Node, decay float64, order int) (tree.Node, error) {
	out, err := zipElems(moments, updates, func(m, g float64) float64 {
		if order == 2 {
			g *= g
		}
		return (1-decay)*g + decay*m
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s", name)
	}
	return out, nil
}

// biasCorrection divides an EMA by 1 - decay^count. count is at least 1 by
// the time it is used, so the denominator is never zero for decay < 1.
func biasCorrection(moment tree.Node, decay float64, count int32) tree.Node {
	bc := 1 - math.Pow(decay, float64(count))
	return mapElems(moment, func(m float64) float64 { return m / bc })
}

func rsqrt(x float64) float64 {
	return 1 / math.Sqrt(x)
}

func scaleTree(n tree.Node, s float64) tree.Node {
	return tree.Map(n, func(t *tensor.RawTensor) *tensor.RawTensor {
		return tensor.Scale(t, s)
	})
}

// safeNorm returns the L2 norm of t, floored at minNorm.
func safeNorm(t *tensor.RawTensor, minNorm float64) float64 {
	return math.Max(tensor.Norm(t), minNorm)
}

// GlobalNorm returns the L2 norm over every leaf of n jointly.
func GlobalNorm(n tree.Node) float64 {
	total := 0.0
	for _, l := range tree.Leaves(n) {
		total += tensor.SumSquares(l)
	}
	return math.Sqrt(total)
}
