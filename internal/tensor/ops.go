package tensor

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/optix/internal/parallel"
)

// kernelConfig controls how elementwise kernels split large leaves.
var kernelConfig = parallel.DefaultConfig()

// Map applies f to every element of a. The result keeps a's shape and dtype.
//
// Example:
//
//	doubled := tensor.Map(t, func(x float64) float64 { return 2 * x })
func Map(a *RawTensor, f func(x float64) float64) *RawTensor {
	src := a.Float64s()
	out := make([]float64, len(src))
	parallel.For(len(src), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = f(src[i])
		}
	}, kernelConfig)
	return build(a, out)
}

// Map2 applies f pairwise. The result takes the shape and dtype of a.
// Panics if the shapes differ; callers validate shapes at the tree level.
func Map2(a, b *RawTensor, f func(x, y float64) float64) *RawTensor {
	mustSameShape(a, b)
	xs, ys := a.Float64s(), b.Float64s()
	out := make([]float64, len(xs))
	parallel.For(len(xs), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = f(xs[i], ys[i])
		}
	}, kernelConfig)
	return build(a, out)
}

// Map3 applies f over three tensors of the same shape.
func Map3(a, b, c *RawTensor, f func(x, y, z float64) float64) *RawTensor {
	mustSameShape(a, b)
	mustSameShape(a, c)
	xs, ys, zs := a.Float64s(), b.Float64s(), c.Float64s()
	out := make([]float64, len(xs))
	parallel.For(len(xs), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			out[i] = f(xs[i], ys[i], zs[i])
		}
	}, kernelConfig)
	return build(a, out)
}

// Scale multiplies every element by s.
func Scale(a *RawTensor, s float64) *RawTensor {
	values := a.Float64s()
	floats.Scale(s, values)
	return build(a, values)
}

// AddScaled returns a + s*b.
func AddScaled(a *RawTensor, s float64, b *RawTensor) *RawTensor {
	mustSameShape(a, b)
	values := a.Float64s()
	floats.AddScaled(values, s, b.Float64s())
	return build(a, values)
}

// Cast converts a to another dtype.
func Cast(a *RawTensor, dtype DataType) *RawTensor {
	if a.dtype == dtype {
		return a.Clone()
	}
	out := Zeros(a.shape, dtype)
	out.store(a.Float64s())
	return out
}

// SumSquares returns the sum of squared elements.
func SumSquares(a *RawTensor) float64 {
	v := a.Float64s()
	return floats.Dot(v, v)
}

// Norm returns the L2 norm of all elements.
func Norm(a *RawTensor) float64 {
	return math.Sqrt(SumSquares(a))
}

// Sum returns the sum of all elements.
func Sum(a *RawTensor) float64 {
	return floats.Sum(a.Float64s())
}

// Mean returns the arithmetic mean of all elements.
func Mean(a *RawTensor) float64 {
	return Sum(a) / float64(a.NumElements())
}

// Max returns the largest element.
func Max(a *RawTensor) float64 {
	return floats.Max(a.Float64s())
}

// HasNaN reports whether any element is NaN.
func HasNaN(a *RawTensor) bool {
	if !a.dtype.IsFloat() {
		return false
	}
	return floats.HasNaN(a.Float64s())
}

// AllFinite reports whether every element is finite (no NaN, no ±Inf).
func AllFinite(a *RawTensor) bool {
	if !a.dtype.IsFloat() {
		return true
	}
	for _, v := range a.Float64s() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// AllClose reports whether a and b have the same shape and
// |a-b| <= atol + rtol*|b| elementwise.
func AllClose(a, b *RawTensor, rtol, atol float64) bool {
	if !a.shape.Equal(b.shape) {
		return false
	}
	xs, ys := a.Float64s(), b.Float64s()
	for i := range xs {
		if math.Abs(xs[i]-ys[i]) > atol+rtol*math.Abs(ys[i]) {
			return false
		}
	}
	return true
}

// build materializes float64 values with the shape and dtype of like.
func build(like *RawTensor, values []float64) *RawTensor {
	out := Zeros(like.shape, like.dtype)
	out.store(values)
	return out
}

func mustSameShape(a, b *RawTensor) {
	if !a.shape.Equal(b.shape) {
		panic(fmt.Sprintf("shape mismatch: %v vs %v", a.shape, b.shape))
	}
}
