package tensor

import (
	"fmt"
	"math"
)

// reduction maps every flat index of a tensor to its slot in the tensor
// obtained by collapsing the reduced axes to size 1.
type reduction struct {
	shape Shape // keepdims shape
	slot  []int // flat index -> flat index in shape
}

func newReduction(shape Shape, axes []int) (reduction, error) {
	kept, err := shape.Collapse(axes...)
	if err != nil {
		return reduction{}, err
	}
	reduced := make([]bool, len(shape))
	for _, ax := range axes {
		reduced[ax] = true
	}

	strides := shape.Strides()
	keptStrides := kept.Strides()
	n := shape.NumElements()
	slot := make([]int, n)
	for i := 0; i < n; i++ {
		rem, j := i, 0
		for ax := range shape {
			coord := rem / strides[ax]
			rem %= strides[ax]
			if !reduced[ax] {
				j += coord * keptStrides[ax]
			}
		}
		slot[i] = j
	}
	return reduction{shape: kept, slot: slot}, nil
}

// SumAxes sums over the given axes, keeping them as size-1 dimensions.
func SumAxes(a *RawTensor, axes ...int) (*RawTensor, error) {
	red, err := newReduction(a.shape, axes)
	if err != nil {
		return nil, err
	}
	out := make([]float64, red.shape.NumElements())
	for i, v := range a.Float64s() {
		out[red.slot[i]] += v
	}
	return FromFloat64s(out, red.shape, a.dtype)
}

// MeanAxes averages over the given axes, keeping them as size-1 dimensions.
func MeanAxes(a *RawTensor, axes ...int) (*RawTensor, error) {
	sum, err := SumAxes(a, axes...)
	if err != nil {
		return nil, err
	}
	count := a.NumElements() / sum.NumElements()
	return Scale(sum, 1/float64(count)), nil
}

// MaxAxes takes the maximum over the given axes, keeping them as size-1 dimensions.
func MaxAxes(a *RawTensor, axes ...int) (*RawTensor, error) {
	red, err := newReduction(a.shape, axes)
	if err != nil {
		return nil, err
	}
	out := make([]float64, red.shape.NumElements())
	for i := range out {
		out[i] = math.Inf(-1)
	}
	for i, v := range a.Float64s() {
		if j := red.slot[i]; v > out[j] {
			out[j] = v
		}
	}
	return FromFloat64s(out, red.shape, a.dtype)
}

// BroadcastTo expands a to shape following NumPy broadcasting rules.
func BroadcastTo(a *RawTensor, shape Shape) (*RawTensor, error) {
	if !a.shape.BroadcastsTo(shape) {
		return nil, fmt.Errorf("cannot broadcast %v to %v", a.shape, shape)
	}
	if a.shape.Equal(shape) {
		return a.Clone(), nil
	}

	// Left-pad the source shape with ones so ranks line up.
	src := make(Shape, len(shape))
	offset := len(shape) - len(a.shape)
	for i := range src {
		src[i] = 1
		if i >= offset {
			src[i] = a.shape[i-offset]
		}
	}
	srcStrides := src.Strides()
	strides := shape.Strides()

	values := a.Float64s()
	n := shape.NumElements()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		rem, j := i, 0
		for ax := range shape {
			coord := rem / strides[ax]
			rem %= strides[ax]
			if src[ax] != 1 {
				j += coord * srcStrides[ax]
			}
		}
		out[i] = values[j]
	}
	return FromFloat64s(out, shape, a.dtype)
}
