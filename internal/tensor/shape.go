package tensor

import (
	"fmt"
	"slices"
	"sort"
)

// Shape lists the dimensions of a tensor in row-major order. An empty
// shape is a scalar.
type Shape []int

// NumElements returns the product of the dimensions; 1 for a scalar.
func (s Shape) NumElements() int {
	n := 1
	for _, dim := range s {
		n *= dim
	}
	return n
}

// Rank returns the number of dimensions.
func (s Shape) Rank() int {
	return len(s)
}

// Validate rejects zero and negative dimensions.
func (s Shape) Validate() error {
	for i, dim := range s {
		if dim <= 0 {
			return fmt.Errorf("invalid dimension at index %d: %d (must be > 0)", i, dim)
		}
	}
	return nil
}

// Equal reports whether both shapes have the same dimensions.
func (s Shape) Equal(other Shape) bool {
	return slices.Equal(s, other)
}

// Clone returns a copy of the shape.
func (s Shape) Clone() Shape {
	return append(Shape{}, s...)
}

// Strides returns the row-major element strides: stride[i] is the product
// of the dimensions after i.
func (s Shape) Strides() []int {
	strides := make([]int, len(s))
	step := 1
	for i := len(s) - 1; i >= 0; i-- {
		strides[i] = step
		step *= s[i]
	}
	return strides
}

// Collapse returns the shape with the given axes reduced to size 1, the
// keepdims result of a reduction over them.
func (s Shape) Collapse(axes ...int) (Shape, error) {
	out := s.Clone()
	for _, ax := range axes {
		if ax < 0 || ax >= len(s) {
			return nil, fmt.Errorf("axis %d out of range for shape %v", ax, s)
		}
		out[ax] = 1
	}
	return out, nil
}

// AxisVector returns the shape of the per-axis vector along axis: s[axis]
// there and 1 on every other axis, so it broadcasts back to s.
func (s Shape) AxisVector(axis int) Shape {
	out := make(Shape, len(s))
	for i := range out {
		out[i] = 1
	}
	out[axis] = s[axis]
	return out
}

// BroadcastsTo reports whether s expands to target under NumPy rules:
// aligned from the right, every dimension of s equals target's or is 1.
func (s Shape) BroadcastsTo(target Shape) bool {
	if len(s) > len(target) {
		return false
	}
	offset := len(target) - len(s)
	for i, dim := range s {
		if dim != 1 && dim != target[offset+i] {
			return false
		}
	}
	return true
}

// OtherAxes returns every axis of a rank-n tensor except keep, in order.
func OtherAxes(rank int, keep ...int) []int {
	sort.Ints(keep)
	axes := make([]int, 0, rank)
	for ax := 0; ax < rank; ax++ {
		if i := sort.SearchInts(keep, ax); i < len(keep) && keep[i] == ax {
			continue
		}
		axes = append(axes, ax)
	}
	return axes
}
