// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/optix/internal/tensor"
)

// Type aliases for public API

// Shape represents tensor dimensions. An empty Shape is a scalar.
type Shape = tensor.Shape

// DataType represents runtime type information for tensors.
type DataType = tensor.DataType

// RawTensor is a dense row-major array with a runtime dtype.
type RawTensor = tensor.RawTensor

// Supported data types.
const (
	Float32 = tensor.Float32
	Float64 = tensor.Float64
	Int32   = tensor.Int32
	Int64   = tensor.Int64
	Uint8   = tensor.Uint8
	Bool    = tensor.Bool
)

// ParseDataType is the inverse of DataType.String.
func ParseDataType(s string) (DataType, bool) { return tensor.ParseDataType(s) }

// Creation

// NewRaw allocates a zeroed tensor.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) { return tensor.NewRaw(shape, dtype) }

// FromBytes copies a little-endian buffer into a new tensor.
func FromBytes(data []byte, shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.FromBytes(data, shape, dtype)
}

// FromFloat64s builds a tensor of dtype from float64 values.
func FromFloat64s(values []float64, shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.FromFloat64s(values, shape, dtype)
}

// FromBools builds a bool tensor.
func FromBools(values []bool, shape Shape) (*RawTensor, error) {
	return tensor.FromBools(values, shape)
}

// Zeros returns a zero tensor.
func Zeros(shape Shape, dtype DataType) *RawTensor { return tensor.Zeros(shape, dtype) }

// Full returns a tensor filled with v.
func Full(shape Shape, dtype DataType, v float64) *RawTensor { return tensor.Full(shape, dtype, v) }

// Scalar returns a 0-d tensor.
func Scalar(v float64, dtype DataType) *RawTensor { return tensor.Scalar(v, dtype) }

// Elementwise

// Map applies f elementwise.
func Map(a *RawTensor, f func(x float64) float64) *RawTensor { return tensor.Map(a, f) }

// Map2 applies f to corresponding elements of a and b.
func Map2(a, b *RawTensor, f func(x, y float64) float64) *RawTensor { return tensor.Map2(a, b, f) }

// Scale returns a*s.
func Scale(a *RawTensor, s float64) *RawTensor { return tensor.Scale(a, s) }

// AddScaled returns a + s*b.
func AddScaled(a *RawTensor, s float64, b *RawTensor) *RawTensor { return tensor.AddScaled(a, s, b) }

// Cast converts a to dtype.
func Cast(a *RawTensor, dtype DataType) *RawTensor { return tensor.Cast(a, dtype) }

// Reductions

// Sum returns the sum of all elements.
func Sum(a *RawTensor) float64 { return tensor.Sum(a) }

// Mean returns the mean of all elements.
func Mean(a *RawTensor) float64 { return tensor.Mean(a) }

// Norm returns the L2 norm of all elements.
func Norm(a *RawTensor) float64 { return tensor.Norm(a) }

// SumAxes sums over axes, keeping them with size 1.
func SumAxes(a *RawTensor, axes ...int) (*RawTensor, error) { return tensor.SumAxes(a, axes...) }

// MeanAxes averages over axes, keeping them with size 1.
func MeanAxes(a *RawTensor, axes ...int) (*RawTensor, error) { return tensor.MeanAxes(a, axes...) }

// MaxAxes takes the maximum over axes, keeping them with size 1.
func MaxAxes(a *RawTensor, axes ...int) (*RawTensor, error) { return tensor.MaxAxes(a, axes...) }

// BroadcastTo expands a to shape.
func BroadcastTo(a *RawTensor, shape Shape) (*RawTensor, error) { return tensor.BroadcastTo(a, shape) }

// AllFinite reports whether every float element is finite.
func AllFinite(a *RawTensor) bool { return tensor.AllFinite(a) }

// AllClose reports |a-b| <= atol + rtol*|b| elementwise.
func AllClose(a, b *RawTensor, rtol, atol float64) bool { return tensor.AllClose(a, b, rtol, atol) }
