package tensor

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"
)

// RawTensor is a dense, row-major array with a runtime dtype.
//
// A RawTensor is treated as immutable once it has been handed to a tree:
// every kernel in this package allocates a fresh result. The As* views are
// zero-copy and exist for constructors and serialization.
type RawTensor struct {
	data  []byte   // Backing buffer, len = NumElements * dtype.Size()
	shape Shape    // Tensor dimensions
	dtype DataType // Runtime type information
}

// NewRaw creates a new RawTensor with the given shape and type.
// Memory is allocated and zeroed.
func NewRaw(shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		data:  make([]byte, shape.NumElements()*dtype.Size()),
		shape: shape.Clone(),
		dtype: dtype,
	}, nil
}

// FromBytes wraps a little-endian byte buffer. The buffer is copied.
func FromBytes(data []byte, shape Shape, dtype DataType) (*RawTensor, error) {
	raw, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(data) != len(raw.data) {
		return nil, fmt.Errorf("buffer holds %d bytes, shape %v of %s needs %d", len(data), shape, dtype, len(raw.data))
	}
	copy(raw.data, data)
	return raw, nil
}

// FromFloat64s builds a tensor of the given dtype from float64 values,
// converting each value to dtype.
func FromFloat64s(values []float64, shape Shape, dtype DataType) (*RawTensor, error) {
	raw, err := NewRaw(shape, dtype)
	if err != nil {
		return nil, err
	}
	if len(values) != raw.NumElements() {
		return nil, fmt.Errorf("got %d values for shape %v", len(values), shape)
	}
	raw.store(values)
	return raw, nil
}

// FromBools builds a Bool tensor.
func FromBools(values []bool, shape Shape) (*RawTensor, error) {
	raw, err := NewRaw(shape, Bool)
	if err != nil {
		return nil, err
	}
	if len(values) != raw.NumElements() {
		return nil, fmt.Errorf("got %d values for shape %v", len(values), shape)
	}
	copy(raw.AsBool(), values)
	return raw, nil
}

// Zeros returns a zero-filled tensor. Panics on an invalid shape.
func Zeros(shape Shape, dtype DataType) *RawTensor {
	raw, err := NewRaw(shape, dtype)
	if err != nil {
		panic(err)
	}
	return raw
}

// Full returns a tensor with every element set to v. Panics on an invalid shape.
func Full(shape Shape, dtype DataType, v float64) *RawTensor {
	raw := Zeros(shape, dtype)
	values := make([]float64, raw.NumElements())
	for i := range values {
		values[i] = v
	}
	raw.store(values)
	return raw
}

// Scalar returns a 0-d tensor holding v.
func Scalar(v float64, dtype DataType) *RawTensor {
	return Full(Shape{}, dtype, v)
}

// ScalarBool returns a 0-d Bool tensor.
func ScalarBool(b bool) *RawTensor {
	raw := Zeros(Shape{}, Bool)
	raw.AsBool()[0] = b
	return raw
}

// ZerosLike returns zeros with the shape and dtype of r.
func ZerosLike(r *RawTensor) *RawTensor {
	return Zeros(r.shape, r.dtype)
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return len(r.data)
}

// Data returns the raw byte slice.
// WARNING: Direct access to underlying memory. Use with caution.
func (r *RawTensor) Data() []byte {
	return r.data
}

// AsFloat32 interprets the data as []float32.
// Panics if the tensor's dtype is not Float32.
func (r *RawTensor) AsFloat32() []float32 {
	if r.dtype != Float32 {
		panic(fmt.Sprintf("tensor dtype is %s, not float32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsFloat64 interprets the data as []float64.
// Panics if the tensor's dtype is not Float64.
func (r *RawTensor) AsFloat64() []float64 {
	if r.dtype != Float64 {
		panic(fmt.Sprintf("tensor dtype is %s, not float64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*float64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt32 interprets the data as []int32.
// Panics if the tensor's dtype is not Int32.
func (r *RawTensor) AsInt32() []int32 {
	if r.dtype != Int32 {
		panic(fmt.Sprintf("tensor dtype is %s, not int32", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int32)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsInt64 interprets the data as []int64.
// Panics if the tensor's dtype is not Int64.
func (r *RawTensor) AsInt64() []int64 {
	if r.dtype != Int64 {
		panic(fmt.Sprintf("tensor dtype is %s, not int64", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*int64)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// AsBool interprets the data as []bool.
// Panics if the tensor's dtype is not Bool.
func (r *RawTensor) AsBool() []bool {
	if r.dtype != Bool {
		panic(fmt.Sprintf("tensor dtype is %s, not bool", r.dtype))
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounds checked by NumElements()
	return unsafe.Slice((*bool)(unsafe.Pointer(&r.data[0])), r.NumElements())
}

// Float64s returns a copy of the elements converted to float64.
// Bool elements convert to 0 or 1.
func (r *RawTensor) Float64s() []float64 {
	out := make([]float64, r.NumElements())
	switch r.dtype {
	case Float32:
		for i, v := range r.AsFloat32() {
			out[i] = float64(v)
		}
	case Float64:
		copy(out, r.AsFloat64())
	case Int32:
		for i, v := range r.AsInt32() {
			out[i] = float64(v)
		}
	case Int64:
		for i, v := range r.AsInt64() {
			out[i] = float64(v)
		}
	case Uint8:
		for i, v := range r.data {
			out[i] = float64(v)
		}
	case Bool:
		for i, v := range r.AsBool() {
			if v {
				out[i] = 1
			}
		}
	}
	return out
}

// Item returns the single element of a one-element tensor as float64.
func (r *RawTensor) Item() float64 {
	if r.NumElements() != 1 {
		panic(fmt.Sprintf("Item called on tensor of shape %v", r.shape))
	}
	return r.Float64s()[0]
}

// Uint64 returns the single element of a one-element Int64 tensor reinterpreted
// as an unsigned key.
func (r *RawTensor) Uint64() uint64 {
	if r.dtype != Int64 || r.NumElements() != 1 {
		panic(fmt.Sprintf("Uint64 called on %s tensor of shape %v", r.dtype, r.shape))
	}
	return binary.LittleEndian.Uint64(r.data)
}

// ScalarKey stores an unsigned key in a 0-d Int64 tensor without loss.
func ScalarKey(k uint64) *RawTensor {
	raw := Zeros(Shape{}, Int64)
	binary.LittleEndian.PutUint64(raw.data, k)
	return raw
}

// Clone returns a deep copy.
func (r *RawTensor) Clone() *RawTensor {
	data := make([]byte, len(r.data))
	copy(data, r.data)
	return &RawTensor{data: data, shape: r.shape.Clone(), dtype: r.dtype}
}

// Reshape returns a copy with a new shape holding the same number of elements.
func (r *RawTensor) Reshape(shape Shape) (*RawTensor, error) {
	if shape.NumElements() != r.NumElements() {
		return nil, fmt.Errorf("cannot reshape %v to %v", r.shape, shape)
	}
	return FromBytes(r.data, shape, r.dtype)
}

// store writes float64 values into the buffer, converting to the tensor dtype.
func (r *RawTensor) store(values []float64) {
	switch r.dtype {
	case Float32:
		dst := r.AsFloat32()
		for i, v := range values {
			dst[i] = float32(v)
		}
	case Float64:
		copy(r.AsFloat64(), values)
	case Int32:
		dst := r.AsInt32()
		for i, v := range values {
			dst[i] = int32(v)
		}
	case Int64:
		dst := r.AsInt64()
		for i, v := range values {
			dst[i] = int64(v)
		}
	case Uint8:
		for i, v := range values {
			r.data[i] = uint8(v)
		}
	case Bool:
		dst := r.AsBool()
		for i, v := range values {
			dst[i] = v != 0 && !math.IsNaN(v)
		}
	}
}

// String renders shape, dtype and values; intended for test failure output.
func (r *RawTensor) String() string {
	return fmt.Sprintf("%s%v%v", r.dtype, []int(r.shape), r.Float64s())
}
