// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense arrays stored at the leaves of
// parameter trees.
//
// # Overview
//
// A RawTensor is a row-major byte buffer with a Shape and a runtime
// DataType. Gradient arithmetic runs in float64 and writes results back in
// the tensor's own dtype, so float32 parameters stay float32.
//
// Every operation allocates its result; tensors held by a tree are never
// modified in place.
//
// # Basic Usage
//
//	import "github.com/born-ml/optix/tensor"
//
//	x, _ := tensor.FromFloat64s([]float64{1, 2, 3, 4}, tensor.Shape{2, 2}, tensor.Float32)
//	y := tensor.Scale(x, 0.5)
//	n := tensor.Norm(y)
//
// # Broadcasting
//
// BroadcastTo and the axis reductions (SumAxes, MeanAxes, MaxAxes) follow
// NumPy rules and keep reduced dimensions with size 1.
package tensor
