// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tree provides the nested containers that hold parameters,
// gradients and optimizer state.
//
// A Node is one of:
//   - Leaf: a dense tensor
//   - Seq: an ordered list of nodes
//   - Record: string-keyed fields, kept sorted by key
//   - Empty: a node with no leaves
//
// A nil Node means "absent", for example the params argument of a
// stateless Update.
//
// Example:
//
//	params := tree.Dict(map[string]tree.Node{
//	    "w": tree.Floats([]float64{1, 2, 3, 4}, 2, 2),
//	    "b": tree.Float32s([]float64{0, 0}),
//	})
//	tree.Paths(params) // ["b", "w"]
package tree

import (
	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// Node types.
type (
	Node   = tree.Node
	Leaf   = tree.Leaf
	Seq    = tree.Seq
	Record = tree.Record
	Field  = tree.Field
	Empty  = tree.Empty
	Kind   = tree.Kind
)

// Node kinds.
const (
	KindEmpty  = tree.KindEmpty
	KindLeaf   = tree.KindLeaf
	KindSeq    = tree.KindSeq
	KindRecord = tree.KindRecord
)

// Sentinel errors.
var (
	ErrStructureMismatch = tree.ErrStructureMismatch
	ErrShapeMismatch     = tree.ErrShapeMismatch
	ErrInvalidMask       = tree.ErrInvalidMask
	ErrLeafCount         = tree.ErrLeafCount
)

// Construction

// NewRecord builds a record; fields are sorted by key.
func NewRecord(fields ...Field) Record { return tree.NewRecord(fields...) }

// Dict builds a record from a map.
func Dict(m map[string]Node) Record { return tree.Dict(m) }

// NewLeaf wraps a tensor.
func NewLeaf(t *tensor.RawTensor) Leaf { return tree.NewLeaf(t) }

// Floats builds a float64 leaf. No shape means a vector.
func Floats(values []float64, shape ...int) Leaf { return tree.Floats(values, shape...) }

// Float32s builds a float32 leaf.
func Float32s(values []float64, shape ...int) Leaf { return tree.Float32s(values, shape...) }

// Scalar builds a 0-d float64 leaf.
func Scalar(v float64) Leaf { return tree.Scalar(v) }

// Bool builds a 0-d bool leaf.
func Bool(b bool) Leaf { return tree.Bool(b) }

// Int32 builds a 0-d int32 leaf.
func Int32(v int32) Leaf { return tree.Int32(v) }

// Key builds a 0-d PRNG key leaf.
func Key(k uint64) Leaf { return tree.Key(k) }

// Traversal

// Leaves returns the leaf tensors in traversal order.
func Leaves(n Node) []*tensor.RawTensor { return tree.Leaves(n) }

// NumLeaves counts the leaves of n.
func NumLeaves(n Node) int { return tree.NumLeaves(n) }

// Paths returns the dotted path of every leaf in traversal order.
func Paths(n Node) []string { return tree.Paths(n) }

// Map applies f to every leaf.
func Map(n Node, f func(*tensor.RawTensor) *tensor.RawTensor) Node { return tree.Map(n, f) }

// Graft replaces every leaf with the subtree f returns.
func Graft(n Node, f func(*tensor.RawTensor) Node) Node { return tree.Graft(n, f) }

// Zip combines corresponding leaves of trees with the same structure.
func Zip(f func(xs ...*tensor.RawTensor) *tensor.RawTensor, first Node, rest ...Node) (Node, error) {
	return tree.Zip(f, first, rest...)
}

// Zip2 combines corresponding leaves of a and b.
func Zip2(a, b Node, f func(x, y *tensor.RawTensor) *tensor.RawTensor) (Node, error) {
	return tree.Zip2(a, b, f)
}

// Zip3 combines corresponding leaves of a, b and c.
func Zip3(a, b, c Node, f func(x, y, z *tensor.RawTensor) *tensor.RawTensor) (Node, error) {
	return tree.Zip3(a, b, c, f)
}

// Unflatten rebuilds a tree shaped like template from leaves.
func Unflatten(template Node, leaves []*tensor.RawTensor) (Node, error) {
	return tree.Unflatten(template, leaves)
}

// Comparison

// CheckCompatible returns nil when a and b have the same structure and leaf shapes.
func CheckCompatible(a, b Node) error { return tree.CheckCompatible(a, b) }

// SameStructure reports whether CheckCompatible(a, b) succeeds.
func SameStructure(a, b Node) bool { return tree.SameStructure(a, b) }

// AllFinite reports whether every float element is finite.
func AllFinite(n Node) bool { return tree.AllFinite(n) }

// AllClose reports elementwise closeness of two same-structure trees.
func AllClose(a, b Node, rtol, atol float64) bool { return tree.AllClose(a, b, rtol, atol) }

// Filling

// ZerosLike returns zeros shaped like n.
func ZerosLike(n Node) Node { return tree.ZerosLike(n) }

// FullLike returns a tree filled with v shaped like n.
func FullLike(n Node, v float64) Node { return tree.FullLike(n, v) }

// Masks

// Select keeps the leaves of n whose mask is true; the rest become Empty.
func Select(mask, n Node) (Node, error) { return tree.Select(mask, n) }

// Merge takes selected leaves where mask is true and original leaves elsewhere.
func Merge(mask, selected, original Node) (Node, error) {
	return tree.Merge(mask, selected, original)
}

// MaskFromPaths builds a bool mask over n from a path predicate.
func MaskFromPaths(n Node, keep func(path string) bool) Node { return tree.MaskFromPaths(n, keep) }
