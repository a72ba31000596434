package tree

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
)

// Leaves returns every leaf tensor in traversal order.
func Leaves(n Node) []*tensor.RawTensor {
	var out []*tensor.RawTensor
	walk(n, nil, func(_ []string, l Leaf) {
		out = append(out, l.RawTensor)
	})
	return out
}

// NumLeaves returns the number of leaves.
func NumLeaves(n Node) int {
	count := 0
	walk(n, nil, func(_ []string, _ Leaf) { count++ })
	return count
}

// Paths returns the dotted path of every leaf in traversal order, e.g. "1.a".
// A tree that is a single leaf has the path "".
func Paths(n Node) []string {
	var out []string
	walk(n, nil, func(path []string, _ Leaf) {
		out = append(out, strings.Join(path, "."))
	})
	return out
}

func walk(n Node, path []string, visit func([]string, Leaf)) {
	switch v := n.(type) {
	case Leaf:
		visit(path, v)
	case Seq:
		for i, child := range v {
			walk(child, appendPath(path, strconv.Itoa(i)), visit)
		}
	case Record:
		for _, f := range v.fields {
			walk(f.Value, appendPath(path, f.Key), visit)
		}
	}
}

func appendPath(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

// Map applies f to every leaf and returns a tree of the same structure.
// A nil tree maps to nil.
func Map(n Node, f func(*tensor.RawTensor) *tensor.RawTensor) Node {
	switch v := n.(type) {
	case Leaf:
		return NewLeaf(f(v.RawTensor))
	case Seq:
		out := make(Seq, len(v))
		for i, child := range v {
			out[i] = Map(child, f)
		}
		return out
	case Record:
		fields := make([]Field, len(v.fields))
		for i, fld := range v.fields {
			fields[i] = Field{Key: fld.Key, Value: Map(fld.Value, f)}
		}
		return Record{fields: fields}
	case Empty:
		return Empty{}
	default:
		return nil
	}
}

// Graft replaces every leaf of n with the subtree f builds from it, in
// traversal order.
func Graft(n Node, f func(*tensor.RawTensor) Node) Node {
	switch v := n.(type) {
	case Leaf:
		return f(v.RawTensor)
	case Seq:
		out := make(Seq, len(v))
		for i, child := range v {
			out[i] = Graft(child, f)
		}
		return out
	case Record:
		fields := make([]Field, len(v.fields))
		for i, fld := range v.fields {
			fields[i] = Field{Key: fld.Key, Value: Graft(fld.Value, f)}
		}
		return Record{fields: fields}
	case Empty:
		return Empty{}
	default:
		return nil
	}
}

// Zip applies f leaf-wise over trees of identical structure and leaf shapes.
// The result has the structure of first.
func Zip(f func(xs ...*tensor.RawTensor) *tensor.RawTensor, first Node, rest ...Node) (Node, error) {
	trees := append([]Node{first}, rest...)
	return zip(trees, nil, f)
}

// Zip2 is Zip for two trees.
func Zip2(a, b Node, f func(x, y *tensor.RawTensor) *tensor.RawTensor) (Node, error) {
	return Zip(func(xs ...*tensor.RawTensor) *tensor.RawTensor { return f(xs[0], xs[1]) }, a, b)
}

// Zip3 is Zip for three trees.
func Zip3(a, b, c Node, f func(x, y, z *tensor.RawTensor) *tensor.RawTensor) (Node, error) {
	return Zip(func(xs ...*tensor.RawTensor) *tensor.RawTensor { return f(xs[0], xs[1], xs[2]) }, a, b, c)
}

func zip(trees []Node, path []string, f func(xs ...*tensor.RawTensor) *tensor.RawTensor) (Node, error) {
	head := trees[0]
	if head == nil {
		return nil, errors.Wrapf(ErrStructureMismatch, "at %q: absent tree", joinPath(path))
	}
	for _, t := range trees[1:] {
		if t == nil || t.Kind() != head.Kind() {
			return nil, errors.Wrapf(ErrStructureMismatch, "at %q: %s vs %s", joinPath(path), head.Kind(), kindOf(t))
		}
	}

	switch v := head.(type) {
	case Leaf:
		xs := make([]*tensor.RawTensor, len(trees))
		for i, t := range trees {
			xs[i] = t.(Leaf).RawTensor
			if !xs[i].Shape().Equal(v.Shape()) {
				return nil, errors.Wrapf(ErrShapeMismatch, "at %q: %v vs %v", joinPath(path), v.Shape(), xs[i].Shape())
			}
		}
		return NewLeaf(f(xs...)), nil
	case Seq:
		out := make(Seq, len(v))
		for i := range v {
			children := make([]Node, len(trees))
			for j, t := range trees {
				s := t.(Seq)
				if len(s) != len(v) {
					return nil, errors.Wrapf(ErrStructureMismatch, "at %q: sequence length %d vs %d", joinPath(path), len(v), len(s))
				}
				children[j] = s[i]
			}
			child, err := zip(children, appendPath(path, strconv.Itoa(i)), f)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	case Record:
		fields := make([]Field, len(v.fields))
		for i, fld := range v.fields {
			children := make([]Node, len(trees))
			for j, t := range trees {
				r := t.(Record)
				if r.Len() != v.Len() || r.fields[i].Key != fld.Key {
					return nil, errors.Wrapf(ErrStructureMismatch, "at %q: record keys %v vs %v", joinPath(path), v.Keys(), r.Keys())
				}
				children[j] = r.fields[i].Value
			}
			child, err := zip(children, appendPath(path, fld.Key), f)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Key: fld.Key, Value: child}
		}
		return Record{fields: fields}, nil
	default:
		return Empty{}, nil
	}
}

func kindOf(n Node) string {
	if n == nil {
		return "absent"
	}
	return n.Kind().String()
}

func joinPath(path []string) string {
	return strings.Join(path, ".")
}

// CheckCompatible returns nil when a and b have the same structure and leaf shapes.
func CheckCompatible(a, b Node) error {
	_, err := Zip2(a, b, func(x, _ *tensor.RawTensor) *tensor.RawTensor { return x })
	return err
}

// SameStructure reports whether a and b have the same structure and leaf
// shapes. Leaf dtypes and values are ignored.
func SameStructure(a, b Node) bool {
	return CheckCompatible(a, b) == nil
}

// Unflatten rebuilds a tree with the structure of template from leaves given
// in traversal order.
func Unflatten(template Node, leaves []*tensor.RawTensor) (Node, error) {
	i := 0
	var build func(n Node) Node
	build = func(n Node) Node {
		switch v := n.(type) {
		case Leaf:
			if i >= len(leaves) {
				i++
				return v
			}
			leaf := NewLeaf(leaves[i])
			i++
			return leaf
		case Seq:
			out := make(Seq, len(v))
			for j, child := range v {
				out[j] = build(child)
			}
			return out
		case Record:
			fields := make([]Field, len(v.fields))
			for j, f := range v.fields {
				fields[j] = Field{Key: f.Key, Value: build(f.Value)}
			}
			return Record{fields: fields}
		case Empty:
			return Empty{}
		default:
			return nil
		}
	}
	out := build(template)
	if i != len(leaves) {
		return nil, errors.Wrapf(ErrLeafCount, "template has %d leaves, got %d", i, len(leaves))
	}
	return out, nil
}

// ZerosLike returns a tree of zeros with the structure, shapes and dtypes of n.
func ZerosLike(n Node) Node {
	return Map(n, tensor.ZerosLike)
}

// FullLike returns a tree filled with v with the structure, shapes and dtypes of n.
func FullLike(n Node, v float64) Node {
	return Map(n, func(t *tensor.RawTensor) *tensor.RawTensor {
		return tensor.Full(t.Shape(), t.DType(), v)
	})
}

// AllFinite reports whether every float leaf element is finite.
func AllFinite(n Node) bool {
	for _, l := range Leaves(n) {
		if !tensor.AllFinite(l) {
			return false
		}
	}
	return true
}

// AllClose reports whether a and b have the same structure and all leaves
// are elementwise close.
func AllClose(a, b Node, rtol, atol float64) bool {
	if !SameStructure(a, b) {
		return false
	}
	la, lb := Leaves(a), Leaves(b)
	for i := range la {
		if !tensor.AllClose(la[i], lb[i], rtol, atol) {
			return false
		}
	}
	return true
}
