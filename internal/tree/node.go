// Package tree implements the nested containers that parameters, updates and
// optimizer state are expressed in.
//
// A tree is built from four node kinds:
//   - Leaf: a dense array (*tensor.RawTensor)
//   - Seq: an ordered sequence of nodes
//   - Record: named fields, always kept sorted by key
//   - Empty: a node without leaves (stateless marker, masked-out position)
//
// Traversal order is deterministic: Seq elements in order, Record fields in
// key order, depth first. Every function in this package returns new trees;
// inputs are never modified.
package tree

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/optix/internal/tensor"
)

// Kind identifies the variant of a Node.
type Kind int

// Node kinds.
const (
	KindEmpty Kind = iota
	KindLeaf
	KindSeq
	KindRecord
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEmpty:
		return "empty"
	case KindLeaf:
		return "leaf"
	case KindSeq:
		return "seq"
	case KindRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Node is a tree node. A nil Node means "absent".
type Node interface {
	Kind() Kind
}

// Leaf holds one array.
type Leaf struct {
	*tensor.RawTensor
}

// Kind implements Node.
func (Leaf) Kind() Kind { return KindLeaf }

// Seq is an ordered sequence of nodes.
type Seq []Node

// Kind implements Node.
func (Seq) Kind() Kind { return KindSeq }

// Empty is a node with no leaves.
type Empty struct{}

// Kind implements Node.
func (Empty) Kind() Kind { return KindEmpty }

// Field is a named entry of a Record.
type Field struct {
	Key   string
	Value Node
}

// Record is a set of named fields sorted by key.
type Record struct {
	fields []Field
}

// Kind implements Node.
func (Record) Kind() Kind { return KindRecord }

// NewRecord builds a Record from fields. Keys must be unique and must not
// contain '.', which separates path elements. Panics otherwise.
func NewRecord(fields ...Field) Record {
	sorted := make([]Field, len(fields))
	copy(sorted, fields)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })
	for i, f := range sorted {
		if strings.Contains(f.Key, ".") {
			panic(fmt.Sprintf("tree: record key %q contains '.'", f.Key))
		}
		if i > 0 && sorted[i-1].Key == f.Key {
			panic(fmt.Sprintf("tree: duplicate record key %q", f.Key))
		}
	}
	return Record{fields: sorted}
}

// Dict builds a Record from a map.
func Dict(m map[string]Node) Record {
	fields := make([]Field, 0, len(m))
	for k, v := range m {
		fields = append(fields, Field{Key: k, Value: v})
	}
	return NewRecord(fields...)
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.fields) }

// Fields returns the fields in key order.
func (r Record) Fields() []Field {
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Keys returns the field names in order.
func (r Record) Keys() []string {
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Get returns the value stored under key.
func (r Record) Get(key string) (Node, bool) {
	i := sort.Search(len(r.fields), func(i int) bool { return r.fields[i].Key >= key })
	if i < len(r.fields) && r.fields[i].Key == key {
		return r.fields[i].Value, true
	}
	return nil, false
}

// With returns a copy of r with key set to v.
func (r Record) With(key string, v Node) Record {
	fields := make([]Field, 0, len(r.fields)+1)
	for _, f := range r.fields {
		if f.Key != key {
			fields = append(fields, f)
		}
	}
	return NewRecord(append(fields, Field{Key: key, Value: v})...)
}

// NewLeaf wraps a tensor.
func NewLeaf(t *tensor.RawTensor) Leaf {
	return Leaf{RawTensor: t}
}

// Floats builds a float64 leaf. Panics if len(values) does not match shape.
// With no shape the values form a vector.
func Floats(values []float64, shape ...int) Leaf {
	return mustLeaf(values, shape, tensor.Float64)
}

// Float32s builds a float32 leaf. Panics if len(values) does not match shape.
func Float32s(values []float64, shape ...int) Leaf {
	return mustLeaf(values, shape, tensor.Float32)
}

func mustLeaf(values []float64, shape []int, dtype tensor.DataType) Leaf {
	s := tensor.Shape(shape)
	if len(shape) == 0 {
		s = tensor.Shape{len(values)}
	}
	raw, err := tensor.FromFloat64s(values, s, dtype)
	if err != nil {
		panic(err)
	}
	return NewLeaf(raw)
}

// Scalar builds a 0-d float64 leaf.
func Scalar(v float64) Leaf {
	return NewLeaf(tensor.Scalar(v, tensor.Float64))
}

// Bool builds a 0-d bool leaf, the building block of masks.
func Bool(b bool) Leaf {
	return NewLeaf(tensor.ScalarBool(b))
}

// Int32 builds a 0-d int32 leaf, used for step counters.
func Int32(v int32) Leaf {
	return NewLeaf(tensor.Scalar(float64(v), tensor.Int32))
}

// Key builds a 0-d leaf holding a PRNG key.
func Key(k uint64) Leaf {
	return NewLeaf(tensor.ScalarKey(k))
}
