package tree

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
)

// Select keeps the parts of n the mask selects and replaces the rest with
// Empty. The mask mirrors n's structure down to bool leaves; a bool leaf may
// stand for a whole subtree of n.
func Select(mask, n Node) (Node, error) {
	return selectMasked(mask, n, nil)
}

func selectMasked(mask, n Node, path []string) (Node, error) {
	if m, ok := mask.(Leaf); ok {
		on, err := maskValue(m, path)
		if err != nil {
			return nil, err
		}
		if on {
			return n, nil
		}
		return Empty{}, nil
	}
	return descend(mask, n, path, func(m, child Node, p []string) (Node, error) {
		return selectMasked(m, child, p)
	})
}

// Merge rebuilds a full tree from the output of a transform applied to
// Select(mask, original): selected positions come from selected, the others
// from original.
func Merge(mask, selected, original Node) (Node, error) {
	return merge(mask, selected, original, nil)
}

func merge(mask, selected, original Node, path []string) (Node, error) {
	if m, ok := mask.(Leaf); ok {
		on, err := maskValue(m, path)
		if err != nil {
			return nil, err
		}
		if on {
			return selected, nil
		}
		return original, nil
	}
	// Walk mask and original together; pick the matching child of selected.
	return descendIndexed(mask, original, path, func(m, orig Node, p []string, key string, idx int) (Node, error) {
		sel, err := childOf(selected, key, idx, p)
		if err != nil {
			return nil, err
		}
		return merge(m, sel, orig, p)
	})
}

func maskValue(m Leaf, path []string) (bool, error) {
	if m.DType() != tensor.Bool || m.NumElements() != 1 {
		return false, errors.Wrapf(ErrInvalidMask, "at %q: want scalar bool, got %s%v", joinPath(path), m.DType(), m.Shape())
	}
	return m.AsBool()[0], nil
}

func descend(mask, n Node, path []string, f func(m, child Node, p []string) (Node, error)) (Node, error) {
	return descendIndexed(mask, n, path, func(m, child Node, p []string, _ string, _ int) (Node, error) {
		return f(m, child, p)
	})
}

func descendIndexed(mask, n Node, path []string, f func(m, child Node, p []string, key string, idx int) (Node, error)) (Node, error) {
	if mask == nil || n == nil || mask.Kind() != n.Kind() {
		return nil, errors.Wrapf(ErrStructureMismatch, "mask at %q: %s vs %s", joinPath(path), kindOf(mask), kindOf(n))
	}
	switch m := mask.(type) {
	case Seq:
		s := n.(Seq)
		if len(s) != len(m) {
			return nil, errors.Wrapf(ErrStructureMismatch, "mask at %q: sequence length %d vs %d", joinPath(path), len(m), len(s))
		}
		out := make(Seq, len(s))
		for i := range s {
			child, err := f(m[i], s[i], appendPath(path, strconv.Itoa(i)), "", i)
			if err != nil {
				return nil, err
			}
			out[i] = child
		}
		return out, nil
	case Record:
		r := n.(Record)
		if r.Len() != m.Len() {
			return nil, errors.Wrapf(ErrStructureMismatch, "mask at %q: record keys %v vs %v", joinPath(path), m.Keys(), r.Keys())
		}
		fields := make([]Field, r.Len())
		for i, fld := range r.fields {
			if m.fields[i].Key != fld.Key {
				return nil, errors.Wrapf(ErrStructureMismatch, "mask at %q: record keys %v vs %v", joinPath(path), m.Keys(), r.Keys())
			}
			child, err := f(m.fields[i].Value, fld.Value, appendPath(path, fld.Key), fld.Key, i)
			if err != nil {
				return nil, err
			}
			fields[i] = Field{Key: fld.Key, Value: child}
		}
		return Record{fields: fields}, nil
	case Empty:
		return Empty{}, nil
	default:
		return nil, errors.Wrapf(ErrInvalidMask, "at %q", joinPath(path))
	}
}

func childOf(n Node, key string, idx int, path []string) (Node, error) {
	switch v := n.(type) {
	case Seq:
		if idx < len(v) {
			return v[idx], nil
		}
	case Record:
		if c, ok := v.Get(key); ok {
			return c, nil
		}
	}
	return nil, errors.Wrapf(ErrStructureMismatch, "masked result at %q: %s", joinPath(path), kindOf(n))
}

// MaskFromPaths builds a mask for n selecting the leaves whose path satisfies keep.
func MaskFromPaths(n Node, keep func(path string) bool) Node {
	return maskFrom(n, nil, keep)
}

func maskFrom(n Node, path []string, keep func(string) bool) Node {
	switch v := n.(type) {
	case Leaf:
		return Bool(keep(joinPath(path)))
	case Seq:
		out := make(Seq, len(v))
		for i, c := range v {
			out[i] = maskFrom(c, appendPath(path, strconv.Itoa(i)), keep)
		}
		return out
	case Record:
		fields := make([]Field, len(v.fields))
		for i, f := range v.fields {
			fields[i] = Field{Key: f.Key, Value: maskFrom(f.Value, appendPath(path, f.Key), keep)}
		}
		return Record{fields: fields}
	case Empty:
		return Empty{}
	default:
		return nil
	}
}
