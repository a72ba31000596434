package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// Field names shared by several state layouts.
const (
	keyCount      = "count"
	keyMu         = "mu"
	keyNu         = "nu"
	keyInnerState = "inner_state"
	keyRNGKey     = "rng_key"
)

func field(key string, v tree.Node) tree.Field {
	return tree.Field{Key: key, Value: v}
}

func newState(fields ...tree.Field) tree.Record {
	return tree.NewRecord(fields...)
}

// stateReader pulls typed fields out of a state record. The first failure
// is kept in err and later reads become no-ops.
type stateReader struct {
	name string
	rec  tree.Record
	err  error
}

func readState(name string, state tree.Node) *stateReader {
	r := &stateReader{name: name}
	rec, ok := state.(tree.Record)
	if !ok {
		r.err = errors.Wrapf(ErrInvalidState, "%s: want record state, got %s", name, kindName(state))
		return r
	}
	r.rec = rec
	return r
}

func (r *stateReader) node(key string) tree.Node {
	if r.err != nil {
		return nil
	}
	v, ok := r.rec.Get(key)
	if !ok {
		r.err = errors.Wrapf(ErrInvalidState, "%s: missing state field %q", r.name, key)
		return nil
	}
	return v
}

func (r *stateReader) scalar(key string, dtype tensor.DataType) *tensor.RawTensor {
	v := r.node(key)
	if r.err != nil {
		return nil
	}
	l, ok := v.(tree.Leaf)
	if !ok || l.DType() != dtype || l.NumElements() != 1 {
		r.err = errors.Wrapf(ErrInvalidState, "%s: state field %q is not a %s scalar", r.name, key, dtype)
		return nil
	}
	return l.RawTensor
}

func (r *stateReader) count(key string) int32 {
	if t := r.scalar(key, tensor.Int32); t != nil {
		return t.AsInt32()[0]
	}
	return 0
}

func (r *stateReader) flag(key string) bool {
	if t := r.scalar(key, tensor.Bool); t != nil {
		return t.AsBool()[0]
	}
	return false
}

func (r *stateReader) rngKey(key string) uint64 {
	if t := r.scalar(key, tensor.Int64); t != nil {
		return t.Uint64()
	}
	return 0
}

// safeIncrement adds one to a step counter, saturating at MaxInt32.
func safeIncrement(c int32) int32 {
	if c == math.MaxInt32 {
		return c
	}
	return c + 1
}

func requireParams(name string, params tree.Node) error {
	if params == nil {
		return errors.Wrapf(ErrParamsRequired, "%s", name)
	}
	return nil
}

// zerosFor builds zero accumulators shaped like params.
func zerosFor(name string, params tree.Node) (tree.Node, error) {
	if err := requireParams(name, params); err != nil {
		return nil, err
	}
	return tree.ZerosLike(params), nil
}

// fullFor builds accumulators shaped like params, filled with v.
func fullFor(name string, params tree.Node, v float64) (tree.Node, error) {
	if err := requireParams(name, params); err != nil {
		return nil, err
	}
	return tree.FullLike(params, v), nil
}

// flagsFor builds one false scalar flag per leaf of params.
func flagsFor(params tree.Node) tree.Node {
	return tree.Map(params, func(*tensor.RawTensor) *tensor.RawTensor {
		return tensor.ScalarBool(false)
	})
}

func kindName(n tree.Node) string {
	if n == nil {
		return "absent"
	}
	return n.Kind().String()
}
