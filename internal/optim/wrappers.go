package optim

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// MaskFn derives a mask from a tree shaped like the parameters. A mask is a
// tree of bool scalars; a bool may also stand in for a whole subtree.
type MaskFn func(params tree.Node) (tree.Node, error)

// StaticMask lifts a precomputed mask into a MaskFn.
func StaticMask(mask tree.Node) MaskFn {
	return func(tree.Node) (tree.Node, error) {
		return mask, nil
	}
}

// MaskFromPaths selects the leaves whose dotted path satisfies keep.
func MaskFromPaths(keep func(path string) bool) MaskFn {
	return func(params tree.Node) (tree.Node, error) {
		return tree.MaskFromPaths(params, keep), nil
	}
}

// Masked applies inner only to the leaves mask selects. Unselected leaves
// pass through unchanged and get no inner state: inner sees tree.Empty{} in
// their place. The mask is evaluated on params in Init and on updates in
// Update, and must match the tree structure on every call.
// State: {inner_state}.
func Masked(inner GradientTransformation, mask MaskFn) GradientTransformation {
	const name = "masked"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			if err := requireParams(name, params); err != nil {
				return nil, err
			}
			m, err := mask(params)
			if err != nil {
				return nil, errors.Wrap(err, name)
			}
			selected, err := tree.Select(m, params)
			if err != nil {
				return nil, errors.Wrap(err, name)
			}
			s, err := inner.Init(selected)
			if err != nil {
				return nil, err
			}
			return newState(field(keyInnerState, s)), nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			innerState := rd.node(keyInnerState)
			if rd.err != nil {
				return nil, nil, rd.err
			}
			m, err := mask(updates)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			selected, err := tree.Select(m, updates)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			var selectedParams tree.Node
			if params != nil {
				if selectedParams, err = tree.Select(m, params); err != nil {
					return nil, nil, errors.Wrap(err, name)
				}
			}

			changed, next, innerErr := inner.Update(selected, innerState, selectedParams)
			if innerErr != nil && !budgetExceeded(innerErr, next) {
				return nil, nil, innerErr
			}
			out, err := tree.Merge(m, changed, updates)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field(keyInnerState, next)), innerErr
		},
	}
}

// ApplyEvery accumulates updates over k calls and emits their sum on every
// k-th call. The k-1 calls in between emit zeros. Panics if k < 1.
// State: {count, grad_acc}.
func ApplyEvery(k int) GradientTransformation {
	const name = "apply_every"
	if k < 1 {
		panic(fmt.Sprintf("optim: apply every k must be >= 1, got %d", k))
	}
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			acc, err := zerosFor(name, params)
			if err != nil {
				return nil, err
			}
			return newState(field(keyCount, tree.Int32(0)), field("grad_acc", acc)), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			acc := rd.node("grad_acc")
			if rd.err != nil {
				return nil, nil, rd.err
			}

			c := int(count) % k
			keep := 0.0
			if c != 0 {
				keep = 1
			}
			next, err := zipElems(acc, updates, func(a, g float64) float64 { return keep*a + g })
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			emit := c == k-1
			out, err := zipElems(updates, next, func(_, a float64) float64 {
				if emit {
					return a
				}
				return 0
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			count = int32(int(safeIncrement(count)) % k)
			return out, newState(field(keyCount, tree.Int32(count)), field("grad_acc", next)), nil
		},
	}
}

// ApplyIfFinite skips steps whose updates contain NaN or Inf.
//
// On a non-finite step inner is not called: the output is all zeros and the
// inner state is kept. Consecutive and total skips are counted in state.
// A finite step resets the consecutive count and delegates to inner.
//
// Once more than maxConsecutiveErrors consecutive steps were skipped, Update
// still returns zero updates and the advanced state, together with an error
// wrapping ErrNonFiniteBudgetExceeded: the run is diverging and the caller
// should stop. Chain, Masked, MaybeUpdate, Flatten and InjectHyperparams
// pass this error up together with their own advanced state.
//
// State: {inner_state, last_finite, notfinite_count, total_notfinite}.
func ApplyIfFinite(inner GradientTransformation, maxConsecutiveErrors int) GradientTransformation {
	const name = "apply_if_finite"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			s, err := inner.Init(params)
			if err != nil {
				return nil, err
			}
			return ifFiniteState(s, true, 0, 0), nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			innerState := rd.node(keyInnerState)
			notFinite := rd.count("notfinite_count")
			total := rd.count("total_notfinite")
			if rd.err != nil {
				return nil, nil, rd.err
			}

			if tree.AllFinite(updates) {
				out, next, err := inner.Update(updates, innerState, params)
				if err != nil {
					return nil, nil, err
				}
				return out, ifFiniteState(next, true, 0, total), nil
			}

			notFinite = safeIncrement(notFinite)
			next := ifFiniteState(innerState, false, notFinite, safeIncrement(total))
			out := tree.ZerosLike(updates)
			if int(notFinite) > maxConsecutiveErrors {
				return out, next, errors.Wrapf(ErrNonFiniteBudgetExceeded,
					"%s: %d consecutive non-finite updates, budget %d", name, notFinite, maxConsecutiveErrors)
			}
			return out, next, nil
		},
	}
}

func ifFiniteState(inner tree.Node, lastFinite bool, notFinite, total int32) tree.Record {
	return newState(
		field(keyInnerState, inner),
		field("last_finite", tree.Bool(lastFinite)),
		field("notfinite_count", tree.Int32(notFinite)),
		field("total_notfinite", tree.Int32(total)),
	)
}

// FiniteStats summarizes an ApplyIfFinite state.
type FiniteStats struct {
	LastFinite     bool  // Whether the last updates were finite
	NotFiniteCount int32 // Consecutive non-finite steps so far
	TotalNotFinite int32 // Non-finite steps since Init
}

// NonFiniteStats reads the counters of an ApplyIfFinite state.
func NonFiniteStats(state tree.Node) (FiniteStats, error) {
	rd := readState("apply_if_finite", state)
	stats := FiniteStats{
		LastFinite:     rd.flag("last_finite"),
		NotFiniteCount: rd.count("notfinite_count"),
		TotalNotFinite: rd.count("total_notfinite"),
	}
	return stats, rd.err
}

// MaybeUpdate calls inner only on steps where shouldUpdate(step) holds,
// step being the number of previous calls. On other steps updates pass
// through unchanged and the inner state is kept as is.
// State: {inner_state, step}.
func MaybeUpdate(inner GradientTransformation, shouldUpdate func(step int64) bool) GradientTransformation {
	const name = "maybe_update"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			s, err := inner.Init(params)
			if err != nil {
				return nil, err
			}
			return newState(field(keyInnerState, s), field("step", tree.Int32(0))), nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			innerState := rd.node(keyInnerState)
			step := rd.count("step")
			if rd.err != nil {
				return nil, nil, rd.err
			}

			out, next := updates, innerState
			var err error
			if shouldUpdate(int64(step)) {
				if out, next, err = inner.Update(updates, innerState, params); err != nil && !budgetExceeded(err, next) {
					return nil, nil, err
				}
			}
			return out, newState(field(keyInnerState, next), field("step", tree.Int32(safeIncrement(step)))), err
		},
	}
}

// Flatten runs inner on a single vector holding every leaf, concatenated in
// traversal order. Transformations with per-leaf overhead run faster on one
// large leaf; per-leaf rules (such as trust ratios) then see the whole tree
// as one unit. The state is whatever inner keeps for the flat vector.
func Flatten(inner GradientTransformation) GradientTransformation {
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			flat, err := flattenTree(params)
			if err != nil {
				return nil, err
			}
			return inner.Init(flat)
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			flat, err := flattenTree(updates)
			if err != nil {
				return nil, nil, err
			}
			var flatParams tree.Node
			if params != nil {
				if flatParams, err = flattenTree(params); err != nil {
					return nil, nil, err
				}
			}
			out, next, innerErr := inner.Update(flat, state, flatParams)
			if innerErr != nil && !budgetExceeded(innerErr, next) {
				return nil, nil, innerErr
			}
			restored, err := unflattenTree(updates, out)
			if err != nil {
				return nil, nil, errors.Wrap(err, "flatten")
			}
			return restored, next, innerErr
		},
	}
}

// flattenTree concatenates all leaves into one vector. The vector keeps the
// leaves' dtype when they agree and is float64 otherwise. A tree without
// leaves flattens to tree.Empty{}.
func flattenTree(n tree.Node) (tree.Node, error) {
	if n == nil {
		return nil, nil
	}
	leaves := tree.Leaves(n)
	if len(leaves) == 0 {
		return tree.Empty{}, nil
	}
	dtype := leaves[0].DType()
	var values []float64
	for _, l := range leaves {
		if l.DType() != dtype {
			dtype = tensor.Float64
		}
		values = append(values, l.Float64s()...)
	}
	flat, err := tensor.FromFloat64s(values, tensor.Shape{len(values)}, dtype)
	if err != nil {
		return nil, err
	}
	return tree.NewLeaf(flat), nil
}

// unflattenTree splits a vector produced from template back into leaves
// with the template's shapes and dtypes.
func unflattenTree(template, flat tree.Node) (tree.Node, error) {
	leaves := tree.Leaves(template)
	if len(leaves) == 0 {
		return template, nil
	}
	l, ok := flat.(tree.Leaf)
	if !ok {
		return nil, errors.Wrapf(tree.ErrStructureMismatch, "want flat leaf, got %s", kindName(flat))
	}
	values := l.Float64s()
	out := make([]*tensor.RawTensor, len(leaves))
	offset := 0
	for i, leaf := range leaves {
		n := leaf.NumElements()
		if offset+n > len(values) {
			return nil, errors.Wrapf(tree.ErrShapeMismatch, "flat vector of %d elements is too short", len(values))
		}
		t, err := tensor.FromFloat64s(values[offset:offset+n], leaf.Shape(), leaf.DType())
		if err != nil {
			return nil, err
		}
		out[i] = t
		offset += n
	}
	if offset != len(values) {
		return nil, errors.Wrapf(tree.ErrShapeMismatch, "flat vector has %d elements, tree has %d", len(values), offset)
	}
	return tree.Unflatten(template, out)
}
