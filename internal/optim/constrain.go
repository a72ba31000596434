package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// ZeroNans replaces NaN update elements with zero. Infinities pass through.
//
// State: {found_nan}, one bool scalar per leaf recording whether the most
// recent updates for that leaf contained a NaN. See FoundNaN.
func ZeroNans() GradientTransformation {
	const name = "zero_nans"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			if err := requireParams(name, params); err != nil {
				return nil, err
			}
			return newState(field("found_nan", flagsFor(params))), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			prev := rd.node("found_nan")
			if rd.err != nil {
				return nil, nil, rd.err
			}
			if err := sameLeafCount(name, updates, prev); err != nil {
				return nil, nil, err
			}

			flags := tree.Map(updates, func(t *tensor.RawTensor) *tensor.RawTensor {
				return tensor.ScalarBool(tensor.HasNaN(t))
			})
			out := mapElems(updates, func(x float64) float64 {
				if math.IsNaN(x) {
					return 0
				}
				return x
			})
			return out, newState(field("found_nan", flags)), nil
		},
	}
}

// KeepParamsNonnegative modifies updates so that applying them never drives
// a parameter below zero: where params + update < 0 the update becomes
// -params, landing the parameter exactly on zero. Requires params.
//
// State: {clamped}, one bool scalar per leaf recording whether any element
// of that leaf was clamped on the last call. See ClampedLeaves.
func KeepParamsNonnegative() GradientTransformation {
	const name = "keep_params_nonnegative"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			if err := requireParams(name, params); err != nil {
				return nil, err
			}
			return newState(field("clamped", flagsFor(params))), nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			if err := requireParams(name, params); err != nil {
				return nil, nil, err
			}
			rd := readState(name, state)
			if rd.node("clamped"); rd.err != nil {
				return nil, nil, rd.err
			}

			out, err := zipElems(updates, params, func(u, p float64) float64 {
				if p+u < 0 {
					return -p
				}
				return u
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			clamped, err := tree.Zip2(updates, params, func(u, p *tensor.RawTensor) *tensor.RawTensor {
				hit := false
				ps := p.Float64s()
				for i, x := range u.Float64s() {
					if ps[i]+x < 0 {
						hit = true
						break
					}
				}
				return tensor.ScalarBool(hit)
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field("clamped", clamped)), nil
		},
	}
}

// FoundNaN reports whether the last ZeroNans update saw a NaN in any leaf.
// state must be a ZeroNans state.
func FoundNaN(state tree.Node) (bool, error) {
	return anyFlag("zero_nans", state, "found_nan")
}

// ClampedLeaves returns the paths of the leaves KeepParamsNonnegative clamped
// on its last update. state must be a KeepParamsNonnegative state.
func ClampedLeaves(state tree.Node) ([]string, error) {
	rd := readState("keep_params_nonnegative", state)
	flags := rd.node("clamped")
	if rd.err != nil {
		return nil, rd.err
	}
	var out []string
	paths := tree.Paths(flags)
	for i, l := range tree.Leaves(flags) {
		if l.AsBool()[0] {
			out = append(out, paths[i])
		}
	}
	return out, nil
}

func anyFlag(name string, state tree.Node, key string) (bool, error) {
	rd := readState(name, state)
	flags := rd.node(key)
	if rd.err != nil {
		return false, rd.err
	}
	for _, l := range tree.Leaves(flags) {
		if l.DType() != tensor.Bool {
			return false, errors.Wrapf(ErrInvalidState, "%s: %q holds %s leaves", name, key, l.DType())
		}
		if l.AsBool()[0] {
			return true, nil
		}
	}
	return false, nil
}

func sameLeafCount(name string, a, b tree.Node) error {
	if na, nb := tree.NumLeaves(a), tree.NumLeaves(b); na != nb {
		return errors.Wrapf(tree.ErrStructureMismatch, "%s: updates have %d leaves, state tracks %d", name, na, nb)
	}
	return nil
}
