package optim

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// Hyperparams maps hyperparameter names to their current values.
type Hyperparams map[string]float64

// Factory builds a transformation from concrete hyperparameter values.
type Factory func(hp Hyperparams) GradientTransformation

// InjectHyperparams turns hyperparameters of a transformation into state.
//
// Values named in schedules are recomputed from the step count at every
// call. Values in static are stored in the state once at Init; since the
// state is the source of truth, a caller can change them mid-training with
// SetHyperparam. The factory is invoked on every call with the realized
// values, so it must be cheap and pure.
//
// State: {count, hyperparams, inner_state}; hyperparams holds the values
// used by the last call (or by Init), for logging. Names must be valid
// record keys (no '.').
//
// Example:
//
//	tx := optim.InjectHyperparams(
//	    func(hp optim.Hyperparams) optim.GradientTransformation {
//	        return optim.Adam(optim.AdamConfig{LR: hp["learning_rate"]})
//	    },
//	    map[string]schedule.Schedule{"learning_rate": schedule.Linear(1e-3, 0, 1000, 0)},
//	    nil,
//	)
func InjectHyperparams(factory Factory, schedules map[string]schedule.Schedule, static Hyperparams) GradientTransformation {
	const name = "inject_hyperparams"

	realize := func(stored Hyperparams, count int32) Hyperparams {
		hp := make(Hyperparams, len(stored)+len(schedules))
		for k, v := range stored {
			hp[k] = v
		}
		for k, s := range schedules {
			hp[k] = s(int64(count))
		}
		return hp
	}

	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			hp := realize(static, 0)
			inner, err := factory(hp).Init(params)
			if err != nil {
				return nil, err
			}
			return injectState(0, hp, inner), nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			stored := rd.node("hyperparams")
			inner := rd.node(keyInnerState)
			if rd.err != nil {
				return nil, nil, rd.err
			}
			values, err := hyperparamsFrom(stored)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}

			hp := realize(values, count)
			out, next, err := factory(hp).Update(updates, inner, params)
			if err != nil && !budgetExceeded(err, next) {
				return nil, nil, err
			}
			return out, injectState(safeIncrement(count), hp, next), err
		},
	}
}

func injectState(count int32, hp Hyperparams, inner tree.Node) tree.Record {
	fields := make([]tree.Field, 0, len(hp))
	for k, v := range hp {
		fields = append(fields, tree.Field{Key: k, Value: tree.Scalar(v)})
	}
	return newState(
		field(keyCount, tree.Int32(count)),
		field("hyperparams", tree.NewRecord(fields...)),
		field(keyInnerState, inner),
	)
}

func hyperparamsFrom(n tree.Node) (Hyperparams, error) {
	rec, ok := n.(tree.Record)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidState, "hyperparams: want record, got %s", kindName(n))
	}
	hp := make(Hyperparams, rec.Len())
	for _, f := range rec.Fields() {
		l, ok := f.Value.(tree.Leaf)
		if !ok || l.NumElements() != 1 {
			return nil, errors.Wrapf(ErrInvalidState, "hyperparam %q is not a scalar", f.Key)
		}
		hp[f.Key] = l.Item()
	}
	return hp, nil
}

// InjectedHyperparams returns the hyperparameter values stored in an
// InjectHyperparams state.
func InjectedHyperparams(state tree.Node) (Hyperparams, error) {
	rd := readState("inject_hyperparams", state)
	stored := rd.node("hyperparams")
	if rd.err != nil {
		return nil, rd.err
	}
	return hyperparamsFrom(stored)
}

// SetHyperparam returns a copy of an InjectHyperparams state with the
// stored value of name replaced. Scheduled hyperparameters are recomputed
// on the next call regardless; only static ones keep the new value.
func SetHyperparam(state tree.Node, name string, value float64) (tree.Node, error) {
	rd := readState("inject_hyperparams", state)
	stored := rd.node("hyperparams")
	if rd.err != nil {
		return nil, rd.err
	}
	rec, ok := stored.(tree.Record)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidState, "hyperparams: want record, got %s", kindName(stored))
	}
	if _, ok := rec.Get(name); !ok {
		return nil, errors.Wrapf(ErrUnknownHyperparam, "%q (have %v)", name, rec.Keys())
	}
	return rd.rec.With("hyperparams", rec.With(name, tree.NewLeaf(tensor.Scalar(value, tensor.Float64)))), nil
}

// Names returns the hyperparameter names in sorted order.
func (hp Hyperparams) Names() []string {
	names := make([]string, 0, len(hp))
	for k := range hp {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
