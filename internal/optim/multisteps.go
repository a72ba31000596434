package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

// MultiSteps accumulates gradients over several calls before taking one
// step of the wrapped optimizer, emulating a larger batch.
//
// The number of mini-steps per optimizer step is everyK evaluated at the
// current gradient step, so it may change during training. Intermediate
// calls return zero updates; the final call of a group hands the
// accumulated gradients (their running mean, or their sum when
// useGradMean is false) to the inner optimizer and resets the accumulator.
//
// State: {acc_grads, gradient_step, inner_opt_state, mini_step}.
//
// Example:
//
//	ms := optim.NewMultiSteps(optim.Adam(optim.AdamConfig{}), schedule.Constant(4), true)
//	tx := ms.GradientTransformation()
type MultiSteps struct {
	inner       GradientTransformation
	everyK      schedule.Schedule
	useGradMean bool
}

// NewMultiSteps wraps inner so it steps once every everyK calls.
func NewMultiSteps(inner GradientTransformation, everyK schedule.Schedule, useGradMean bool) *MultiSteps {
	return &MultiSteps{inner: inner, everyK: everyK, useGradMean: useGradMean}
}

const multiStepsName = "multi_steps"

// Init builds the accumulator and the inner optimizer state.
func (m *MultiSteps) Init(params tree.Node) (tree.Node, error) {
	acc, err := zerosFor(multiStepsName, params)
	if err != nil {
		return nil, err
	}
	inner, err := m.inner.Init(params)
	if err != nil {
		return nil, err
	}
	return multiStepsState(0, 0, inner, acc), nil
}

// Update accumulates updates and steps the inner optimizer at the end of a
// group. An everyK value below 1 fails with ErrInvalidAccumulation.
func (m *MultiSteps) Update(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
	rd := readState(multiStepsName, state)
	miniStep := rd.count("mini_step")
	gradStep := rd.count("gradient_step")
	inner := rd.node("inner_opt_state")
	acc := rd.node("acc_grads")
	if rd.err != nil {
		return nil, nil, rd.err
	}

	k := int64(m.everyK(int64(gradStep)))
	if k < 1 {
		return nil, nil, errors.Wrapf(ErrInvalidAccumulation, "%s: every k is %d at gradient step %d", multiStepsName, k, gradStep)
	}

	n := float64(miniStep)
	acc, err := zipElems(acc, updates, func(a, g float64) float64 {
		if m.useGradMean {
			return (g + n*a) / (n + 1)
		}
		return g + a
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, multiStepsName)
	}

	if int64(miniStep) < k-1 {
		return tree.ZerosLike(updates), multiStepsState(safeIncrement(miniStep), gradStep, inner, acc), nil
	}

	// The inner optimizer sees gradients with the dtypes of updates.
	grads, err := zipElems(updates, acc, func(_, a float64) float64 { return a })
	if err != nil {
		return nil, nil, errors.Wrap(err, multiStepsName)
	}
	out, next, err := m.inner.Update(grads, inner, params)
	if err != nil {
		return nil, nil, err
	}
	return out, multiStepsState(0, safeIncrement(gradStep), next, tree.ZerosLike(acc)), nil
}

// HasUpdated reports whether the last Update call stepped the inner
// optimizer.
func (m *MultiSteps) HasUpdated(state tree.Node) (bool, error) {
	rd := readState(multiStepsName, state)
	miniStep := rd.count("mini_step")
	gradStep := rd.count("gradient_step")
	if rd.err != nil {
		return false, rd.err
	}
	return miniStep == 0 && gradStep > 0, nil
}

// GradientTransformation returns m as a plain transformation.
func (m *MultiSteps) GradientTransformation() GradientTransformation {
	return GradientTransformation{Init: m.Init, Update: m.Update}
}

func multiStepsState(miniStep, gradStep int32, inner, acc tree.Node) tree.Record {
	return newState(
		field("mini_step", tree.Int32(miniStep)),
		field("gradient_step", tree.Int32(gradStep)),
		field("inner_opt_state", inner),
		field("acc_grads", acc),
	)
}
