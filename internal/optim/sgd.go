package optim

import (
	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

// Trace accumulates updates into a momentum buffer.
//
// Update rule:
//
//	trace = updates + decay * trace
//	out   = trace                          // heavy ball
//	out   = updates + decay * trace        // nesterov
//
// State: {trace}, zero-initialized like params.
func Trace(decay float64, nesterov bool) GradientTransformation {
	const name = "trace"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			t, err := zerosFor(name, params)
			if err != nil {
				return nil, err
			}
			return newState(field("trace", t)), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			trace := rd.node("trace")
			if rd.err != nil {
				return nil, nil, rd.err
			}

			next, err := zipElems(trace, updates, func(t, g float64) float64 { return g + decay*t })
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			out, err := zipElems(updates, next, func(g, t float64) float64 {
				if nesterov {
					return g + decay*t
				}
				return t
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field("trace", next)), nil
		},
	}
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float64           // Learning rate (default: 0.01)
	Schedule schedule.Schedule // Learning rate schedule; overrides LR when set
	Momentum float64           // Momentum factor (default: 0, no momentum buffer)
	Nesterov bool              // Use Nesterov momentum
}

// SGD returns stochastic gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
//
// Example:
//
//	tx := optim.SGD(optim.SGDConfig{
//	    LR:       0.01,
//	    Momentum: 0.9,
//	})
func SGD(config SGDConfig) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Momentum == 0 {
		return Chain(scaleByLearningRate(config.LR, config.Schedule))
	}
	return Chain(
		Trace(config.Momentum, config.Nesterov),
		scaleByLearningRate(config.LR, config.Schedule),
	)
}

// scaleByLearningRate scales updates by -lr, or by -sched(count) when a
// schedule is given.
func scaleByLearningRate(lr float64, sched schedule.Schedule) GradientTransformation {
	if sched != nil {
		return ScaleBySchedule(func(count int64) float64 { return -sched(count) })
	}
	return Scale(-lr)
}
