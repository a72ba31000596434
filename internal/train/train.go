// Package train drives a gradient transformation over an objective:
// evaluate gradients, transform them, apply the updates, repeat.
package train

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/tree"
)

// ErrDiverged is returned when the loss stops being finite.
var ErrDiverged = errors.New("train: loss is not finite")

// Config configures a Trainer. Zero values select defaults.
type Config struct {
	Steps    int                // Number of steps per Run (default: 100)
	LogEvery int                // Log every N steps; negative disables (default: 10)
	Logger   logrus.FieldLogger // Default: logrus.StandardLogger()
}

// Result is the outcome of a Run.
type Result struct {
	Params tree.Node
	State  tree.Node
	Losses []float64 // Loss before each step
	Final  float64   // Loss at the returned params
}

// Trainer runs one transformation on one objective.
type Trainer struct {
	tx        optim.GradientTransformation
	objective Objective
	config    Config
}

// New creates a Trainer.
func New(tx optim.GradientTransformation, objective Objective, config Config) *Trainer {
	if config.Steps == 0 {
		config.Steps = 100
	}
	if config.LogEvery == 0 {
		config.LogEvery = 10
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}
	return &Trainer{tx: tx, objective: objective, config: config}
}

// Run takes Config.Steps steps from params. A nil state is initialized
// with the transformation's Init; pass a restored state to resume.
//
// On error the partial result up to the failing step is returned with it.
// When the error is ErrNonFiniteBudgetExceeded the result holds the state
// with the skip counters of the failing step.
func (t *Trainer) Run(ctx context.Context, params, state tree.Node) (*Result, error) {
	log := t.config.Logger.WithField("objective", t.objective.Name)
	if state == nil {
		var err error
		if state, err = t.tx.Init(params); err != nil {
			return nil, errors.Wrap(err, "init optimizer state")
		}
	}

	res := &Result{Params: params, State: state, Losses: make([]float64, 0, t.config.Steps)}
	for step := 1; step <= t.config.Steps; step++ {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrapf(err, "step %d", step)
		}

		loss, grads, err := t.objective.Eval(res.Params)
		if err != nil {
			return res, errors.Wrapf(err, "step %d: eval", step)
		}
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			log.WithField("step", step).Warn("loss diverged")
			return res, errors.Wrapf(ErrDiverged, "step %d", step)
		}
		res.Losses = append(res.Losses, loss)

		updates, next, err := t.tx.Update(grads, res.State, res.Params)
		if err != nil {
			if next != nil && errors.Is(err, optim.ErrNonFiniteBudgetExceeded) {
				res.State = next
			}
			return res, errors.Wrapf(err, "step %d: update", step)
		}
		params, err := optim.ApplyUpdates(res.Params, updates)
		if err != nil {
			return res, errors.Wrapf(err, "step %d", step)
		}
		res.Params, res.State = params, next

		if t.config.LogEvery > 0 && step%t.config.LogEvery == 0 {
			fields := logrus.Fields{
				"step":        step,
				"loss":        loss,
				"grad_norm":   optim.GlobalNorm(grads),
				"update_norm": optim.GlobalNorm(updates),
			}
			if hp, err := optim.InjectedHyperparams(res.State); err == nil {
				for name, v := range hp {
					fields[name] = v
				}
			}
			log.WithFields(fields).Info("step")
		}
	}

	final, _, err := t.objective.Eval(res.Params)
	if err != nil {
		return res, errors.Wrap(err, "final eval")
	}
	res.Final = final
	log.WithFields(logrus.Fields{"steps": t.config.Steps, "loss": final}).Debug("run finished")
	return res, nil
}
