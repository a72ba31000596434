package cmd

import (
	"sort"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/schedule"
)

// optimizerInfo builds an alias from a run config and the current
// learning rate.
type optimizerInfo struct {
	build func(c RunConfig, lr float64) optim.GradientTransformation
	// scheduled aliases take the rate as a Schedule and accept any value,
	// including a schedule that reaches zero.
	scheduled bool
}

var optimizers = map[string]optimizerInfo{
	"sgd": {scheduled: true, build: func(c RunConfig, lr float64) optim.GradientTransformation {
		return optim.SGD(optim.SGDConfig{Schedule: schedule.Constant(lr), Momentum: c.Momentum, Nesterov: c.Nesterov})
	}},
	"adam": {scheduled: true, build: func(_ RunConfig, lr float64) optim.GradientTransformation {
		return optim.Adam(adamConfig(lr))
	}},
	"adamw": {scheduled: true, build: func(c RunConfig, lr float64) optim.GradientTransformation {
		return optim.AdamW(optim.AdamWConfig{AdamConfig: adamConfig(lr), WeightDecay: c.WeightDecay})
	}},
	"lamb": {scheduled: true, build: func(c RunConfig, lr float64) optim.GradientTransformation {
		return optim.LAMB(optim.LAMBConfig{AdamConfig: adamConfig(lr), WeightDecay: c.WeightDecay})
	}},
	"adabelief": {scheduled: true, build: func(_ RunConfig, lr float64) optim.GradientTransformation {
		return optim.AdaBelief(adamConfig(lr))
	}},
	"adagrad": {scheduled: true, build: func(_ RunConfig, lr float64) optim.GradientTransformation {
		return optim.AdaGrad(optim.AdaGradConfig{Schedule: schedule.Constant(lr)})
	}},
	"radam": {scheduled: true, build: func(_ RunConfig, lr float64) optim.GradientTransformation {
		return optim.RAdam(optim.RAdamConfig{AdamConfig: adamConfig(lr)})
	}},
	"rmsprop": {scheduled: true, build: func(c RunConfig, lr float64) optim.GradientTransformation {
		return optim.RMSProp(optim.RMSPropConfig{Schedule: schedule.Constant(lr), Momentum: c.Momentum, Nesterov: c.Nesterov})
	}},
	"yogi": {scheduled: true, build: func(_ RunConfig, lr float64) optim.GradientTransformation {
		return optim.Yogi(optim.YogiConfig{AdamConfig: adamConfig(lr)})
	}},
	"noisy-sgd": {scheduled: true, build: func(c RunConfig, lr float64) optim.GradientTransformation {
		return optim.NoisySGD(optim.NoisySGDConfig{Schedule: schedule.Constant(lr), Seed: c.Seed})
	}},
	"sm3": {build: func(c RunConfig, lr float64) optim.GradientTransformation {
		return optim.SM3(optim.SM3Config{LR: lr, Momentum: c.Momentum})
	}},
	"fromage": {build: func(_ RunConfig, lr float64) optim.GradientTransformation {
		return optim.Fromage(optim.FromageConfig{LR: lr})
	}},
}

func adamConfig(lr float64) optim.AdamConfig {
	return optim.AdamConfig{Schedule: schedule.Constant(lr)}
}

func optimizerNames() []string {
	names := make([]string, 0, len(optimizers))
	for name := range optimizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// learningRate builds the schedule named by c.Schedule, peaking at c.LR.
func learningRate(c RunConfig) schedule.Schedule {
	steps := int64(c.Steps)
	switch c.Schedule {
	case scheduleCosine:
		return schedule.CosineDecay(c.LR, steps, 0)
	case scheduleWarmupCosine:
		return schedule.WarmupCosineDecay(0, c.LR, c.WarmupSteps, steps, c.EndLR)
	case scheduleExponential:
		return schedule.ExponentialDecay(schedule.ExponentialDecayConfig{
			Init:            c.LR,
			TransitionSteps: max(steps/10, 1),
			DecayRate:       c.DecayRate,
		})
	case scheduleOneCycle:
		return schedule.CosineOneCycle(schedule.OneCycleConfig{TransitionSteps: steps, PeakValue: c.LR})
	default:
		return schedule.Constant(c.LR)
	}
}

// buildOptimizer assembles the transformation for a validated config:
//
//	inject_hyperparams( [apply_if_finite]( [clip_by_global_norm] -> alias ) )
//
// The learning rate is injected at the outermost level so it is logged and
// checkpointed with the optimizer state.
func buildOptimizer(c RunConfig) optim.GradientTransformation {
	info := optimizers[c.Optimizer]
	return optim.InjectHyperparams(
		func(hp optim.Hyperparams) optim.GradientTransformation {
			tx := info.build(c, hp["learning_rate"])
			if c.ClipNorm > 0 {
				tx = optim.Chain(optim.ClipByGlobalNorm(c.ClipNorm), tx)
			}
			if c.SkipNonFinite > 0 {
				tx = optim.ApplyIfFinite(tx, c.SkipNonFinite)
			}
			return tx
		},
		map[string]schedule.Schedule{"learning_rate": learningRate(c)},
		nil,
	)
}
