package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

// AdamConfig holds configuration for Adam-family moment estimators and the
// optimizers built on them. Zero fields take the defaults of the
// transformation being configured, so a field cannot be set to exactly zero
// when its default is not zero: Betas[0] = 0 still averages with 0.9, and
// AdaBelief's EpsRoot = 0 still adds 1e-16. For scaling without a first
// moment use ScaleByRMS. An explicit Schedule is the way to run with a zero
// learning rate.
type AdamConfig struct {
	LR       float64           // Learning rate (default: 0.001)
	Schedule schedule.Schedule // Learning rate schedule; overrides LR when set
	Betas    [2]float64        // Decay of the first and second moments (default: [0.9, 0.999])
	Eps      float64           // Added to the denominator outside the root (default: 1e-8)
	EpsRoot  float64           // Added to the second moment inside the root (default: 0)
}

func (c AdamConfig) withDefaults(eps, epsRoot float64) AdamConfig {
	if c.LR == 0 {
		c.LR = 0.001
	}
	if c.Betas[0] == 0 {
		c.Betas[0] = 0.9
	}
	if c.Betas[1] == 0 {
		c.Betas[1] = 0.999
	}
	if c.Eps == 0 {
		c.Eps = eps
	}
	if c.EpsRoot == 0 {
		c.EpsRoot = epsRoot
	}
	return c
}

// ScaleByAdam rescales updates with bias-corrected first and second
// moment estimates.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * g
//	v_t = beta2 * v_{t-1} + (1-beta2) * g²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	out = m_hat / (sqrt(v_hat + eps_root) + eps)
//
// State: {count, mu, nu}. The learning rate is not applied; chain with a
// scale to build an optimizer, or use Adam.
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014)
func ScaleByAdam(config AdamConfig) GradientTransformation {
	config = config.withDefaults(1e-8, 0)
	return scaleByMoments("scale_by_adam", config, 0, adamSecondMoment)
}

func adamSecondMoment(name string, updates, _, nu tree.Node, b2 float64) (tree.Node, error) {
	return updateMoment(name, updates, nu, b2, 2)
}

// secondMomentFn computes the next second moment from the updates, the
// previous first moment and the previous second moment.
type secondMomentFn func(name string, updates, mu, nu tree.Node, b2 float64) (tree.Node, error)

// scaleByMoments implements the shared {count, mu, nu} machinery of Adam,
// AdaBelief and Yogi. initialNu seeds both accumulators.
func scaleByMoments(name string, config AdamConfig, initialNu float64, second secondMomentFn) GradientTransformation {
	b1, b2 := config.Betas[0], config.Betas[1]
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			acc, err := fullFor(name, params, initialNu)
			if err != nil {
				return nil, err
			}
			return newState(
				field(keyCount, tree.Int32(0)),
				field(keyMu, acc),
				field(keyNu, acc),
			), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			mu, nu := rd.node(keyMu), rd.node(keyNu)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			newMu, err := updateMoment(name, updates, mu, b1, 1)
			if err != nil {
				return nil, nil, err
			}
			newNu, err := second(name, updates, mu, nu, b2)
			if err != nil {
				return nil, nil, err
			}
			count = safeIncrement(count)
			muHat := biasCorrection(newMu, b1, count)
			nuHat := biasCorrection(newNu, b2, count)

			out, err := zipElems3(updates, muHat, nuHat, func(_, m, v float64) float64 {
				return m / (math.Sqrt(v+config.EpsRoot) + config.Eps)
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(
				field(keyCount, tree.Int32(count)),
				field(keyMu, newMu),
				field(keyNu, newNu),
			), nil
		},
	}
}

// Adam returns the Adam optimizer: ScaleByAdam followed by the learning rate.
//
// Example:
//
//	tx := optim.Adam(optim.AdamConfig{
//	    LR:    0.001,
//	    Betas: [2]float64{0.9, 0.999},
//	    Eps:   1e-8,
//	})
func Adam(config AdamConfig) GradientTransformation {
	config = config.withDefaults(1e-8, 0)
	return Chain(
		ScaleByAdam(config),
		scaleByLearningRate(config.LR, config.Schedule),
	)
}

// AdamWConfig extends AdamConfig with decoupled weight decay.
type AdamWConfig struct {
	AdamConfig
	WeightDecay float64 // Decay coefficient (default: 1e-4)
	Mask        MaskFn  // Leaves to decay; nil decays every leaf
}

// AdamW returns Adam with decoupled weight decay: the decay term is added
// to the rescaled update before the learning rate is applied.
//
// Reference: "Decoupled Weight Decay Regularization" (Loshchilov & Hutter, 2019)
func AdamW(config AdamWConfig) GradientTransformation {
	adam := config.AdamConfig.withDefaults(1e-8, 0)
	if config.WeightDecay == 0 {
		config.WeightDecay = 1e-4
	}
	return Chain(
		ScaleByAdam(adam),
		AddDecayedWeights(config.WeightDecay, config.Mask),
		scaleByLearningRate(adam.LR, adam.Schedule),
	)
}
