package optim

import (
	"math"

	"github.com/born-ml/optix/internal/schedule"
)

// LAMBConfig holds configuration for LAMB.
type LAMBConfig struct {
	AdamConfig          // Eps defaults to 1e-6
	WeightDecay float64 // Decoupled weight decay coefficient (default: 0)
	Mask        MaskFn  // Leaves to decay; nil decays every leaf
}

// LAMB returns the layer-wise adaptive large batch optimizer: Adam moments,
// decoupled weight decay and a per-leaf trust ratio.
//
// Reference: "Large Batch Optimization for Deep Learning" (You et al., 2020)
func LAMB(config LAMBConfig) GradientTransformation {
	adam := config.AdamConfig.withDefaults(1e-6, 0)
	return Chain(
		ScaleByAdam(adam),
		AddDecayedWeights(config.WeightDecay, config.Mask),
		ScaleByTrustRatio(0),
		scaleByLearningRate(adam.LR, adam.Schedule),
	)
}

// AdaBelief returns the AdaBelief optimizer. Defaults: eps 1e-16,
// eps_root 1e-16.
func AdaBelief(config AdamConfig) GradientTransformation {
	config = config.withDefaults(1e-16, 1e-16)
	return Chain(
		ScaleByBelief(config),
		scaleByLearningRate(config.LR, config.Schedule),
	)
}

// AdaGradConfig holds configuration for AdaGrad.
type AdaGradConfig struct {
	LR                 float64           // Learning rate (default: 0.01)
	Schedule           schedule.Schedule // Learning rate schedule; overrides LR when set
	InitialAccumulator float64           // Initial sum of squares (default: 0.1)
	Eps                float64           // Added inside the root (default: 1e-7)
}

// AdaGrad returns AdaGrad: updates scaled by the root of the running sum of
// squared gradients.
//
// Reference: "Adaptive Subgradient Methods for Online Learning and
// Stochastic Optimization" (Duchi et al., 2011)
func AdaGrad(config AdaGradConfig) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.InitialAccumulator == 0 {
		config.InitialAccumulator = 0.1
	}
	if config.Eps == 0 {
		config.Eps = 1e-7
	}
	return Chain(
		ScaleByRSS(config.InitialAccumulator, config.Eps),
		scaleByLearningRate(config.LR, config.Schedule),
	)
}

// RAdam returns rectified Adam.
func RAdam(config RAdamConfig) GradientTransformation {
	adam := config.AdamConfig.withDefaults(1e-8, 0)
	config.AdamConfig = adam
	return Chain(
		ScaleByRAdam(config),
		scaleByLearningRate(adam.LR, adam.Schedule),
	)
}

// RMSPropConfig holds configuration for RMSProp.
type RMSPropConfig struct {
	LR           float64           // Learning rate (default: 0.01)
	Schedule     schedule.Schedule // Learning rate schedule; overrides LR when set
	Decay        float64           // Decay of the squared gradient average (default: 0.9)
	Eps          float64           // Added inside the root (default: 1e-8)
	InitialScale float64           // Initial value of the squared gradient average (default: 0)
	Centered     bool              // Normalize by the estimated variance instead of the second moment
	Momentum     float64           // Momentum applied after the learning rate (default: 0, none)
	Nesterov     bool              // Use Nesterov momentum
}

// RMSProp returns RMSProp, optionally centered and with momentum.
//
// Reference: Tieleman & Hinton, Lecture 6.5, COURSERA: Neural Networks for
// Machine Learning (2012)
func RMSProp(config RMSPropConfig) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Decay == 0 {
		config.Decay = 0.9
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	scaler := ScaleByRMS(config.Decay, config.Eps, config.InitialScale)
	if config.Centered {
		scaler = ScaleByStddev(config.Decay, config.Eps, config.InitialScale)
	}
	links := []GradientTransformation{scaler, scaleByLearningRate(config.LR, config.Schedule)}
	if config.Momentum != 0 {
		links = append(links, Trace(config.Momentum, config.Nesterov))
	}
	return Chain(links...)
}

// Yogi returns the Yogi optimizer. Defaults: eps 1e-3, initial
// accumulator 1e-6.
func Yogi(config YogiConfig) GradientTransformation {
	adam := config.AdamConfig.withDefaults(1e-3, 0)
	config.AdamConfig = adam
	return Chain(
		ScaleByYogi(config),
		scaleByLearningRate(adam.LR, adam.Schedule),
	)
}

// SM3Config holds configuration for SM3.
type SM3Config struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Decay of the update EMA (default: 0.9)
	Eps      float64 // Added inside the root (default: 1e-8)
}

// SM3 returns the SM3 optimizer with b2 = 1 (accumulating, not decaying,
// squared gradients).
func SM3(config SM3Config) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Momentum == 0 {
		config.Momentum = 0.9
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	return Chain(
		ScaleBySM3(config.Momentum, 1, config.Eps),
		Scale(-config.LR),
	)
}

// FromageConfig holds configuration for Fromage.
type FromageConfig struct {
	LR      float64 // Learning rate (default: 0.01)
	MinNorm float64 // Floor for the trust ratio norms (default: 1e-6)
}

// Fromage returns the Frobenius matched gradient descent optimizer: a trust
// ratio step followed by a shrink of the parameters by 1/sqrt(1+lr²).
//
// Reference: "On the distance between two neural networks and the stability
// of learning" (Bernstein et al., 2020)
func Fromage(config FromageConfig) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.MinNorm == 0 {
		config.MinNorm = 1e-6
	}
	mult := 1 / math.Sqrt(1+config.LR*config.LR)
	return Chain(
		ScaleByTrustRatio(config.MinNorm),
		Scale(-config.LR*mult),
		AddDecayedWeights(mult-1, nil),
	)
}

// NoisySGDConfig holds configuration for noisy SGD.
type NoisySGDConfig struct {
	LR       float64           // Learning rate (default: 0.01)
	Schedule schedule.Schedule // Learning rate schedule; overrides LR when set
	Eta      float64           // Initial noise variance (default: 0.01)
	Gamma    float64           // Noise annealing exponent (default: 0.55)
	Seed     uint64            // PRNG seed
}

// NoisySGD returns SGD with annealed Gaussian gradient noise added after
// the learning rate.
func NoisySGD(config NoisySGDConfig) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	if config.Eta == 0 {
		config.Eta = 0.01
	}
	if config.Gamma == 0 {
		config.Gamma = 0.55
	}
	return Chain(
		Trace(0, false),
		scaleByLearningRate(config.LR, config.Schedule),
		AddNoise(config.Eta, config.Gamma, config.Seed),
	)
}

// DPSGDConfig holds configuration for differentially private SGD.
type DPSGDConfig struct {
	LR              float64           // Learning rate (default: 0.01)
	Schedule        schedule.Schedule // Learning rate schedule; overrides LR when set
	L2NormClip      float64           // Per-example gradient clipping norm
	NoiseMultiplier float64           // Noise standard deviation relative to the clip
	Seed            uint64            // PRNG seed
	Momentum        float64           // Momentum factor (default: 0, none)
	Nesterov        bool              // Use Nesterov momentum
}

// DPSGD returns differentially private SGD. Updates must be per-example
// gradients with the batch on axis 0 of every leaf; see
// DifferentiallyPrivateAggregate.
func DPSGD(config DPSGDConfig) GradientTransformation {
	if config.LR == 0 {
		config.LR = 0.01
	}
	links := []GradientTransformation{
		DifferentiallyPrivateAggregate(config.L2NormClip, config.NoiseMultiplier, config.Seed),
	}
	if config.Momentum != 0 {
		links = append(links, Trace(config.Momentum, config.Nesterov))
	}
	links = append(links, scaleByLearningRate(config.LR, config.Schedule))
	return Chain(links...)
}
