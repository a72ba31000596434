// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import "github.com/born-ml/optix/internal/optim"

// Configs. Zero-valued fields select defaults.
type (
	SGDConfig      = optim.SGDConfig
	AdamConfig     = optim.AdamConfig
	AdamWConfig    = optim.AdamWConfig
	LAMBConfig     = optim.LAMBConfig
	AdaGradConfig  = optim.AdaGradConfig
	RAdamConfig    = optim.RAdamConfig
	RMSPropConfig  = optim.RMSPropConfig
	YogiConfig     = optim.YogiConfig
	SM3Config      = optim.SM3Config
	FromageConfig  = optim.FromageConfig
	NoisySGDConfig = optim.NoisySGDConfig
	DPSGDConfig    = optim.DPSGDConfig
)

// SGD creates stochastic gradient descent with optional (Nesterov) momentum.
//
// Example:
//
//	tx := optim.SGD(optim.SGDConfig{LR: 0.01, Momentum: 0.9})
func SGD(config SGDConfig) GradientTransformation { return optim.SGD(config) }

// Adam creates Adam with bias correction.
//
// Example:
//
//	tx := optim.Adam(optim.AdamConfig{LR: 1e-3, Betas: [2]float64{0.9, 0.999}})
func Adam(config AdamConfig) GradientTransformation { return optim.Adam(config) }

// AdamW creates Adam with decoupled weight decay.
func AdamW(config AdamWConfig) GradientTransformation { return optim.AdamW(config) }

// LAMB creates layer-wise adaptive Adam.
func LAMB(config LAMBConfig) GradientTransformation { return optim.LAMB(config) }

// AdaBelief creates AdaBelief.
func AdaBelief(config AdamConfig) GradientTransformation { return optim.AdaBelief(config) }

// AdaGrad creates AdaGrad.
func AdaGrad(config AdaGradConfig) GradientTransformation { return optim.AdaGrad(config) }

// RAdam creates rectified Adam.
func RAdam(config RAdamConfig) GradientTransformation { return optim.RAdam(config) }

// RMSProp creates RMSProp, optionally centered and with momentum.
func RMSProp(config RMSPropConfig) GradientTransformation { return optim.RMSProp(config) }

// Yogi creates Yogi.
func Yogi(config YogiConfig) GradientTransformation { return optim.Yogi(config) }

// SM3 creates SM3.
func SM3(config SM3Config) GradientTransformation { return optim.SM3(config) }

// Fromage creates Fromage.
func Fromage(config FromageConfig) GradientTransformation { return optim.Fromage(config) }

// NoisySGD creates SGD with annealed gradient noise.
func NoisySGD(config NoisySGDConfig) GradientTransformation { return optim.NoisySGD(config) }

// DPSGD creates differentially private SGD over per-example gradients.
func DPSGD(config DPSGDConfig) GradientTransformation { return optim.DPSGD(config) }
