// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

// GradientTransformation is an (Init, Update) pair.
type GradientTransformation = optim.GradientTransformation

// InitFn builds the initial state from params.
type InitFn = optim.InitFn

// UpdateFn maps (updates, state, params) to (updates', state').
type UpdateFn = optim.UpdateFn

// MaskFn builds a bool tree selecting leaves from params.
type MaskFn = optim.MaskFn

// Sentinel errors.
var (
	ErrParamsRequired          = optim.ErrParamsRequired
	ErrInvalidState            = optim.ErrInvalidState
	ErrInvalidAccumulation     = optim.ErrInvalidAccumulation
	ErrNonFiniteBudgetExceeded = optim.ErrNonFiniteBudgetExceeded
	ErrBatchDimension          = optim.ErrBatchDimension
	ErrUnsupportedRank         = optim.ErrUnsupportedRank
	ErrUnknownHyperparam       = optim.ErrUnknownHyperparam
)

// Moment primitives

// Identity passes updates through unchanged.
func Identity() GradientTransformation { return optim.Identity() }

// Scale multiplies updates by factor.
func Scale(factor float64) GradientTransformation { return optim.Scale(factor) }

// ScaleBySchedule multiplies updates by sched(count).
func ScaleBySchedule(sched schedule.Schedule) GradientTransformation {
	return optim.ScaleBySchedule(sched)
}

// Trace keeps a momentum buffer, optionally with Nesterov lookahead.
func Trace(decay float64, nesterov bool) GradientTransformation {
	return optim.Trace(decay, nesterov)
}

// EMA keeps an exponential moving average of updates.
func EMA(decay float64, debias bool) GradientTransformation { return optim.EMA(decay, debias) }

// ScaleByAdam rescales by bias-corrected first and second moments.
func ScaleByAdam(config AdamConfig) GradientTransformation { return optim.ScaleByAdam(config) }

// ScaleByRSS rescales by the root of the accumulated squared sum (AdaGrad).
func ScaleByRSS(initialAccumulator, eps float64) GradientTransformation {
	return optim.ScaleByRSS(initialAccumulator, eps)
}

// ScaleByRMS rescales by the root mean square of past updates.
func ScaleByRMS(decay, eps, initialScale float64) GradientTransformation {
	return optim.ScaleByRMS(decay, eps, initialScale)
}

// ScaleByStddev rescales by the centered standard deviation of past updates.
func ScaleByStddev(decay, eps, initialScale float64) GradientTransformation {
	return optim.ScaleByStddev(decay, eps, initialScale)
}

// ScaleByBelief rescales by the variance of the prediction error (AdaBelief).
func ScaleByBelief(config AdamConfig) GradientTransformation { return optim.ScaleByBelief(config) }

// ScaleByYogi rescales with Yogi's additive second-moment update.
func ScaleByYogi(config YogiConfig) GradientTransformation { return optim.ScaleByYogi(config) }

// ScaleByRAdam rescales with rectified Adam.
func ScaleByRAdam(config RAdamConfig) GradientTransformation { return optim.ScaleByRAdam(config) }

// ScaleBySM3 rescales with the memory-efficient SM3 accumulator.
func ScaleBySM3(b1, b2, eps float64) GradientTransformation { return optim.ScaleBySM3(b1, b2, eps) }

// ScaleByTrustRatio rescales each leaf by ‖param‖/‖update‖.
func ScaleByTrustRatio(minNorm float64) GradientTransformation {
	return optim.ScaleByTrustRatio(minNorm)
}

// ScaleByParamNorm multiplies updates by max(‖param‖, minScale).
func ScaleByParamNorm(minScale float64) GradientTransformation {
	return optim.ScaleByParamNorm(minScale)
}

// ScaleByParamRMS multiplies updates by max(rms(param), minScale).
func ScaleByParamRMS(minScale float64) GradientTransformation {
	return optim.ScaleByParamRMS(minScale)
}

// Clipping and constraints

// Clip clamps every element to [-maxDelta, maxDelta].
func Clip(maxDelta float64) GradientTransformation { return optim.Clip(maxDelta) }

// ClipByGlobalNorm rescales updates whose global norm exceeds maxNorm.
func ClipByGlobalNorm(maxNorm float64) GradientTransformation {
	return optim.ClipByGlobalNorm(maxNorm)
}

// AdaptiveGradClip clips unit-wise relative to parameter norms.
func AdaptiveGradClip(clipping, eps float64) GradientTransformation {
	return optim.AdaptiveGradClip(clipping, eps)
}

// AddDecayedWeights adds decay*params to the selected leaves.
func AddDecayedWeights(decay float64, mask MaskFn) GradientTransformation {
	return optim.AddDecayedWeights(decay, mask)
}

// AdditiveWeightDecay adds decay*params to every leaf.
func AdditiveWeightDecay(decay float64) GradientTransformation {
	return optim.AdditiveWeightDecay(decay)
}

// Centralize subtracts the per-output-unit mean of each rank>1 leaf.
func Centralize() GradientTransformation { return optim.Centralize() }

// ZeroNans replaces NaN elements with zero and records where they occurred.
func ZeroNans() GradientTransformation { return optim.ZeroNans() }

// FoundNaN reports whether the last ZeroNans call saw a NaN.
func FoundNaN(state tree.Node) (bool, error) { return optim.FoundNaN(state) }

// KeepParamsNonnegative stops updates from driving params below zero.
func KeepParamsNonnegative() GradientTransformation { return optim.KeepParamsNonnegative() }

// ClampedLeaves lists the leaves KeepParamsNonnegative clamped last step.
func ClampedLeaves(state tree.Node) ([]string, error) { return optim.ClampedLeaves(state) }

// Privacy and noise

// AddNoise adds annealed Gaussian noise.
func AddNoise(eta, gamma float64, seed uint64) GradientTransformation {
	return optim.AddNoise(eta, gamma, seed)
}

// DifferentiallyPrivateAggregate clips per-example gradients, adds noise
// and averages over the leading batch axis.
func DifferentiallyPrivateAggregate(l2NormClip, noiseMultiplier float64, seed uint64) GradientTransformation {
	return optim.DifferentiallyPrivateAggregate(l2NormClip, noiseMultiplier, seed)
}

// GlobalNorm returns the L2 norm over every leaf of n.
func GlobalNorm(n tree.Node) float64 { return optim.GlobalNorm(n) }

// Update application

// ApplyUpdates returns params + updates, keeping each param's dtype.
func ApplyUpdates(params, updates tree.Node) (tree.Node, error) {
	return optim.ApplyUpdates(params, updates)
}

// IncrementalUpdate returns stepSize*newTree + (1-stepSize)*oldTree.
func IncrementalUpdate(newTree, oldTree tree.Node, stepSize float64) (tree.Node, error) {
	return optim.IncrementalUpdate(newTree, oldTree, stepSize)
}

// PeriodicUpdate returns newTree every period steps and oldTree otherwise.
func PeriodicUpdate(newTree, oldTree tree.Node, steps, period int64) (tree.Node, error) {
	return optim.PeriodicUpdate(newTree, oldTree, steps, period)
}
