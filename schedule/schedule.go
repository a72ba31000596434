// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package schedule provides step-indexed hyperparameter schedules.
//
// Example:
//
//	lr := schedule.WarmupCosineDecay(0, 1e-3, 500, 10_000, 1e-5)
//	tx := optim.Adam(optim.AdamConfig{Schedule: lr})
package schedule

import "github.com/born-ml/optix/internal/schedule"

// Schedule returns the value of a hyperparameter at step count.
type Schedule = schedule.Schedule

// Config types.
type (
	ExponentialDecayConfig = schedule.ExponentialDecayConfig
	OneCycleConfig         = schedule.OneCycleConfig
	SGDRCycle              = schedule.SGDRCycle
	Interpolation          = schedule.Interpolation
)

// Interpolation kinds.
const (
	InterpolateLinear = schedule.InterpolateLinear
	InterpolateCosine = schedule.InterpolateCosine
)

// ParseInterpolation parses "linear" or "cosine".
func ParseInterpolation(s string) (Interpolation, error) { return schedule.ParseInterpolation(s) }

// Constant always yields v.
func Constant(v float64) Schedule { return schedule.Constant(v) }

// Polynomial decays from init to end with the given power.
func Polynomial(init, end, power float64, transitionSteps, transitionBegin int64) Schedule {
	return schedule.Polynomial(init, end, power, transitionSteps, transitionBegin)
}

// Linear interpolates from init to end over transitionSteps.
func Linear(init, end float64, transitionSteps, transitionBegin int64) Schedule {
	return schedule.Linear(init, end, transitionSteps, transitionBegin)
}

// PiecewiseConstant multiplies init by boundaries[b] once count reaches b.
func PiecewiseConstant(init float64, boundaries map[int64]float64) Schedule {
	return schedule.PiecewiseConstant(init, boundaries)
}

// PiecewiseInterpolate moves between knot values with the given interpolation.
func PiecewiseInterpolate(kind Interpolation, init float64, boundaries map[int64]float64) Schedule {
	return schedule.PiecewiseInterpolate(kind, init, boundaries)
}

// ExponentialDecay decays Init by DecayRate every TransitionSteps.
func ExponentialDecay(cfg ExponentialDecayConfig) Schedule { return schedule.ExponentialDecay(cfg) }

// CosineDecay anneals init to alpha*init over decaySteps.
func CosineDecay(init float64, decaySteps int64, alpha float64) Schedule {
	return schedule.CosineDecay(init, decaySteps, alpha)
}

// Join runs schedules one after another, restarting the count at each boundary.
func Join(schedules []Schedule, boundaries []int64) Schedule {
	return schedule.Join(schedules, boundaries)
}

// WarmupCosineDecay warms up linearly to peak, then cosine-decays to end.
func WarmupCosineDecay(init, peak float64, warmupSteps, decaySteps int64, end float64) Schedule {
	return schedule.WarmupCosineDecay(init, peak, warmupSteps, decaySteps, end)
}

// WarmupExponentialDecay warms up linearly to peak, then decays exponentially.
func WarmupExponentialDecay(init, peak float64, warmupSteps int64, decay ExponentialDecayConfig) Schedule {
	return schedule.WarmupExponentialDecay(init, peak, warmupSteps, decay)
}

// LinearOneCycle is the linear one-cycle policy.
func LinearOneCycle(cfg OneCycleConfig) Schedule { return schedule.LinearOneCycle(cfg) }

// CosineOneCycle is the cosine one-cycle policy.
func CosineOneCycle(cfg OneCycleConfig) Schedule { return schedule.CosineOneCycle(cfg) }

// SGDR chains warm restarts.
func SGDR(cycles []SGDRCycle) Schedule { return schedule.SGDR(cycles) }
