// Package schedule provides step-indexed hyperparameter schedules.
//
// A Schedule maps a step count to a value. Schedules are pure: they keep no
// state and return the same value for the same count, so they can be shared
// freely between optimizers and goroutines.
package schedule

import (
	"fmt"
	"math"
	"sort"
)

// Schedule returns the value of a hyperparameter at step count.
// Counts are non-negative; negative counts are treated as 0.
type Schedule func(count int64) float64

// Constant returns a schedule that always yields v.
func Constant(v float64) Schedule {
	return func(int64) float64 { return v }
}

// Polynomial decays from init to end over transitionSteps steps, starting at
// transitionBegin:
//
//	(init - end) * (1 - t/transitionSteps)^power + end
//
// with t clamped to [0, transitionSteps]. A non-positive transitionSteps
// yields the constant init.
func Polynomial(init, end, power float64, transitionSteps, transitionBegin int64) Schedule {
	if transitionSteps <= 0 {
		return Constant(init)
	}
	return func(count int64) float64 {
		t := clampCount(count-transitionBegin, transitionSteps)
		frac := 1 - float64(t)/float64(transitionSteps)
		return (init-end)*math.Pow(frac, power) + end
	}
}

// Linear interpolates from init to end over transitionSteps steps.
func Linear(init, end float64, transitionSteps, transitionBegin int64) Schedule {
	return Polynomial(init, end, 1, transitionSteps, transitionBegin)
}

// PiecewiseConstant starts at init and multiplies the value by
// boundaries[b] once count reaches b. Boundaries apply in ascending order.
func PiecewiseConstant(init float64, boundaries map[int64]float64) Schedule {
	steps, scales := sortedBoundaries(boundaries)
	return func(count int64) float64 {
		v := init
		for i, b := range steps {
			if count < b {
				break
			}
			v *= scales[i]
		}
		return v
	}
}

// ExponentialDecayConfig configures ExponentialDecay.
type ExponentialDecayConfig struct {
	Init            float64
	TransitionSteps int64
	DecayRate       float64
	TransitionBegin int64
	// Staircase decays in discrete intervals of TransitionSteps.
	Staircase bool
	// EndValue, if set, bounds the value: a lower bound when DecayRate < 1,
	// an upper bound otherwise.
	EndValue *float64
}

// ExponentialDecay returns init * rate^((count - begin) / transitionSteps).
// Before TransitionBegin the value is Init. A non-positive TransitionSteps
// yields the constant Init.
func ExponentialDecay(cfg ExponentialDecayConfig) Schedule {
	if cfg.TransitionSteps <= 0 {
		return Constant(cfg.Init)
	}
	return func(count int64) float64 {
		elapsed := count - cfg.TransitionBegin
		if elapsed <= 0 {
			return cfg.Init
		}
		p := float64(elapsed) / float64(cfg.TransitionSteps)
		if cfg.Staircase {
			p = math.Floor(p)
		}
		v := cfg.Init * math.Pow(cfg.DecayRate, p)
		if cfg.EndValue != nil {
			if cfg.DecayRate < 1 {
				v = math.Max(v, *cfg.EndValue)
			} else {
				v = math.Min(v, *cfg.EndValue)
			}
		}
		return v
	}
}

// CosineDecay anneals init with a half cosine over decaySteps down to
// alpha*init, then stays there. Panics if decaySteps is not positive.
func CosineDecay(init float64, decaySteps int64, alpha float64) Schedule {
	if decaySteps <= 0 {
		panic(fmt.Sprintf("schedule: cosine decay steps must be positive, got %d", decaySteps))
	}
	return func(count int64) float64 {
		t := clampCount(count, decaySteps)
		cosine := 0.5 * (1 + math.Cos(math.Pi*float64(t)/float64(decaySteps)))
		return init * ((1-alpha)*cosine + alpha)
	}
}

// Join runs schedules[0] until boundaries[0], then schedules[1] restarted
// from count 0, and so on. len(boundaries) must be len(schedules)-1 and
// boundaries must be ascending.
func Join(schedules []Schedule, boundaries []int64) Schedule {
	if len(schedules) == 0 || len(boundaries) != len(schedules)-1 {
		panic(fmt.Sprintf("schedule: join needs len(boundaries) == len(schedules)-1, got %d and %d", len(boundaries), len(schedules)))
	}
	if !sort.SliceIsSorted(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] }) {
		panic(fmt.Sprintf("schedule: join boundaries must be ascending, got %v", boundaries))
	}
	return func(count int64) float64 {
		for i := len(boundaries) - 1; i >= 0; i-- {
			if count >= boundaries[i] {
				return schedules[i+1](count - boundaries[i])
			}
		}
		return schedules[0](count)
	}
}

// WarmupCosineDecay warms up linearly from init to peak over warmupSteps,
// then cosine-decays to end by step decaySteps (which includes the warmup).
func WarmupCosineDecay(init, peak float64, warmupSteps, decaySteps int64, end float64) Schedule {
	alpha := 0.0
	if peak != 0 {
		alpha = end / peak
	}
	return Join([]Schedule{
		Linear(init, peak, warmupSteps, 0),
		CosineDecay(peak, decaySteps-warmupSteps, alpha),
	}, []int64{warmupSteps})
}

// WarmupExponentialDecay warms up linearly from init to peak over
// warmupSteps, then decays exponentially as configured by decay, whose Init
// is replaced by peak.
func WarmupExponentialDecay(init, peak float64, warmupSteps int64, decay ExponentialDecayConfig) Schedule {
	decay.Init = peak
	return Join([]Schedule{
		Linear(init, peak, warmupSteps, 0),
		ExponentialDecay(decay),
	}, []int64{warmupSteps})
}

// SGDRCycle is one warm restart of an SGDR schedule.
type SGDRCycle struct {
	Init        float64
	Peak        float64
	WarmupSteps int64
	DecaySteps  int64
	End         float64
}

// SGDR chains warmup cosine decay cycles, each restarting after the
// previous cycle's DecaySteps.
func SGDR(cycles []SGDRCycle) Schedule {
	if len(cycles) == 0 {
		panic("schedule: SGDR needs at least one cycle")
	}
	schedules := make([]Schedule, len(cycles))
	boundaries := make([]int64, 0, len(cycles)-1)
	var offset int64
	for i, c := range cycles {
		schedules[i] = WarmupCosineDecay(c.Init, c.Peak, c.WarmupSteps, c.DecaySteps, c.End)
		offset += c.DecaySteps
		if i < len(cycles)-1 {
			boundaries = append(boundaries, offset)
		}
	}
	return Join(schedules, boundaries)
}

func clampCount(count, limit int64) int64 {
	return min(max(count, 0), limit)
}

func sortedBoundaries(boundaries map[int64]float64) ([]int64, []float64) {
	steps := make([]int64, 0, len(boundaries))
	for b := range boundaries {
		steps = append(steps, b)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	scales := make([]float64, len(steps))
	for i, b := range steps {
		scales[i] = boundaries[b]
	}
	return steps, scales
}
