package schedule

import (
	"fmt"
	"math"
	"strings"
)

// Interpolation selects how PiecewiseInterpolate moves between knots.
type Interpolation int

// Interpolation kinds.
const (
	InterpolateLinear Interpolation = iota
	InterpolateCosine
)

// String returns the interpolation name.
func (k Interpolation) String() string {
	switch k {
	case InterpolateLinear:
		return "linear"
	case InterpolateCosine:
		return "cosine"
	default:
		return "unknown"
	}
}

// ParseInterpolation parses "linear" or "cosine".
func ParseInterpolation(s string) (Interpolation, error) {
	switch strings.ToLower(s) {
	case "linear":
		return InterpolateLinear, nil
	case "cosine", "cos":
		return InterpolateCosine, nil
	default:
		return 0, fmt.Errorf("unknown interpolation %q", s)
	}
}

func (k Interpolation) between(start, end, pct float64) float64 {
	if k == InterpolateCosine {
		return end + (start-end)/2*(math.Cos(math.Pi*pct)+1)
	}
	return start + pct*(end-start)
}

// PiecewiseInterpolate moves between knot values instead of jumping.
// The first knot, with value init, sits at step -1, so step 0 is already
// past it. At each boundary b the value reaches the previous knot value times
// boundaries[b]. After the last boundary the final value is held.
func PiecewiseInterpolate(kind Interpolation, init float64, boundaries map[int64]float64) Schedule {
	steps, scales := sortedBoundaries(boundaries)

	// Knot i spans [bounds[i], bounds[i+1]) from values[i] to values[i+1].
	bounds := append([]int64{-1}, steps...)
	values := make([]float64, len(bounds))
	values[0] = init
	for i, s := range scales {
		values[i+1] = values[i] * s
	}

	return func(count int64) float64 {
		last := len(bounds) - 1
		if count >= bounds[last] {
			return values[last]
		}
		for i := 0; i < last; i++ {
			if count >= bounds[i] && count < bounds[i+1] {
				pct := float64(count-bounds[i]) / float64(bounds[i+1]-bounds[i])
				return kind.between(values[i], values[i+1], pct)
			}
		}
		return values[0]
	}
}

// OneCycleConfig configures the one-cycle schedules. Zero fields take the
// defaults noted per field.
type OneCycleConfig struct {
	TransitionSteps int64
	PeakValue       float64
	PctStart        float64 // default 0.3
	PctFinal        float64 // linear only, default 0.85
	DivFactor       float64 // default 25
	FinalDivFactor  float64 // default 1e4
}

func (c OneCycleConfig) withDefaults() OneCycleConfig {
	if c.PctStart == 0 {
		c.PctStart = 0.3
	}
	if c.PctFinal == 0 {
		c.PctFinal = 0.85
	}
	if c.DivFactor == 0 {
		c.DivFactor = 25
	}
	if c.FinalDivFactor == 0 {
		c.FinalDivFactor = 1e4
	}
	return c
}

// LinearOneCycle ramps linearly from peak/DivFactor to peak by PctStart of
// the steps, back down by PctFinal, then to the final value at the end.
// Panics if TransitionSteps is not positive.
func LinearOneCycle(cfg OneCycleConfig) Schedule {
	cfg = cfg.withDefaults()
	mustPositiveSteps(cfg.TransitionSteps)
	steps := float64(cfg.TransitionSteps)
	return PiecewiseInterpolate(InterpolateLinear, cfg.PeakValue/cfg.DivFactor, map[int64]float64{
		int64(cfg.PctStart * steps): cfg.DivFactor,
		int64(cfg.PctFinal * steps): 1 / cfg.DivFactor,
		cfg.TransitionSteps:         1 / cfg.FinalDivFactor,
	})
}

// CosineOneCycle ramps from peak/DivFactor to peak by PctStart of the steps
// with cosine interpolation, then anneals to peak/(DivFactor*FinalDivFactor).
// Panics if TransitionSteps is not positive.
func CosineOneCycle(cfg OneCycleConfig) Schedule {
	cfg = cfg.withDefaults()
	mustPositiveSteps(cfg.TransitionSteps)
	return PiecewiseInterpolate(InterpolateCosine, cfg.PeakValue/cfg.DivFactor, map[int64]float64{
		int64(cfg.PctStart * float64(cfg.TransitionSteps)): cfg.DivFactor,
		cfg.TransitionSteps: 1 / (cfg.DivFactor * cfg.FinalDivFactor),
	})
}

func mustPositiveSteps(steps int64) {
	if steps <= 0 {
		panic(fmt.Sprintf("schedule: one-cycle transition steps must be positive, got %d", steps))
	}
}
