// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

// FiniteStats summarizes an ApplyIfFinite state.
type FiniteStats = optim.FiniteStats

// MultiSteps accumulates gradients over several calls.
type MultiSteps = optim.MultiSteps

// Hyperparams maps hyperparameter names to values.
type Hyperparams = optim.Hyperparams

// Factory builds a transformation from hyperparameter values.
type Factory = optim.Factory

// Lookahead parameter record keys.
const (
	LookaheadFast = optim.LookaheadFast
	LookaheadSlow = optim.LookaheadSlow
)

// Chain composes transformations left to right.
//
// Example:
//
//	tx := optim.Chain(
//	    optim.ClipByGlobalNorm(1),
//	    optim.ScaleByAdam(optim.AdamConfig{}),
//	    optim.Scale(-1e-3),
//	)
func Chain(transforms ...GradientTransformation) GradientTransformation {
	return optim.Chain(transforms...)
}

// StaticMask returns a MaskFn that always yields mask.
func StaticMask(mask tree.Node) MaskFn { return optim.StaticMask(mask) }

// MaskFromPaths selects the leaves whose dotted path satisfies keep.
func MaskFromPaths(keep func(path string) bool) MaskFn { return optim.MaskFromPaths(keep) }

// Masked applies inner to the selected leaves and passes the rest through.
func Masked(inner GradientTransformation, mask MaskFn) GradientTransformation {
	return optim.Masked(inner, mask)
}

// ApplyEvery emits the sum of the last k updates every k steps and zeros otherwise.
func ApplyEvery(k int) GradientTransformation { return optim.ApplyEvery(k) }

// ApplyIfFinite skips non-finite updates, erroring after
// maxConsecutiveErrors in a row.
func ApplyIfFinite(inner GradientTransformation, maxConsecutiveErrors int) GradientTransformation {
	return optim.ApplyIfFinite(inner, maxConsecutiveErrors)
}

// NonFiniteStats reads the counters of an ApplyIfFinite state.
func NonFiniteStats(state tree.Node) (FiniteStats, error) { return optim.NonFiniteStats(state) }

// MaybeUpdate runs inner only on steps where shouldUpdate is true.
func MaybeUpdate(inner GradientTransformation, shouldUpdate func(step int64) bool) GradientTransformation {
	return optim.MaybeUpdate(inner, shouldUpdate)
}

// Flatten runs inner on the concatenation of all leaves.
func Flatten(inner GradientTransformation) GradientTransformation { return optim.Flatten(inner) }

// NewMultiSteps accumulates everyK(step) gradients before calling inner.
func NewMultiSteps(inner GradientTransformation, everyK schedule.Schedule, useGradMean bool) *MultiSteps {
	return optim.NewMultiSteps(inner, everyK, useGradMean)
}

// InjectHyperparams rebuilds the transformation each step from scheduled
// and static hyperparameters stored in state.
func InjectHyperparams(factory Factory, schedules map[string]schedule.Schedule, static Hyperparams) GradientTransformation {
	return optim.InjectHyperparams(factory, schedules, static)
}

// InjectedHyperparams reads the hyperparameters of an InjectHyperparams state.
func InjectedHyperparams(state tree.Node) (Hyperparams, error) {
	return optim.InjectedHyperparams(state)
}

// SetHyperparam overrides a stored hyperparameter.
func SetHyperparam(state tree.Node, name string, value float64) (tree.Node, error) {
	return optim.SetHyperparam(state, name, value)
}

// Lookahead wraps fast with a slow copy synchronized every syncPeriod steps.
// Params must be a LookaheadParams record.
func Lookahead(fast GradientTransformation, syncPeriod int, slowStepSize float64, resetState bool) GradientTransformation {
	return optim.Lookahead(fast, syncPeriod, slowStepSize, resetState)
}

// LookaheadParams pairs fast and slow parameters.
func LookaheadParams(fast, slow tree.Node) tree.Record { return optim.LookaheadParams(fast, slow) }

// InitSynced pairs params with a copy of itself.
func InitSynced(params tree.Node) tree.Record { return optim.InitSynced(params) }

// SlowParams extracts the slow parameters of a LookaheadParams record.
func SlowParams(params tree.Node) (tree.Node, error) { return optim.SlowParams(params) }
