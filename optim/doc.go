// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides composable gradient transformations.
//
// # Overview
//
// A GradientTransformation is a pair of pure functions:
//
//	Init(params) -> state
//	Update(updates, state, params) -> (updates', state')
//
// Update never mutates its arguments. State is itself a tree, so it can be
// inspected, stored with the serialization package and restored later.
//
// This package contains:
//   - Primitives: Trace, EMA, ScaleByAdam, ScaleByRSS, ScaleByRMS, ...
//   - Clipping and constraints: Clip, ClipByGlobalNorm, AdaptiveGradClip, ZeroNans
//   - Combinators: Chain, Masked, ApplyIfFinite, MaybeUpdate, Flatten, MultiSteps
//   - InjectHyperparams and Lookahead
//   - Aliases: SGD, Adam, AdamW, LAMB, RMSProp, ...
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/optix/optim"
//	    "github.com/born-ml/optix/tree"
//	)
//
//	func main() {
//	    params := tree.Dict(map[string]tree.Node{
//	        "w": tree.Floats([]float64{0.1, -0.2, 0.3}, 3),
//	        "b": tree.Scalar(0),
//	    })
//
//	    tx := optim.Chain(
//	        optim.ClipByGlobalNorm(1.0),
//	        optim.Adam(optim.AdamConfig{LR: 1e-3}),
//	    )
//	    state, _ := tx.Init(params)
//
//	    for step := range 100 {
//	        grads := computeGrads(params, step)
//	        updates, next, err := tx.Update(grads, state, params)
//	        if err != nil {
//	            log.Fatal(err)
//	        }
//	        params, _ = optim.ApplyUpdates(params, updates)
//	        state = next
//	    }
//	}
//
// # Schedules
//
// Aliases accept either a constant LR or a Schedule:
//
//	tx := optim.SGD(optim.SGDConfig{
//	    Schedule: schedule.WarmupCosineDecay(0, 0.1, 100, 1000, 0),
//	    Momentum: 0.9,
//	})
//
// # Errors
//
// Update errors wrap the sentinels below and tree.ErrStructureMismatch /
// tree.ErrShapeMismatch; match with errors.Is. Invalid constructor
// arguments, such as ApplyEvery(0), panic.
package optim
