// Package optim implements composable gradient transformations.
//
// This package provides:
//   - GradientTransformation: the Init/Update contract every optimizer
//     building block implements
//   - Primitives: momentum (Trace), adaptive moments (Adam, RMS, Yogi,
//     AdaBelief, RAdam, SM3), scaling, clipping, weight decay, noise
//   - Combinators: Chain, Masked, ApplyEvery, ApplyIfFinite, MaybeUpdate,
//     MultiSteps, InjectHyperparams, Lookahead
//   - Aliases: complete optimizers (SGD, Adam, AdamW, LAMB, ...) assembled
//     from the primitives
//
// Transformations are pure. State lives outside the transformation, in the
// tree returned by Init and by every Update call; Update never modifies its
// inputs. One GradientTransformation value may therefore be used from many
// goroutines at once, as long as each caller threads its own state.
//
// Example usage:
//
//	tx := optim.Chain(
//	    optim.ClipByGlobalNorm(1.0),
//	    optim.Adam(optim.AdamConfig{LR: 0.001}),
//	)
//	state, err := tx.Init(params)
//	if err != nil {
//	    return err
//	}
//
//	for step := range steps {
//	    grads := computeGrads(params, batch(step))
//	    updates, newState, err := tx.Update(grads, state, params)
//	    if err != nil {
//	        return err
//	    }
//	    params, err = optim.ApplyUpdates(params, updates)
//	    if err != nil {
//	        return err
//	    }
//	    state = newState
//	}
package optim

import (
	"github.com/born-ml/optix/internal/tree"
)

// InitFn builds the initial state for params. Stateless transformations
// return tree.Empty{} and accept nil params.
type InitFn func(params tree.Node) (tree.Node, error)

// UpdateFn transforms updates and returns them together with the successor
// state. params may be nil unless the transformation needs them, in which
// case it fails with ErrParamsRequired.
type UpdateFn func(updates, state, params tree.Node) (tree.Node, tree.Node, error)

// GradientTransformation pairs the two pure functions of a transformation.
//
// The value carries no state of its own. Init derives state from the
// initial parameters (shapes and dtypes follow the parameter leaves) and
// Update replaces it wholesale on every call.
type GradientTransformation struct {
	Init   InitFn
	Update UpdateFn

	// links holds the flattened members of a chain, nil otherwise.
	links []GradientTransformation
}

// Identity returns a transformation that passes updates through unchanged.
func Identity() GradientTransformation {
	return stateless(func(updates, _ tree.Node) (tree.Node, error) {
		return updates, nil
	})
}

// stateless lifts an update rule that needs no memory into a transformation
// whose state is tree.Empty{}.
func stateless(rule func(updates, params tree.Node) (tree.Node, error)) GradientTransformation {
	return GradientTransformation{
		Init: func(tree.Node) (tree.Node, error) {
			return tree.Empty{}, nil
		},
		Update: func(updates, _, params tree.Node) (tree.Node, tree.Node, error) {
			out, err := rule(updates, params)
			if err != nil {
				return nil, nil, err
			}
			return out, tree.Empty{}, nil
		},
	}
}
