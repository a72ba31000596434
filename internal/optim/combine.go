package optim

import (
	"strconv"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tree"
)

// Chain composes transformations sequentially: the updates of each one feed
// the next. The state is a tree.Seq holding one sub-state per member, in
// order.
//
// A link escalating ErrNonFiniteBudgetExceeded does not stop the chain: the
// remaining links run and the error is returned with the full state.
//
// Nested chains are spliced into their parent, so Chain(Chain(a, b), c) and
// Chain(a, Chain(b, c)) behave identically and share the flat state layout
// Seq{a, b, c}.
//
// Example:
//
//	tx := optim.Chain(
//	    optim.ClipByGlobalNorm(1.0),
//	    optim.ScaleByAdam(optim.AdamConfig{}),
//	    optim.Scale(-1e-3),
//	)
func Chain(transforms ...GradientTransformation) GradientTransformation {
	links := make([]GradientTransformation, 0, len(transforms))
	for _, t := range transforms {
		if t.links != nil {
			links = append(links, t.links...)
		} else {
			links = append(links, t)
		}
	}

	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			states := make(tree.Seq, len(links))
			for i, l := range links {
				s, err := l.Init(params)
				if err != nil {
					return nil, errors.Wrapf(err, "chain link %d", i)
				}
				states[i] = s
			}
			return states, nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			states, ok := state.(tree.Seq)
			if !ok || len(states) != len(links) {
				return nil, nil, errors.Wrapf(ErrInvalidState, "chain of %d: got %s state", len(links), describeSeq(state))
			}
			next := make(tree.Seq, len(links))
			var budgetErr error
			for i, l := range links {
				var err error
				updates, next[i], err = l.Update(updates, states[i], params)
				switch {
				case err == nil:
				case budgetExceeded(err, next[i]):
					budgetErr = errors.Wrapf(err, "chain link %d", i)
				default:
					return nil, nil, errors.Wrapf(err, "chain link %d", i)
				}
			}
			return updates, next, budgetErr
		},
		links: links,
	}
}

// budgetExceeded reports whether err is an ApplyIfFinite escalation that
// came with a usable state. Wrappers finish the step and return that state
// together with err, so the skip counters survive the failure.
func budgetExceeded(err error, state tree.Node) bool {
	return state != nil && errors.Is(err, ErrNonFiniteBudgetExceeded)
}

func describeSeq(n tree.Node) string {
	if s, ok := n.(tree.Seq); ok {
		return "seq of " + strconv.Itoa(len(s))
	}
	return kindName(n)
}
