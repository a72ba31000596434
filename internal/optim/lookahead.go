package optim

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tree"
)

// Keys of the record holding lookahead parameters.
const (
	LookaheadFast = "fast"
	LookaheadSlow = "slow"
)

// LookaheadParams pairs the fast and slow parameter copies in the record
// {fast, slow}. Updates produced by Lookahead have the same layout, so
// ApplyUpdates advances both copies at once.
func LookaheadParams(fast, slow tree.Node) tree.Record {
	return tree.NewRecord(
		tree.Field{Key: LookaheadFast, Value: fast},
		tree.Field{Key: LookaheadSlow, Value: slow},
	)
}

// InitSynced starts lookahead with both copies equal to params.
func InitSynced(params tree.Node) tree.Record {
	return LookaheadParams(params, params)
}

// SlowParams returns the slow copy, the parameters to evaluate with between
// synchronizations.
func SlowParams(params tree.Node) (tree.Node, error) {
	_, slow, err := splitLookahead(params)
	return slow, err
}

// Lookahead wraps a fast optimizer with the lookahead scheme. The fast
// optimizer steps the fast parameters every call; every syncPeriod calls
// the slow parameters move toward the fast ones and the fast parameters
// jump to the result:
//
//	slow = slow + slowStepSize * (fast - slow)
//	fast = slow
//
// Update takes gradients for the fast parameters and params built with
// LookaheadParams or InitSynced (required), and returns updates with the
// {fast, slow} layout. With resetState the fast optimizer's state is
// re-initialized at each synchronization. Panics if syncPeriod < 1.
//
// State: {fast_state, steps_since_sync}.
//
// Reference: "Lookahead Optimizer: k steps forward, 1 step back"
// (Zhang et al., 2019)
func Lookahead(fast GradientTransformation, syncPeriod int, slowStepSize float64, resetState bool) GradientTransformation {
	const name = "lookahead"
	if syncPeriod < 1 {
		panic(fmt.Sprintf("optim: lookahead sync period must be >= 1, got %d", syncPeriod))
	}
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			if err := requireParams(name, params); err != nil {
				return nil, err
			}
			fastParams, _, err := splitLookahead(params)
			if err != nil {
				return nil, err
			}
			s, err := fast.Init(fastParams)
			if err != nil {
				return nil, err
			}
			return lookaheadState(s, 0), nil
		},
		Update: func(updates, state, params tree.Node) (tree.Node, tree.Node, error) {
			if err := requireParams(name, params); err != nil {
				return nil, nil, err
			}
			rd := readState(name, state)
			fastState := rd.node("fast_state")
			steps := rd.count("steps_since_sync")
			if rd.err != nil {
				return nil, nil, rd.err
			}
			fastParams, slowParams, err := splitLookahead(params)
			if err != nil {
				return nil, nil, err
			}

			fastUpdates, fastState, err := fast.Update(updates, fastState, fastParams)
			if err != nil {
				return nil, nil, err
			}

			sync := 0.0
			if int(steps) == syncPeriod-1 {
				sync = 1
			}
			// diff is where the fast parameters land minus the slow ones.
			diff, err := zipElems3(fastParams, fastUpdates, slowParams, func(f, u, s float64) float64 {
				return f + u - s
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			slowUpdates, err := zipElems(slowParams, diff, func(_, d float64) float64 {
				return slowStepSize * sync * d
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			newFast, err := zipElems3(fastUpdates, slowUpdates, diff, func(u, su, d float64) float64 {
				// At a sync the fast parameters land on the new slow ones.
				return u + sync*(su-d)
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}

			if resetState && sync == 1 {
				if fastState, err = fast.Init(fastParams); err != nil {
					return nil, nil, err
				}
			}
			next := lookaheadState(fastState, int32((int(steps)+1)%syncPeriod))
			return LookaheadParams(newFast, slowUpdates), next, nil
		},
	}
}

func lookaheadState(fastState tree.Node, steps int32) tree.Record {
	return newState(
		field("fast_state", fastState),
		field("steps_since_sync", tree.Int32(steps)),
	)
}

func splitLookahead(params tree.Node) (fast, slow tree.Node, err error) {
	rec, ok := params.(tree.Record)
	if ok {
		fast, okFast := rec.Get(LookaheadFast)
		slow, okSlow := rec.Get(LookaheadSlow)
		if okFast && okSlow && rec.Len() == 2 {
			return fast, slow, nil
		}
	}
	return nil, nil, errors.Wrapf(tree.ErrStructureMismatch,
		"lookahead: params must be a {fast, slow} record built with LookaheadParams or InitSynced, got %s", kindName(params))
}
