package optim

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tree"
)

// ApplyUpdates adds updates to params leaf by leaf. Each result leaf keeps
// the dtype of its parameter, so float32 parameters stay float32 even when
// the updates were computed in float64.
func ApplyUpdates(params, updates tree.Node) (tree.Node, error) {
	out, err := zipElems(params, updates, func(p, u float64) float64 { return p + u })
	if err != nil {
		return nil, errors.Wrap(err, "apply updates")
	}
	return out, nil
}

// IncrementalUpdate moves old toward new:
//
//	stepSize*new + (1-stepSize)*old
//
// This is the Polyak averaging step used for target networks.
func IncrementalUpdate(newTree, oldTree tree.Node, stepSize float64) (tree.Node, error) {
	out, err := zipElems(newTree, oldTree, func(n, o float64) float64 {
		return stepSize*n + (1-stepSize)*o
	})
	if err != nil {
		return nil, errors.Wrap(err, "incremental update")
	}
	return out, nil
}

// PeriodicUpdate returns newTree when steps is a multiple of period and
// oldTree otherwise. Panics if period < 1.
func PeriodicUpdate(newTree, oldTree tree.Node, steps int64, period int64) (tree.Node, error) {
	if period < 1 {
		panic(fmt.Sprintf("optim: update period must be >= 1, got %d", period))
	}
	if err := tree.CheckCompatible(newTree, oldTree); err != nil {
		return nil, errors.Wrap(err, "periodic update")
	}
	if steps%period == 0 {
		return newTree, nil
	}
	return oldTree, nil
}
