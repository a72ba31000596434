package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// Scale multiplies every update by factor. Stateless.
func Scale(factor float64) GradientTransformation {
	return stateless(func(updates, _ tree.Node) (tree.Node, error) {
		return scaleTree(updates, factor), nil
	})
}

// ScaleBySchedule multiplies updates by sched(count), where count is the
// number of previous Update calls. State: {count}.
func ScaleBySchedule(sched schedule.Schedule) GradientTransformation {
	const name = "scale_by_schedule"
	return GradientTransformation{
		Init: func(tree.Node) (tree.Node, error) {
			return newState(field(keyCount, tree.Int32(0))), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			if rd.err != nil {
				return nil, nil, rd.err
			}
			out := scaleTree(updates, sched(int64(count)))
			return out, newState(field(keyCount, tree.Int32(safeIncrement(count)))), nil
		},
	}
}

// ScaleByTrustRatio rescales each leaf by ||param|| / ||update||, the layer
// trust ratio of LARS and LAMB. Norms are floored at minNorm; when either
// norm is zero the update passes unscaled. Requires params.
func ScaleByTrustRatio(minNorm float64) GradientTransformation {
	const name = "scale_by_trust_ratio"
	return stateless(func(updates, params tree.Node) (tree.Node, error) {
		if err := requireParams(name, params); err != nil {
			return nil, err
		}
		out, err := tree.Zip2(updates, params, func(u, p *tensor.RawTensor) *tensor.RawTensor {
			pnorm := safeNorm(p, minNorm)
			unorm := safeNorm(u, minNorm)
			ratio := 1.0
			if pnorm != 0 && unorm != 0 {
				ratio = pnorm / unorm
			}
			return tensor.Scale(u, ratio)
		})
		return out, errors.Wrap(err, name)
	})
}

// ScaleByParamNorm scales each leaf by the L2 norm of its parameter,
// floored at minScale. Requires params.
func ScaleByParamNorm(minScale float64) GradientTransformation {
	return scaleByParamStat("scale_by_param_norm", minScale, tensor.Norm)
}

// ScaleByParamRMS scales each leaf by the root mean square of its
// parameter, floored at minScale. Requires params.
func ScaleByParamRMS(minScale float64) GradientTransformation {
	return scaleByParamStat("scale_by_param_rms", minScale, func(p *tensor.RawTensor) float64 {
		return math.Sqrt(tensor.SumSquares(p) / float64(p.NumElements()))
	})
}

func scaleByParamStat(name string, minScale float64, stat func(*tensor.RawTensor) float64) GradientTransformation {
	return stateless(func(updates, params tree.Node) (tree.Node, error) {
		if err := requireParams(name, params); err != nil {
			return nil, err
		}
		out, err := tree.Zip2(updates, params, func(u, p *tensor.RawTensor) *tensor.RawTensor {
			return tensor.Scale(u, math.Max(stat(p), minScale))
		})
		return out, errors.Wrap(err, name)
	})
}
