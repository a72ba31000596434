package train

import (
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/optix/internal/tree"
)

// ErrUnknownObjective is returned by LookupObjective.
var ErrUnknownObjective = errors.New("train: unknown objective")

// Objective is a differentiable function of a parameter tree.
type Objective struct {
	Name string
	// Init returns the starting parameters.
	Init func() tree.Node
	// Eval returns the loss and its gradient, shaped like params.
	Eval func(params tree.Node) (float64, tree.Node, error)
}

var objectives = map[string]Objective{
	"quadratic":     Quadratic([]float64{1, 10, 100}),
	"rosenbrock":    Rosenbrock(),
	"least_squares": LeastSquares(),
}

// Objectives lists the registered objective names.
func Objectives() []string {
	names := make([]string, 0, len(objectives))
	for name := range objectives {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LookupObjective returns a registered objective by name.
func LookupObjective(name string) (Objective, error) {
	o, ok := objectives[name]
	if !ok {
		return Objective{}, errors.Wrapf(ErrUnknownObjective, "%q (have %v)", name, Objectives())
	}
	return o, nil
}

// Quadratic is f(x) = ½ Σ c_i x_i², started at x = 1. Spreading the
// curvatures c makes the problem ill-conditioned.
func Quadratic(curvature []float64) Objective {
	c := append([]float64(nil), curvature...)
	return Objective{
		Name: "quadratic",
		Init: func() tree.Node {
			x := make([]float64, len(c))
			floats.AddConst(1, x)
			return tree.Dict(map[string]tree.Node{"x": tree.Floats(x)})
		},
		Eval: func(params tree.Node) (float64, tree.Node, error) {
			x, err := vector(params, "x", len(c))
			if err != nil {
				return 0, nil, err
			}
			grad := make([]float64, len(x))
			floats.MulTo(grad, c, x)
			loss := floats.Dot(grad, x) / 2
			return loss, tree.Dict(map[string]tree.Node{"x": tree.Floats(grad)}), nil
		},
	}
}

// Rosenbrock is f(x, y) = (1-x)² + 100(y-x²)², started at (-1.5, 2).
func Rosenbrock() Objective {
	return Objective{
		Name: "rosenbrock",
		Init: func() tree.Node {
			return tree.Dict(map[string]tree.Node{"x": tree.Scalar(-1.5), "y": tree.Scalar(2)})
		},
		Eval: func(params tree.Node) (float64, tree.Node, error) {
			x, err := scalar(params, "x")
			if err != nil {
				return 0, nil, err
			}
			y, err := scalar(params, "y")
			if err != nil {
				return 0, nil, err
			}
			r := y - x*x
			loss := (1-x)*(1-x) + 100*r*r
			grads := tree.Dict(map[string]tree.Node{
				"x": tree.Scalar(-2*(1-x) - 400*x*r),
				"y": tree.Scalar(200 * r),
			})
			return loss, grads, nil
		},
	}
}

// lsqDesign and lsqTarget define a small linear regression problem with
// exact solution w = (1, -2, 0.5), bias = 0.25.
var (
	lsqDesign = mat.NewDense(6, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		1, 1, 0,
		0, 1, 1,
		1, -1, 2,
	})
	lsqTarget = []float64{1.25, -1.75, 0.75, -0.75, -1.25, 4.25}
)

// LeastSquares is the mean squared residual ½‖Aw + b - y‖²/n of a fixed
// regression problem, started at w = 0, bias = 0.
func LeastSquares() Objective {
	n, d := lsqDesign.Dims()
	return Objective{
		Name: "least_squares",
		Init: func() tree.Node {
			return tree.Dict(map[string]tree.Node{
				"w":    tree.Floats(make([]float64, d)),
				"bias": tree.Scalar(0),
			})
		},
		Eval: func(params tree.Node) (float64, tree.Node, error) {
			w, err := vector(params, "w", d)
			if err != nil {
				return 0, nil, err
			}
			bias, err := scalar(params, "bias")
			if err != nil {
				return 0, nil, err
			}

			var resid mat.VecDense
			resid.MulVec(lsqDesign, mat.NewVecDense(d, w))
			r := resid.RawVector().Data
			floats.AddConst(bias, r)
			floats.Sub(r, lsqTarget)

			loss := floats.Dot(r, r) / float64(2*n)
			var gw mat.VecDense
			gw.MulVec(lsqDesign.T(), mat.NewVecDense(n, r))
			gw.ScaleVec(1/float64(n), &gw)
			grads := tree.Dict(map[string]tree.Node{
				"w":    tree.Floats(append([]float64(nil), gw.RawVector().Data...)),
				"bias": tree.Scalar(floats.Sum(r) / float64(n)),
			})
			return loss, grads, nil
		},
	}
}

func field(params tree.Node, key string) (tree.Leaf, error) {
	rec, ok := params.(tree.Record)
	if !ok {
		return tree.Leaf{}, errors.Wrapf(tree.ErrStructureMismatch, "params: want record, got %v", params)
	}
	v, ok := rec.Get(key)
	if !ok {
		return tree.Leaf{}, errors.Wrapf(tree.ErrStructureMismatch, "params: missing %q", key)
	}
	l, ok := v.(tree.Leaf)
	if !ok {
		return tree.Leaf{}, errors.Wrapf(tree.ErrStructureMismatch, "params.%s: want leaf", key)
	}
	return l, nil
}

func vector(params tree.Node, key string, n int) ([]float64, error) {
	l, err := field(params, key)
	if err != nil {
		return nil, err
	}
	if l.NumElements() != n {
		return nil, errors.Wrapf(tree.ErrShapeMismatch, "params.%s: want %d elements, got %d", key, n, l.NumElements())
	}
	return l.Float64s(), nil
}

func scalar(params tree.Node, key string) (float64, error) {
	v, err := vector(params, key, 1)
	if err != nil {
		return 0, err
	}
	return v[0], nil
}
