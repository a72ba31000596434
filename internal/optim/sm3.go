package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

// ScaleBySM3 is the memory-efficient adaptive rescaling of SM3. Instead of
// one second-moment entry per element, each leaf keeps one vector per axis
// (the sketch). The accumulator of an element is rebuilt from the smallest
// sketch entry covering it:
//
//	acc = c * g² + b2 * min_i mu_i[coord_i]     c = 1-b2, or 1 when b2 == 1
//	up  = g / sqrt(acc + eps)                   where acc > 0, else 0
//	mu_i = max of acc over every axis except i
//	nu  = b1 * nu + (1-b1) * up
//
// and nu is emitted. Leaves of rank 0 and 1 keep a single sketch vector
// that stores acc directly.
//
// State: {mu, nu}; mu holds a tree.Seq of sketch vectors in place of each
// parameter leaf.
//
// Reference: "Memory-Efficient Adaptive Optimization" (Anil et al., 2019)
func ScaleBySM3(b1, b2, eps float64) GradientTransformation {
	const name = "scale_by_sm3"
	coeff := 1 - b2
	if b2 == 1 {
		coeff = 1
	}

	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			nu, err := zerosFor(name, params)
			if err != nil {
				return nil, err
			}
			mu := tree.Graft(params, func(p *tensor.RawTensor) tree.Node {
				if p.Shape().Rank() < 2 {
					return tree.Seq{tree.NewLeaf(tensor.ZerosLike(p))}
				}
				sketch := make(tree.Seq, p.Shape().Rank())
				for i, d := range p.Shape() {
					sketch[i] = tree.NewLeaf(tensor.Zeros(tensor.Shape{d}, p.DType()))
				}
				return sketch
			})
			return newState(field(keyMu, mu), field(keyNu, nu)), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			mu, nu := rd.node(keyMu), rd.node(keyNu)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			grads := tree.Leaves(updates)
			sketches := tree.Leaves(mu)
			scaled := make([]*tensor.RawTensor, len(grads))
			newSketches := make([][]*tensor.RawTensor, len(grads))
			next := 0
			for i, g := range grads {
				n := max(g.Shape().Rank(), 1)
				if next+n > len(sketches) {
					return nil, nil, errors.Wrapf(ErrInvalidState, "%s: sketch has too few vectors", name)
				}
				up, sketch, err := sm3Leaf(g, sketches[next:next+n], coeff, b2, eps)
				if err != nil {
					return nil, nil, errors.Wrapf(err, "%s: leaf %d", name, i)
				}
				scaled[i], newSketches[i] = up, sketch
				next += n
			}
			if next != len(sketches) {
				return nil, nil, errors.Wrapf(ErrInvalidState, "%s: sketch has %d vectors, updates need %d", name, len(sketches), next)
			}

			upTree, err := tree.Unflatten(updates, scaled)
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			newNu, err := updateMoment(name, upTree, nu, b1, 1)
			if err != nil {
				return nil, nil, err
			}
			out, err := zipElems(updates, newNu, func(_, v float64) float64 { return v })
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}

			leaf := 0
			newMu := tree.Graft(updates, func(*tensor.RawTensor) tree.Node {
				seq := make(tree.Seq, len(newSketches[leaf]))
				for j, v := range newSketches[leaf] {
					seq[j] = tree.NewLeaf(v)
				}
				leaf++
				return seq
			})
			return out, newState(field(keyMu, newMu), field(keyNu, newNu)), nil
		},
	}
}

// sm3Leaf computes the rescaled update and the next sketch for one leaf.
func sm3Leaf(g *tensor.RawTensor, sketch []*tensor.RawTensor, coeff, b2, eps float64) (*tensor.RawTensor, []*tensor.RawTensor, error) {
	shape := g.Shape()
	rank := shape.Rank()
	dtype := sketch[0].DType()

	var prev []float64
	if rank < 2 {
		if !sketch[0].Shape().Equal(shape) {
			return nil, nil, errors.Wrapf(ErrInvalidState, "sketch shape %v, leaf shape %v", sketch[0].Shape(), shape)
		}
		prev = sketch[0].Float64s()
	} else {
		for i, v := range sketch {
			if !v.Shape().Equal(tensor.Shape{shape[i]}) {
				return nil, nil, errors.Wrapf(ErrInvalidState, "sketch %d has shape %v, want [%d]", i, v.Shape(), shape[i])
			}
			col, err := v.Reshape(shape.AxisVector(i))
			if err != nil {
				return nil, nil, err
			}
			full, err := tensor.BroadcastTo(col, shape)
			if err != nil {
				return nil, nil, err
			}
			values := full.Float64s()
			if prev == nil {
				prev = values
				continue
			}
			for k, x := range values {
				prev[k] = math.Min(prev[k], x)
			}
		}
	}

	gv := g.Float64s()
	acc := make([]float64, len(gv))
	up := make([]float64, len(gv))
	for k, x := range gv {
		acc[k] = coeff*x*x + b2*prev[k]
		if acc[k] > 0 {
			up[k] = x * rsqrt(acc[k]+eps)
		}
	}

	upTensor, err := tensor.FromFloat64s(up, shape, g.DType())
	if err != nil {
		return nil, nil, err
	}
	accTensor, err := tensor.FromFloat64s(acc, shape, dtype)
	if err != nil {
		return nil, nil, err
	}
	if rank < 2 {
		return upTensor, []*tensor.RawTensor{accTensor}, nil
	}

	next := make([]*tensor.RawTensor, rank)
	for i := range next {
		m, err := tensor.MaxAxes(accTensor, tensor.OtherAxes(rank, i)...)
		if err != nil {
			return nil, nil, err
		}
		if next[i], err = m.Reshape(tensor.Shape{shape[i]}); err != nil {
			return nil, nil, err
		}
	}
	return upTensor, next, nil
}
