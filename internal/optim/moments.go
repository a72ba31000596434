package optim

import (
	"math"

	"github.com/pkg/errors"

	"github.com/born-ml/optix/internal/tree"
)

// EMA tracks an exponential moving average of the updates and emits it.
// With debias, the output is divided by 1 - decay^t so the first step
// returns the first update exactly. State: {count, ema}.
func EMA(decay float64, debias bool) GradientTransformation {
	const name = "ema"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			ema, err := zerosFor(name, params)
			if err != nil {
				return nil, err
			}
			return newState(field(keyCount, tree.Int32(0)), field("ema", ema)), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			ema := rd.node("ema")
			if rd.err != nil {
				return nil, nil, rd.err
			}

			next, err := updateMoment(name, updates, ema, decay, 1)
			if err != nil {
				return nil, nil, err
			}
			count = safeIncrement(count)
			out := next
			if debias {
				out = biasCorrection(next, decay, count)
			}
			out, err = zipElems(updates, out, func(_, e float64) float64 { return e })
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field(keyCount, tree.Int32(count)), field("ema", next)), nil
		},
	}
}

// ScaleByRSS divides updates by the root of the running sum of squared
// updates, as in AdaGrad:
//
//	sos = sos + g²
//	out = g / sqrt(sos + eps)      where sos > 0, else 0
//
// State: {sum_of_squares}, initialized to initialAccumulator (0.1 in AdaGrad).
func ScaleByRSS(initialAccumulator, eps float64) GradientTransformation {
	const name = "scale_by_rss"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			sos, err := fullFor(name, params, initialAccumulator)
			if err != nil {
				return nil, err
			}
			return newState(field("sum_of_squares", sos)), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			sos := rd.node("sum_of_squares")
			if rd.err != nil {
				return nil, nil, rd.err
			}

			next, err := zipElems(sos, updates, func(s, g float64) float64 { return s + g*g })
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			out, err := zipElems(updates, next, func(g, s float64) float64 {
				if s > 0 {
					return g * rsqrt(s+eps)
				}
				return 0
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field("sum_of_squares", next)), nil
		},
	}
}

// ScaleByRMS divides updates by the root of an EMA of squared updates, as
// in RMSProp:
//
//	nu = decay * nu + (1-decay) * g²
//	out = g / sqrt(nu + eps)
//
// State: {nu}, initialized to initialScale.
func ScaleByRMS(decay, eps, initialScale float64) GradientTransformation {
	const name = "scale_by_rms"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			nu, err := fullFor(name, params, initialScale)
			if err != nil {
				return nil, err
			}
			return newState(field(keyNu, nu)), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			nu := rd.node(keyNu)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			next, err := updateMoment(name, updates, nu, decay, 2)
			if err != nil {
				return nil, nil, err
			}
			out, err := zipElems(updates, next, func(g, v float64) float64 { return g * rsqrt(v+eps) })
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field(keyNu, next)), nil
		},
	}
}

// ScaleByStddev divides updates by an estimate of their standard deviation,
// as in centered RMSProp:
//
//	mu = decay * mu + (1-decay) * g
//	nu = decay * nu + (1-decay) * g²
//	out = g / sqrt(nu - mu² + eps)
//
// State: {mu, nu}; nu starts at initialScale.
func ScaleByStddev(decay, eps, initialScale float64) GradientTransformation {
	const name = "scale_by_stddev"
	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			mu, err := zerosFor(name, params)
			if err != nil {
				return nil, err
			}
			return newState(field(keyMu, mu), field(keyNu, tree.FullLike(params, initialScale))), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			mu, nu := rd.node(keyMu), rd.node(keyNu)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			newMu, err := updateMoment(name, updates, mu, decay, 1)
			if err != nil {
				return nil, nil, err
			}
			newNu, err := updateMoment(name, updates, nu, decay, 2)
			if err != nil {
				return nil, nil, err
			}
			out, err := zipElems3(updates, newMu, newNu, func(g, m, v float64) float64 {
				return g * rsqrt(v-m*m+eps)
			})
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(field(keyMu, newMu), field(keyNu, newNu)), nil
		},
	}
}

// ScaleByBelief is the AdaBelief rescaling: like ScaleByAdam, but the second
// moment tracks the squared residual g - mu of the gradient around its
// running mean. Defaults: eps 1e-16, eps_root 1e-16.
//
// Reference: "AdaBelief Optimizer" (Zhuang et al., 2020)
func ScaleByBelief(config AdamConfig) GradientTransformation {
	config = config.withDefaults(1e-16, 1e-16)
	return scaleByMoments("scale_by_belief", config, 0, func(name string, updates, mu, nu tree.Node, b2 float64) (tree.Node, error) {
		residual, err := zipElems(updates, mu, func(g, m float64) float64 { return g - m })
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		return updateMoment(name, residual, nu, b2, 2)
	})
}

// YogiConfig holds configuration for Yogi.
type YogiConfig struct {
	AdamConfig
	InitialAccumulator float64 // Initial value of both moments (default: 1e-6)
}

// ScaleByYogi is the Yogi rescaling. The second moment moves additively
// toward g², which keeps the effective learning rate from growing quickly:
//
//	nu = nu - (1-beta2) * sign(nu - g²) * g²
//
// Defaults: betas [0.9, 0.999], eps 1e-3, eps_root 0.
//
// Reference: "Adaptive Methods for Nonconvex Optimization" (Zaheer et al., 2018)
func ScaleByYogi(config YogiConfig) GradientTransformation {
	adam := config.AdamConfig.withDefaults(1e-3, 0)
	initial := config.InitialAccumulator
	if initial == 0 {
		initial = 1e-6
	}
	return scaleByMoments("scale_by_yogi", adam, initial, func(name string, updates, _, nu tree.Node, b2 float64) (tree.Node, error) {
		next, err := zipElems(nu, updates, func(v, g float64) float64 {
			g2 := g * g
			return v - (1-b2)*sign(v-g2)*g2
		})
		return next, errors.Wrap(err, name)
	})
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	default:
		return 0
	}
}

// RAdamConfig holds configuration for RAdam.
type RAdamConfig struct {
	AdamConfig
	Threshold float64 // Minimum rho_t for the rectified step (default: 5)
}

// ScaleByRAdam is the rectified Adam rescaling. With
//
//	rho_inf = 2/(1-beta2) - 1
//	rho_t   = rho_inf - 2 t beta2^t / (1 - beta2^t)
//
// the update is the rectified Adam step
//
//	r = sqrt((rho_t-4)(rho_t-2) rho_inf / ((rho_inf-4)(rho_inf-2) rho_t))
//	out = r * m_hat / (sqrt(v_hat + eps_root) + eps)
//
// once rho_t >= Threshold, and the bias-corrected first moment m_hat before
// that, while the variance estimate is still unreliable. State: {count, mu, nu}.
//
// Reference: "On the Variance of the Adaptive Learning Rate and Beyond" (Liu et al., 2020)
func ScaleByRAdam(config RAdamConfig) GradientTransformation {
	const name = "scale_by_radam"
	adam := config.AdamConfig.withDefaults(1e-8, 0)
	threshold := config.Threshold
	if threshold == 0 {
		threshold = 5
	}
	b1, b2 := adam.Betas[0], adam.Betas[1]
	rhoInf := 2/(1-b2) - 1

	return GradientTransformation{
		Init: func(params tree.Node) (tree.Node, error) {
			zeros, err := zerosFor(name, params)
			if err != nil {
				return nil, err
			}
			return newState(
				field(keyCount, tree.Int32(0)),
				field(keyMu, zeros),
				field(keyNu, zeros),
			), nil
		},
		Update: func(updates, state, _ tree.Node) (tree.Node, tree.Node, error) {
			rd := readState(name, state)
			count := rd.count(keyCount)
			mu, nu := rd.node(keyMu), rd.node(keyNu)
			if rd.err != nil {
				return nil, nil, rd.err
			}

			newMu, err := updateMoment(name, updates, mu, b1, 1)
			if err != nil {
				return nil, nil, err
			}
			newNu, err := updateMoment(name, updates, nu, b2, 2)
			if err != nil {
				return nil, nil, err
			}
			count = safeIncrement(count)
			muHat := biasCorrection(newMu, b1, count)
			nuHat := biasCorrection(newNu, b2, count)

			t := float64(count)
			b2t := math.Pow(b2, t)
			rho := rhoInf - 2*t*b2t/(1-b2t)

			var out tree.Node
			if rho >= threshold {
				r := math.Sqrt((rho - 4) * (rho - 2) * rhoInf / ((rhoInf - 4) * (rhoInf - 2) * rho))
				out, err = zipElems3(updates, muHat, nuHat, func(_, m, v float64) float64 {
					return r * m / (math.Sqrt(v+adam.EpsRoot) + adam.Eps)
				})
			} else {
				out, err = zipElems(updates, muHat, func(_, m float64) float64 { return m })
			}
			if err != nil {
				return nil, nil, errors.Wrap(err, name)
			}
			return out, newState(
				field(keyCount, tree.Int32(count)),
				field(keyMu, newMu),
				field(keyNu, newNu),
			), nil
		},
	}
}
