package optim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

// minimize runs tx on f(x) = ||x||²/2, whose gradient is x, and returns the
// final parameters.
func minimize(t *testing.T, tx optim.GradientTransformation, params tree.Node, steps int) tree.Node {
	t.Helper()
	state := mustInit(t, tx, params)
	for i := 0; i < steps; i++ {
		updates, next, err := tx.Update(params, state, params)
		require.NoError(t, err, "step %d", i)
		params, err = optim.ApplyUpdates(params, updates)
		require.NoError(t, err, "step %d", i)
		state = next
	}
	return params
}

func TestAliasesDescend(t *testing.T) {
	aliases := map[string]optim.GradientTransformation{
		"sgd":              optim.SGD(optim.SGDConfig{}),
		"sgd_momentum":     optim.SGD(optim.SGDConfig{Momentum: 0.9, Nesterov: true}),
		"sgd_schedule":     optim.SGD(optim.SGDConfig{Schedule: schedule.ExponentialDecay(schedule.ExponentialDecayConfig{Init: 0.05, TransitionSteps: 5, DecayRate: 0.5})}),
		"adam":             optim.Adam(optim.AdamConfig{LR: 0.01}),
		"adamw":            optim.AdamW(optim.AdamWConfig{AdamConfig: optim.AdamConfig{LR: 0.01}}),
		"lamb":             optim.LAMB(optim.LAMBConfig{AdamConfig: optim.AdamConfig{LR: 0.01}, WeightDecay: 0.01}),
		"adabelief":        optim.AdaBelief(optim.AdamConfig{LR: 0.01}),
		"adagrad":          optim.AdaGrad(optim.AdaGradConfig{}),
		"radam":            optim.RAdam(optim.RAdamConfig{AdamConfig: optim.AdamConfig{LR: 0.01}}),
		"rmsprop":          optim.RMSProp(optim.RMSPropConfig{}),
		"rmsprop_centered": optim.RMSProp(optim.RMSPropConfig{LR: 0.005, Centered: true, Momentum: 0.5}),
		"yogi":             optim.Yogi(optim.YogiConfig{AdamConfig: optim.AdamConfig{LR: 0.01}}),
		"sm3":              optim.SM3(optim.SM3Config{}),
		"fromage":          optim.Fromage(optim.FromageConfig{}),
		"noisy_sgd":        optim.NoisySGD(optim.NoisySGDConfig{LR: 0.05, Eta: 1e-6, Seed: 1}),
	}
	start := tree.Node(tree.Seq{vec(1, -2), tree.Float32s([]float64{0.5, 3})})
	for name, tx := range aliases {
		t.Run(name, func(t *testing.T) {
			final := minimize(t, tx, start, 30)
			assert.True(t, tree.AllFinite(final))
			assert.Less(t, optim.GlobalNorm(final), optim.GlobalNorm(start))
		})
	}
}

func TestSGDMatchesHandComputedSteps(t *testing.T) {
	tx := optim.SGD(optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	params := tree.Node(vec(2))
	state := mustInit(t, tx, params)

	// velocity 1 -> 1.9; params 2 -> 1.9 -> 1.71
	for _, want := range []float64{1.9, 1.71} {
		updates, next, err := tx.Update(vec(1), state, params)
		require.NoError(t, err)
		params, err = optim.ApplyUpdates(params, updates)
		require.NoError(t, err)
		state = next
		assert.InDelta(t, want, values(params)[0][0], tol)
	}
}

func TestSGDWithoutMomentumHasNoTrace(t *testing.T) {
	state := mustInit(t, optim.SGD(optim.SGDConfig{}), vec(1))
	assert.Equal(t, 0, tree.NumLeaves(state))

	state = mustInit(t, optim.SGD(optim.SGDConfig{Momentum: 0.9}), vec(1))
	assert.Equal(t, 1, tree.NumLeaves(state))
}

func TestAdamWMaskSkipsBias(t *testing.T) {
	tx := optim.AdamW(optim.AdamWConfig{
		AdamConfig:  optim.AdamConfig{LR: 1},
		WeightDecay: 0.5,
		Mask: optim.MaskFromPaths(func(path string) bool {
			return path != "bias"
		}),
	})
	params := tree.Dict(map[string]tree.Node{"bias": vec(2), "w": vec(2)})
	state := mustInit(t, tx, params)

	// A zero gradient leaves Adam's step at zero, so only decay remains.
	zero := tree.Dict(map[string]tree.Node{"bias": vec(0), "w": vec(0)})
	out, _ := mustUpdate(t, tx, zero, state, params)
	assertValues(t, [][]float64{{0}, {-1}}, out, tol)
}

func TestFromageShrinksWithoutGradient(t *testing.T) {
	tx := optim.Fromage(optim.FromageConfig{LR: 1})
	params := tree.Node(vec(3, 4))
	out, _ := mustUpdate(t, tx, vec(0, 0), mustInit(t, tx, params), params)

	// With zero gradient the trust ratio leaves zeros and the parameters
	// shrink by 1/sqrt(2).
	next, err := optim.ApplyUpdates(params, out)
	require.NoError(t, err)
	assertValues(t, [][]float64{{3 / 1.4142135623730951, 4 / 1.4142135623730951}}, next, 1e-12)
}

func TestDPSGD(t *testing.T) {
	tx := optim.DPSGD(optim.DPSGDConfig{LR: 0.1, L2NormClip: 1, NoiseMultiplier: 0, Momentum: 0.9})
	params := tree.Node(vec(0, 0))
	state := mustInit(t, tx, params)

	perExample := tree.Floats([]float64{3, 4, 30, 40}, 2, 2)
	out, _ := mustUpdate(t, tx, perExample, state, params)
	// Both examples clip to (0.6, 0.8); the mean is scaled by -lr.
	assertValues(t, [][]float64{{-0.06, -0.08}}, out, tol)
}
