package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/tensor"
	"github.com/born-ml/optix/internal/tree"
)

func stateField(t *testing.T, state tree.Node, key string) tree.Node {
	t.Helper()
	rec, ok := state.(tree.Record)
	require.True(t, ok, "state is %T", state)
	v, ok := rec.Get(key)
	require.True(t, ok, "missing %q in %v", key, rec.Keys())
	return v
}

func TestTrace(t *testing.T) {
	tests := []struct {
		name     string
		nesterov bool
		want     []float64
	}{
		{"heavy ball", false, []float64{1, 1.5, 1.75}},
		{"nesterov", true, []float64{1.5, 1.75, 1.875}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := optim.Trace(0.5, tt.nesterov)
			state := mustInit(t, tx, vec(0))
			for i, want := range tt.want {
				var out tree.Node
				out, state = mustUpdate(t, tx, vec(1), state, nil)
				assert.InDelta(t, want, values(out)[0][0], tol, "step %d", i)
			}
		})
	}
}

func TestScaleByAdamFirstStepIsSign(t *testing.T) {
	tx := optim.ScaleByAdam(optim.AdamConfig{})
	state := mustInit(t, tx, vec(0, 0))
	out, state := mustUpdate(t, tx, vec(2, -3), state, nil)
	assertValues(t, [][]float64{{1, -1}}, out, 1e-6)

	count := stateField(t, state, "count").(tree.Leaf)
	assert.Equal(t, tensor.Int32, count.DType())
	assert.Equal(t, 1.0, count.Item())
}

func TestAdamConfigZeroFieldsTakeDefaults(t *testing.T) {
	explicit := optim.ScaleByAdam(optim.AdamConfig{Betas: [2]float64{0.9, 0.999}, Eps: 1e-8})
	zero := optim.ScaleByAdam(optim.AdamConfig{Betas: [2]float64{0, 0.999}})

	s1 := mustInit(t, explicit, vec(0, 0))
	s2 := mustInit(t, zero, vec(0, 0))
	for _, g := range [][]float64{{1, -2}, {0.5, 3}, {-4, 1}} {
		var a, b tree.Node
		a, s1 = mustUpdate(t, explicit, vec(g...), s1, nil)
		b, s2 = mustUpdate(t, zero, vec(g...), s2, nil)
		assert.Equal(t, values(a), values(b))
	}
}

func TestSecondMomentScalers(t *testing.T) {
	tests := []struct {
		name string
		tx   optim.GradientTransformation
		g    float64
		want float64
	}{
		{"rss", optim.ScaleByRSS(0.1, 0), 3, 3 / math.Sqrt(9.1)},
		{"rms", optim.ScaleByRMS(0.9, 0, 0), 2, 2 / math.Sqrt(0.4)},
		{"stddev", optim.ScaleByStddev(0.9, 0, 0), 2, 2 / 0.6},
		{"belief", optim.ScaleByBelief(optim.AdamConfig{}), 2, 1},
		{
			"yogi",
			optim.ScaleByYogi(optim.YogiConfig{}),
			1,
			((0.9*1e-6 + 0.1) / 0.1) / (math.Sqrt((1e-6+0.001)/0.001) + 1e-3),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := mustInit(t, tt.tx, vec(0))
			out, _ := mustUpdate(t, tt.tx, vec(tt.g), state, nil)
			assert.InDelta(t, tt.want, values(out)[0][0], 1e-6)
		})
	}
}

func TestScaleByRSSZeroAccumulator(t *testing.T) {
	tx := optim.ScaleByRSS(0, 0)
	state := mustInit(t, tx, vec(0, 0))
	out, _ := mustUpdate(t, tx, vec(0, 2), state, nil)
	assertValues(t, [][]float64{{0, 1}}, out, tol)
}

func TestScaleByRAdam(t *testing.T) {
	tx := optim.ScaleByRAdam(optim.RAdamConfig{})
	state := mustInit(t, tx, vec(0, 0))

	// rho_1 = 1 is under the threshold: the step is the bias-corrected
	// first moment, which equals the gradient.
	out, state := mustUpdate(t, tx, vec(2, -3), state, nil)
	assertValues(t, [][]float64{{2, -3}}, out, tol)

	for step := 1; step < 20; step++ {
		out, state = mustUpdate(t, tx, vec(2, -3), state, nil)
		require.True(t, tree.AllFinite(out), "step %d", step)
	}
	// With a constant gradient the rectified step approaches Adam's sign
	// step from below.
	got := values(out)[0]
	assert.Greater(t, got[0], 0.0)
	assert.Less(t, got[0], 1.0)
	assert.Less(t, got[1], 0.0)
}

func TestScaleBySM3(t *testing.T) {
	tx := optim.ScaleBySM3(0.9, 1, 1e-8)
	params := tree.Floats(make([]float64, 6), 2, 3)
	state := mustInit(t, tx, params)

	sketch := tree.Leaves(stateField(t, state, "mu"))
	require.Len(t, sketch, 2)
	assert.Equal(t, tensor.Shape{2}, sketch[0].Shape())
	assert.Equal(t, tensor.Shape{3}, sketch[1].Shape())

	ones := tree.Floats([]float64{1, 1, 1, 1, 1, 1}, 2, 3)
	out, state := mustUpdate(t, tx, ones, state, nil)
	for _, x := range values(out)[0] {
		assert.InDelta(t, 0.1, x, 1e-6)
	}
	for _, v := range tree.Leaves(stateField(t, state, "mu")) {
		assert.InDeltaSlice(t, []float64{1, 1, 1}[:v.NumElements()], v.Float64s(), tol)
	}

	out, _ = mustUpdate(t, tx, ones, state, nil)
	want := 0.9*0.1 + 0.1/math.Sqrt(2)
	for _, x := range values(out)[0] {
		assert.InDelta(t, want, x, 1e-6)
	}
}

func TestScaleBySM3LowRankLeaves(t *testing.T) {
	tx := optim.ScaleBySM3(0.9, 1, 1e-8)
	params := tree.Seq{tree.Scalar(0), vec(0, 0, 0)}
	state := mustInit(t, tx, params)

	sketch := tree.Leaves(stateField(t, state, "mu"))
	require.Len(t, sketch, 2)
	assert.Equal(t, 0, sketch[0].Shape().Rank())
	assert.Equal(t, tensor.Shape{3}, sketch[1].Shape())

	out, state := mustUpdate(t, tx, tree.Seq{tree.Scalar(2), vec(0, 1, 2)}, state, nil)
	assertValues(t, [][]float64{{0.1}, {0, 0.1, 0.1}}, out, 1e-6)
	assertValues(t, [][]float64{{4}, {0, 1, 4}}, stateField(t, state, "mu"), tol)
}

func TestScaleByTrustRatio(t *testing.T) {
	tx := optim.ScaleByTrustRatio(0)
	out, _ := mustUpdate(t, tx, vec(0.6, 0.8), tree.Empty{}, vec(3, 4))
	assertValues(t, [][]float64{{3, 4}}, out, tol)

	// Zero parameter norm leaves the update unscaled.
	out, _ = mustUpdate(t, tx, vec(0.6, 0.8), tree.Empty{}, vec(0, 0))
	assertValues(t, [][]float64{{0.6, 0.8}}, out, tol)
}

func TestScaleByParamStats(t *testing.T) {
	params := vec(3, 4)
	out, _ := mustUpdate(t, optim.ScaleByParamNorm(1e-3), vec(1, 1), tree.Empty{}, params)
	assertValues(t, [][]float64{{5, 5}}, out, tol)

	out, _ = mustUpdate(t, optim.ScaleByParamNorm(10), vec(1, 1), tree.Empty{}, params)
	assertValues(t, [][]float64{{10, 10}}, out, tol)

	rms := math.Sqrt(12.5)
	out, _ = mustUpdate(t, optim.ScaleByParamRMS(1e-3), vec(1, 1), tree.Empty{}, params)
	assertValues(t, [][]float64{{rms, rms}}, out, tol)
}

func TestScaleBySchedule(t *testing.T) {
	tx := optim.ScaleBySchedule(func(count int64) float64 { return float64(count + 1) })
	state := mustInit(t, tx, nil)
	for step := 0; step < 3; step++ {
		var out tree.Node
		out, state = mustUpdate(t, tx, vec(2), state, nil)
		assert.InDelta(t, 2*float64(step+1), values(out)[0][0], tol)
	}
}

func TestClip(t *testing.T) {
	out, _ := mustUpdate(t, optim.Clip(1), vec(-3, 0.5, 2), tree.Empty{}, nil)
	assertValues(t, [][]float64{{-1, 0.5, 1}}, out, 0)
}

func TestClipByGlobalNorm(t *testing.T) {
	updates := tree.Seq{vec(3), vec(4)}
	assert.InDelta(t, 5.0, optim.GlobalNorm(updates), tol)

	out, _ := mustUpdate(t, optim.ClipByGlobalNorm(10), updates, tree.Empty{}, nil)
	assertValues(t, [][]float64{{3}, {4}}, out, 0)

	out, _ = mustUpdate(t, optim.ClipByGlobalNorm(1), updates, tree.Empty{}, nil)
	assertValues(t, [][]float64{{0.6}, {0.8}}, out, tol)
}

func TestAdaptiveGradClip(t *testing.T) {
	tx := optim.AdaptiveGradClip(0.1, 1e-3)

	out, _ := mustUpdate(t, tx, vec(6, 8), tree.Empty{}, vec(3, 4))
	assertValues(t, [][]float64{{0.3, 0.4}}, out, tol)

	out, _ = mustUpdate(t, tx, vec(0.03, 0.04), tree.Empty{}, vec(3, 4))
	assertValues(t, [][]float64{{0.03, 0.04}}, out, tol)

	// Rank 2: one unit per column.
	params := tree.Floats([]float64{3, 0, 4, 0}, 2, 2)
	grads := tree.Floats([]float64{6, 0, 8, 0}, 2, 2)
	out, _ = mustUpdate(t, tx, grads, tree.Empty{}, params)
	assertValues(t, [][]float64{{0.3, 0, 0.4, 0}}, out, tol)
}

func TestAdaptiveGradClipUnsupportedRank(t *testing.T) {
	shape := tensor.Shape{2, 2, 2, 2, 2}
	leaf := tree.NewLeaf(tensor.Zeros(shape, tensor.Float64))
	_, _, err := optim.AdaptiveGradClip(0.1, 1e-3).Update(leaf, tree.Empty{}, leaf)
	assert.ErrorIs(t, err, optim.ErrUnsupportedRank)
}

func TestAddDecayedWeights(t *testing.T) {
	out, _ := mustUpdate(t, optim.AddDecayedWeights(0.5, nil), vec(1, 1), tree.Empty{}, vec(2, -4))
	assertValues(t, [][]float64{{2, -1}}, out, tol)
}

func TestZeroNans(t *testing.T) {
	tx := optim.ZeroNans()
	params := tree.Seq{vec(0, 0), vec(0)}
	state := mustInit(t, tx, params)

	found, err := optim.FoundNaN(state)
	require.NoError(t, err)
	assert.False(t, found)

	out, state := mustUpdate(t, tx, tree.Seq{vec(1, math.NaN()), vec(math.Inf(1))}, state, nil)
	have := values(out)
	assert.Equal(t, []float64{1, 0}, have[0])
	assert.True(t, math.IsInf(have[1][0], 1))

	found, err = optim.FoundNaN(state)
	require.NoError(t, err)
	assert.True(t, found)
	flags := tree.Leaves(stateField(t, state, "found_nan"))
	assert.Equal(t, []bool{true}, flags[0].AsBool())
	assert.Equal(t, []bool{false}, flags[1].AsBool())

	_, state = mustUpdate(t, tx, tree.Seq{vec(1, 2), vec(3)}, state, nil)
	found, err = optim.FoundNaN(state)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestKeepParamsNonnegative(t *testing.T) {
	tx := optim.KeepParamsNonnegative()
	params := tree.Dict(map[string]tree.Node{"w": vec(1, 2), "b": vec(0.5)})
	state := mustInit(t, tx, params)

	updates := tree.Dict(map[string]tree.Node{"w": vec(-2, -1), "b": vec(0.1)})
	out, state := mustUpdate(t, tx, updates, state, params)
	assertValues(t, [][]float64{{0.1}, {-1, -1}}, out, tol)

	clamped, err := optim.ClampedLeaves(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, clamped)

	next, err := optim.ApplyUpdates(params, out)
	require.NoError(t, err)
	assertValues(t, [][]float64{{0.6}, {0, 1}}, next, tol)
}

func TestAddNoiseDeterministic(t *testing.T) {
	updates := vec(0, 0, 0)
	run := func(seed uint64) (tree.Node, tree.Node) {
		tx := optim.AddNoise(0.01, 0.55, seed)
		return mustUpdate(t, tx, updates, mustInit(t, tx, nil), nil)
	}

	a, stateA := run(42)
	b, _ := run(42)
	c, _ := run(43)
	assert.Equal(t, values(a), values(b))
	assert.NotEqual(t, values(a), values(c))
	assert.NotEqual(t, []float64{0, 0, 0}, values(a)[0])

	key := stateField(t, stateA, "rng_key").(tree.Leaf)
	assert.NotEqual(t, uint64(42), key.Uint64())

	// The advanced key yields fresh noise on the next call.
	tx := optim.AddNoise(0.01, 0.55, 42)
	next, _ := mustUpdate(t, tx, updates, stateA, nil)
	assert.NotEqual(t, values(a), values(next))
}

func TestDifferentiallyPrivateAggregate(t *testing.T) {
	perExample := tree.Seq{
		tree.Floats([]float64{3, 4, 3, 4, 3, 4, 3, 4}, 4, 2),
		vec(0, 0, 0, 0),
	}

	tx := optim.DifferentiallyPrivateAggregate(1, 0, 0)
	out, _ := mustUpdate(t, tx, perExample, mustInit(t, tx, nil), nil)
	leaves := tree.Leaves(out)
	require.Len(t, leaves, 2)
	assert.Equal(t, tensor.Shape{2}, leaves[0].Shape())
	assert.Equal(t, 0, leaves[1].Shape().Rank())
	assertValues(t, [][]float64{{0.6, 0.8}, {0}}, out, tol)

	noisy := optim.DifferentiallyPrivateAggregate(1, 1, 9)
	a, _ := mustUpdate(t, noisy, perExample, mustInit(t, noisy, nil), nil)
	b, _ := mustUpdate(t, noisy, perExample, mustInit(t, noisy, nil), nil)
	assert.Equal(t, values(a), values(b))
	assert.NotEqual(t, values(out), values(a))
}

func TestDifferentiallyPrivateAggregateBatchMismatch(t *testing.T) {
	tx := optim.DifferentiallyPrivateAggregate(1, 0, 0)
	_, _, err := tx.Update(tree.Seq{vec(1, 2), vec(1, 2, 3)}, mustInit(t, tx, nil), nil)
	assert.ErrorIs(t, err, optim.ErrBatchDimension)

	_, _, err = tx.Update(tree.Scalar(1), mustInit(t, tx, nil), nil)
	assert.ErrorIs(t, err, optim.ErrBatchDimension)
}

func TestInvalidStateIsRejected(t *testing.T) {
	for name, tx := range map[string]optim.GradientTransformation{
		"trace":         optim.Trace(0.9, false),
		"scale_by_adam": optim.ScaleByAdam(optim.AdamConfig{}),
		"ema":           optim.EMA(0.9, false),
		"add_noise":     optim.AddNoise(0.1, 0.5, 1),
	} {
		t.Run(name, func(t *testing.T) {
			_, _, err := tx.Update(vec(1), tree.Empty{}, vec(1))
			assert.ErrorIs(t, err, optim.ErrInvalidState)
		})
	}
}
