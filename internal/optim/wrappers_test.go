package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/schedule"
	"github.com/born-ml/optix/internal/tree"
)

func TestApplyIfFinite(t *testing.T) {
	tx := optim.ApplyIfFinite(optim.Trace(0.5, false), 2)
	state := mustInit(t, tx, vec(0))

	out, state := mustUpdate(t, tx, vec(1), state, nil)
	assertValues(t, [][]float64{{1}}, out, tol)

	steps := []struct {
		update     float64
		wantCount  int32
		wantTotal  int32
		wantFailed bool
	}{
		{math.NaN(), 1, 1, false},
		{math.Inf(-1), 2, 2, false},
		{math.NaN(), 3, 3, true},
	}
	for i, s := range steps {
		out, next, err := tx.Update(vec(s.update), state, nil)
		if s.wantFailed {
			require.Error(t, err)
			assert.ErrorIs(t, err, optim.ErrNonFiniteBudgetExceeded)
		} else {
			require.NoError(t, err)
		}
		require.NotNil(t, next, "step %d", i)
		assertValues(t, [][]float64{{0}}, out, 0)

		stats, err := optim.NonFiniteStats(next)
		require.NoError(t, err)
		assert.Equal(t, optim.FiniteStats{LastFinite: false, NotFiniteCount: s.wantCount, TotalNotFinite: s.wantTotal}, stats)
		state = next
	}

	// The inner trace was untouched by the skipped steps.
	out, state = mustUpdate(t, tx, vec(2), state, nil)
	assertValues(t, [][]float64{{2.5}}, out, tol)
	stats, err := optim.NonFiniteStats(state)
	require.NoError(t, err)
	assert.Equal(t, optim.FiniteStats{LastFinite: true, NotFiniteCount: 0, TotalNotFinite: 3}, stats)
}

func TestApplyIfFiniteEscalatesThroughChain(t *testing.T) {
	tx := optim.Chain(optim.ApplyIfFinite(optim.Scale(1), 0), optim.Scale(-1))
	state := mustInit(t, tx, vec(0))
	out, next, err := tx.Update(vec(math.NaN()), state, nil)
	assert.ErrorIs(t, err, optim.ErrNonFiniteBudgetExceeded)
	assertValues(t, [][]float64{{0}}, out, 0)

	require.IsType(t, tree.Seq{}, next)
	stats, err := optim.NonFiniteStats(next.(tree.Seq)[0])
	require.NoError(t, err)
	assert.Equal(t, optim.FiniteStats{NotFiniteCount: 1, TotalNotFinite: 1}, stats)
}

func TestApplyIfFiniteCountersSurviveInjectedStack(t *testing.T) {
	tx := optim.InjectHyperparams(
		func(hp optim.Hyperparams) optim.GradientTransformation {
			return optim.Chain(
				optim.ClipByGlobalNorm(1),
				optim.ApplyIfFinite(optim.SGD(optim.SGDConfig{LR: hp["learning_rate"], Momentum: 0.9}), 1),
			)
		},
		nil,
		optim.Hyperparams{"learning_rate": 0.1},
	)
	state := mustInit(t, tx, vec(1))

	_, state = mustUpdate(t, tx, vec(1), state, vec(1))
	_, state = mustUpdate(t, tx, vec(math.NaN()), state, vec(1))
	_, next, err := tx.Update(vec(math.Inf(1)), state, vec(1))
	require.ErrorIs(t, err, optim.ErrNonFiniteBudgetExceeded)
	require.NotNil(t, next)

	hp, err := optim.InjectedHyperparams(next)
	require.NoError(t, err)
	assert.Equal(t, 0.1, hp["learning_rate"])

	inner := stateField(t, next, "inner_state").(tree.Seq)
	stats, err := optim.NonFiniteStats(inner[1])
	require.NoError(t, err)
	assert.Equal(t, optim.FiniteStats{NotFiniteCount: 2, TotalNotFinite: 2}, stats)

	count := stateField(t, next, "count").(tree.Leaf)
	assert.Equal(t, 3.0, count.Item())
}

func TestWrappersPassEscalationState(t *testing.T) {
	skip := optim.ApplyIfFinite(optim.Scale(1), 0)
	tests := []struct {
		name string
		tx   optim.GradientTransformation
	}{
		{"masked", optim.Masked(skip, optim.StaticMask(tree.Bool(true)))},
		{"maybe_update", optim.MaybeUpdate(skip, func(int64) bool { return true })},
		{"flatten", optim.Flatten(skip)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := mustInit(t, tt.tx, vec(0, 0))
			out, next, err := tt.tx.Update(vec(math.NaN(), 1), state, vec(0, 0))
			assert.ErrorIs(t, err, optim.ErrNonFiniteBudgetExceeded)
			require.NotNil(t, next)
			assertValues(t, [][]float64{{0, 0}}, out, 0)
		})
	}
}

func TestMaybeUpdate(t *testing.T) {
	tx := optim.MaybeUpdate(optim.Trace(0.5, false), func(step int64) bool { return step%2 == 0 })
	state := mustInit(t, tx, vec(0))

	want := []float64{1, 1, 1.5, 1, 1.75}
	for i, w := range want {
		var out tree.Node
		out, state = mustUpdate(t, tx, vec(1), state, nil)
		assert.InDelta(t, w, values(out)[0][0], tol, "step %d", i)
	}
}

func TestFlattenTreatsTreeAsOneLeaf(t *testing.T) {
	params := tree.Seq{vec(3), vec(4)}
	updates := tree.Seq{vec(1), vec(0)}

	perLeaf, _ := mustUpdate(t, optim.ScaleByTrustRatio(0), updates, tree.Empty{}, params)
	assertValues(t, [][]float64{{3}, {0}}, perLeaf, tol)

	flat := optim.Flatten(optim.ScaleByTrustRatio(0))
	out, _ := mustUpdate(t, flat, updates, mustInit(t, flat, params), params)
	assertValues(t, [][]float64{{5}, {0}}, out, tol)
}

func TestFlattenStateIsOneVector(t *testing.T) {
	tx := optim.Flatten(optim.Trace(0.9, false))
	params := tree.Seq{vec(1, 2), tree.Floats([]float64{1, 2, 3, 4}, 2, 2)}
	state := mustInit(t, tx, params)

	leaves := tree.Leaves(state)
	require.Len(t, leaves, 1)
	assert.Equal(t, 6, leaves[0].NumElements())

	out, _ := mustUpdate(t, tx, params, state, nil)
	assertValues(t, values(params), out, tol)
}

func TestMultiSteps(t *testing.T) {
	tests := []struct {
		name    string
		useMean bool
		want    float64
	}{
		{"mean", true, -2},
		{"sum", false, -6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := optim.NewMultiSteps(optim.Scale(-1), schedule.Constant(3), tt.useMean)
			state, err := ms.Init(vec(0))
			require.NoError(t, err)

			for i, g := range []float64{1, 2} {
				var out tree.Node
				out, state, err = ms.Update(vec(g), state, nil)
				require.NoError(t, err)
				assertValues(t, [][]float64{{0}}, out, 0)
				updated, err := ms.HasUpdated(state)
				require.NoError(t, err)
				assert.False(t, updated, "mini step %d", i)
			}

			out, state, err := ms.Update(vec(3), state, nil)
			require.NoError(t, err)
			assertValues(t, [][]float64{{tt.want}}, out, tol)
			updated, err := ms.HasUpdated(state)
			require.NoError(t, err)
			assert.True(t, updated)

			// The accumulator starts over.
			assertValues(t, [][]float64{{0}}, stateField(t, state, "acc_grads"), 0)
		})
	}
}

func TestMultiStepsInnerSeesOneStepPerGroup(t *testing.T) {
	ms := optim.NewMultiSteps(optim.ScaleByAdam(optim.AdamConfig{}), schedule.Constant(2), true)
	tx := ms.GradientTransformation()
	state := mustInit(t, tx, vec(0))
	for i := 0; i < 6; i++ {
		_, state = mustUpdate(t, tx, vec(1), state, nil)
	}
	inner := stateField(t, state, "inner_opt_state")
	assert.Equal(t, 3.0, stateField(t, inner, "count").(tree.Leaf).Item())
	assert.Equal(t, 3.0, stateField(t, state, "gradient_step").(tree.Leaf).Item())
}

func TestMultiStepsInvalidAccumulation(t *testing.T) {
	ms := optim.NewMultiSteps(optim.Scale(1), schedule.Constant(0), true)
	state, err := ms.Init(vec(0))
	require.NoError(t, err)
	_, _, err = ms.Update(vec(1), state, nil)
	assert.ErrorIs(t, err, optim.ErrInvalidAccumulation)
}

func TestInjectHyperparams(t *testing.T) {
	tx := optim.InjectHyperparams(
		func(hp optim.Hyperparams) optim.GradientTransformation {
			return optim.Chain(optim.AddDecayedWeights(hp["weight_decay"], nil), optim.Scale(-hp["learning_rate"]))
		},
		map[string]schedule.Schedule{
			"learning_rate": func(count int64) float64 { return 0.1 * float64(count+1) },
		},
		optim.Hyperparams{"weight_decay": 0.5},
	)
	params := vec(1)
	state := mustInit(t, tx, params)

	hp, err := optim.InjectedHyperparams(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"learning_rate", "weight_decay"}, hp.Names())
	assert.InDelta(t, 0.1, hp["learning_rate"], tol)

	out, state := mustUpdate(t, tx, vec(1), state, params)
	assertValues(t, [][]float64{{-0.15}}, out, tol)

	state, err = optim.SetHyperparam(state, "weight_decay", 0)
	require.NoError(t, err)
	out, state = mustUpdate(t, tx, vec(1), state, params)
	assertValues(t, [][]float64{{-0.2}}, out, tol)

	hp, err = optim.InjectedHyperparams(state)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, hp["learning_rate"], tol)
	assert.InDelta(t, 0.0, hp["weight_decay"], tol)
	assert.Equal(t, 2.0, stateField(t, state, "count").(tree.Leaf).Item())

	_, err = optim.SetHyperparam(state, "momentum", 0.9)
	assert.ErrorIs(t, err, optim.ErrUnknownHyperparam)
}

func TestInjectHyperparamsMatchesScheduledAdam(t *testing.T) {
	lr := schedule.Linear(1e-2, 1e-3, 5, 0)
	injected := optim.InjectHyperparams(
		func(hp optim.Hyperparams) optim.GradientTransformation {
			return optim.Adam(optim.AdamConfig{LR: hp["learning_rate"]})
		},
		map[string]schedule.Schedule{"learning_rate": lr},
		nil,
	)
	scheduled := optim.Adam(optim.AdamConfig{Schedule: lr})

	params := initParams()
	si, ss := mustInit(t, injected, params), mustInit(t, scheduled, params)
	for step := 0; step < 8; step++ {
		var a, b tree.Node
		a, si = mustUpdate(t, injected, perStepUpdates(), si, params)
		b, ss = mustUpdate(t, scheduled, perStepUpdates(), ss, params)
		assert.True(t, tree.AllClose(a, b, 1e-6, 0), "step %d", step)
	}
}

func TestLookahead(t *testing.T) {
	tx := optim.Lookahead(optim.Scale(-0.5), 2, 0.5, false)
	params := tree.Node(optim.InitSynced(vec(1)))
	state := mustInit(t, tx, params)

	// Step 1: only the fast copy moves.
	out, state := mustUpdate(t, tx, vec(1), state, params)
	params, err := optim.ApplyUpdates(params, out)
	require.NoError(t, err)
	fast, slow := lookaheadPair(t, params)
	assert.InDelta(t, 0.5, fast, tol)
	assert.InDelta(t, 1.0, slow, tol)

	// Step 2 synchronizes: slow moves halfway to the fast target 0 and the
	// fast copy lands on it.
	out, _ = mustUpdate(t, tx, vec(1), state, params)
	params, err = optim.ApplyUpdates(params, out)
	require.NoError(t, err)
	fast, slow = lookaheadPair(t, params)
	assert.InDelta(t, 0.5, slow, tol)
	assert.InDelta(t, slow, fast, tol)

	reported, err := optim.SlowParams(params)
	require.NoError(t, err)
	assertValues(t, [][]float64{{0.5}}, reported, tol)
}

func TestLookaheadResetsFastState(t *testing.T) {
	tx := optim.Lookahead(optim.Trace(0.9, false), 1, 0.5, true)
	params := tree.Node(optim.InitSynced(vec(1)))
	state := mustInit(t, tx, params)
	_, state = mustUpdate(t, tx, vec(1), state, params)
	fastState := stateField(t, state, "fast_state")
	assertValues(t, [][]float64{{0}}, stateField(t, fastState, "trace"), 0)
}

func TestLookaheadRequiresPairedParams(t *testing.T) {
	tx := optim.Lookahead(optim.Scale(-0.5), 2, 0.5, false)
	_, err := tx.Init(vec(1))
	assert.ErrorIs(t, err, tree.ErrStructureMismatch)

	_, err = tx.Init(nil)
	assert.ErrorIs(t, err, optim.ErrParamsRequired)

	assert.Panics(t, func() { optim.Lookahead(optim.Scale(1), 0, 0.5, false) })
}

func lookaheadPair(t *testing.T, params tree.Node) (fast, slow float64) {
	t.Helper()
	rec, ok := params.(tree.Record)
	require.True(t, ok)
	f, _ := rec.Get(optim.LookaheadFast)
	s, _ := rec.Get(optim.LookaheadSlow)
	return f.(tree.Leaf).Item(), s.(tree.Leaf).Item()
}
