package cmd

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/train"
)

func validConfig(optimizer string) RunConfig {
	return RunConfig{
		Objective: "quadratic",
		Optimizer: optimizer,
		LR:        0.01,
		Steps:     50,
		LogEvery:  -1,
		Schedule:  scheduleConstant,
		DecayRate: 0.5,
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestValidateAggregatesErrors(t *testing.T) {
	err := RunConfig{Objective: "himmelblau", Optimizer: "lion", Schedule: "triangle"}.Validate()
	require.Error(t, err)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	// objective, optimizer, lr, steps, schedule
	assert.Len(t, merr.Errors, 5)
	assert.ErrorIs(t, err, train.ErrUnknownObjective)
}

func TestValidateSchedules(t *testing.T) {
	cfg := validConfig("sm3")
	cfg.Schedule = scheduleCosine
	assert.Error(t, cfg.Validate())

	cfg.Optimizer = "sgd"
	assert.NoError(t, cfg.Validate())

	cfg.Schedule = scheduleWarmupCosine
	cfg.WarmupSteps = 50
	assert.Error(t, cfg.Validate())
}

func TestEveryOptimizerDescends(t *testing.T) {
	obj, err := train.LookupObjective("quadratic")
	require.NoError(t, err)
	for _, name := range optimizerNames() {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig(name)
			require.NoError(t, cfg.Validate())
			res, err := train.New(buildOptimizer(cfg), obj, train.Config{Steps: cfg.Steps, LogEvery: -1}).
				Run(context.Background(), obj.Init(), nil)
			require.NoError(t, err)
			assert.Less(t, res.Final, res.Losses[0])

			hp, err := optim.InjectedHyperparams(res.State)
			require.NoError(t, err)
			assert.InDelta(t, 0.01, hp["learning_rate"], 1e-12)
		})
	}
}

func TestBuildOptimizerWrappers(t *testing.T) {
	cfg := validConfig("adam")
	cfg.ClipNorm = 1
	cfg.SkipNonFinite = 2
	tx := buildOptimizer(cfg)

	obj, err := train.LookupObjective("quadratic")
	require.NoError(t, err)
	res, err := train.New(tx, obj, train.Config{Steps: 10, LogEvery: -1}).Run(context.Background(), obj.Init(), nil)
	require.NoError(t, err)
	assert.Less(t, res.Final, res.Losses[0])
}

func TestLearningRateSchedules(t *testing.T) {
	cfg := validConfig("sgd")
	cfg.LR = 0.1
	cfg.Steps = 100

	tests := []struct {
		schedule string
		count    int64
		want     float64
	}{
		{scheduleConstant, 70, 0.1},
		{scheduleCosine, 0, 0.1},
		{scheduleCosine, 100, 0},
		{scheduleWarmupCosine, 0, 0},
		{scheduleWarmupCosine, 10, 0.1},
		{scheduleExponential, 10, 0.05},
		{scheduleOneCycle, 30, 0.1},
		{scheduleOneCycle, 100, 0.1 / 25 / 1e4},
	}
	for _, tt := range tests {
		c := cfg
		c.Schedule = tt.schedule
		c.WarmupSteps = 10
		assert.InDelta(t, tt.want, learningRate(c)(tt.count), 1e-12, "%s at %d", tt.schedule, tt.count)
	}

	// The warmup knot sits at step -1, so step 0 is already 1/31 up the ramp.
	c := cfg
	c.Schedule = scheduleOneCycle
	start, peak := 0.1/25, 0.1
	want := peak + (start-peak)/2*(math.Cos(math.Pi/31)+1)
	assert.InDelta(t, want, learningRate(c)(0), 1e-12)
	assert.Greater(t, learningRate(c)(0), start)
}

func TestParseRuns(t *testing.T) {
	runs, err := parseRuns([]byte(`
runs:
  - name: adamw-decay
    optimizer: adamw
    lr: 0.05
    weight-decay: 0.01
  - optimizer: sgd
    momentum: 0.9
    nesterov: true
`))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "adamw-decay", runs[0].label())
	assert.Equal(t, 0.01, runs[0].WeightDecay)
	assert.True(t, runs[1].Nesterov)

	merged := runs[1].inherit(validConfig("adam"))
	assert.Equal(t, "sgd", merged.Optimizer)
	assert.Equal(t, "quadratic", merged.Objective)
	assert.Equal(t, 0.01, merged.LR)

	_, err = parseRuns([]byte("runs: []"))
	assert.Error(t, err)
}

func TestTrainCommandCheckpointAndResume(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ckpt")
	args := []string{"train", "--objective", "quadratic", "--optimizer", "adam", "--steps", "20", "--log-every", "-1", "--checkpoint", dir}

	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "adam on quadratic")
	assert.Contains(t, out, "after 20 steps")
	assert.FileExists(t, filepath.Join(dir, paramsFile))
	assert.FileExists(t, filepath.Join(dir, stateFile))

	out, err = execute(t, append(args, "--resume")...)
	require.NoError(t, err)
	assert.Contains(t, out, "after 40 steps")
}

func TestTrainCommandRejectsBadConfig(t *testing.T) {
	_, err := execute(t, "train", "--optimizer", "lion", "--lr", "-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lion")
	assert.Contains(t, err.Error(), "lr must be positive")
}

func TestTrainCommandReadsConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "optix.yaml")
	require.NoError(t, os.WriteFile(path, []byte("optimizer: sgd\nlr: 0.05\nmomentum: 0.9\nsteps: 10\nlog-every: -1\n"), 0o600))

	out, err := execute(t, "train", "--config", path, "--objective", "quadratic")
	require.NoError(t, err)
	assert.Contains(t, out, "sgd on quadratic")
	assert.Contains(t, out, "after 10 steps")

	t.Setenv("OPTIX_OPTIMIZER", "rmsprop")
	out, err = execute(t, "train", "--config", path, "--objective", "quadratic")
	require.NoError(t, err)
	assert.Contains(t, out, "rmsprop on quadratic")
}

func TestCompareCommand(t *testing.T) {
	out, err := execute(t, "compare", "--objective", "quadratic", "--optimizers", "sgd,adam", "--steps", "30", "--log-every", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "final")
	assert.Contains(t, out, "sgd")
	assert.Contains(t, out, "adam")
	assert.NotContains(t, out, statusDiverged)
}

func TestCompareReportsDivergence(t *testing.T) {
	out, err := execute(t, "compare", "--objective", "quadratic", "--optimizers", "sgd", "--lr", "1", "--steps", "200", "--log-every", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, statusDiverged)
}

func TestCompareRunsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runs:\n  - name: slow-adam\n    optimizer: adam\n    lr: 0.001\n  - name: fast-adam\n    optimizer: adam\n    lr: 0.05\n"), 0o600))

	out, err := execute(t, "compare", "--runs", path, "--objective", "rosenbrock", "--steps", "40", "--log-every", "-1")
	require.NoError(t, err)
	assert.Contains(t, out, "slow-adam")
	assert.Contains(t, out, "fast-adam")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version": "`+Version+`"`)

	out, err = execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)

	_, err = execute(t, "version", "-o", "xml")
	assert.Error(t, err)
}
