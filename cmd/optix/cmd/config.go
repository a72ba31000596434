package cmd

import (
	"fmt"
	"os"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/born-ml/optix/internal/train"
)

// Schedule kinds accepted by RunConfig.Schedule.
const (
	scheduleConstant     = "constant"
	scheduleCosine       = "cosine"
	scheduleWarmupCosine = "warmup-cosine"
	scheduleExponential  = "exponential"
	scheduleOneCycle     = "one-cycle"
)

var supportedSchedules = []string{
	scheduleConstant,
	scheduleCosine,
	scheduleWarmupCosine,
	scheduleExponential,
	scheduleOneCycle,
}

// RunConfig describes one optimization run. Keys match the command-line
// flags, so the same names work in a --config file, in a compare runs
// file and as OPTIX_* environment variables.
type RunConfig struct {
	Name          string  `yaml:"name" mapstructure:"name"`
	Objective     string  `yaml:"objective" mapstructure:"objective"`
	Optimizer     string  `yaml:"optimizer" mapstructure:"optimizer"`
	LR            float64 `yaml:"lr" mapstructure:"lr"`
	Momentum      float64 `yaml:"momentum" mapstructure:"momentum"`
	Nesterov      bool    `yaml:"nesterov" mapstructure:"nesterov"`
	WeightDecay   float64 `yaml:"weight-decay" mapstructure:"weight-decay"`
	Steps         int     `yaml:"steps" mapstructure:"steps"`
	LogEvery      int     `yaml:"log-every" mapstructure:"log-every"`
	Schedule      string  `yaml:"schedule" mapstructure:"schedule"`
	WarmupSteps   int64   `yaml:"warmup-steps" mapstructure:"warmup-steps"`
	DecayRate     float64 `yaml:"decay-rate" mapstructure:"decay-rate"`
	EndLR         float64 `yaml:"end-lr" mapstructure:"end-lr"`
	ClipNorm      float64 `yaml:"clip-norm" mapstructure:"clip-norm"`
	SkipNonFinite int     `yaml:"skip-nonfinite" mapstructure:"skip-nonfinite"`
	Seed          uint64  `yaml:"seed" mapstructure:"seed"`
}

// addRunFlags registers the RunConfig flags with their defaults.
func addRunFlags(fs *pflag.FlagSet) {
	fs.String("objective", "rosenbrock", fmt.Sprintf("objective to minimize, one of %v", train.Objectives()))
	fs.Float64("lr", 0.01, "learning rate (peak value for warmup schedules)")
	fs.Float64("momentum", 0, "momentum for sgd and rmsprop")
	fs.Bool("nesterov", false, "use Nesterov momentum")
	fs.Float64("weight-decay", 0, "weight decay for adamw and lamb")
	fs.Int("steps", 200, "number of optimization steps")
	fs.Int("log-every", 0, "log every N steps (0 for every steps/10, -1 to disable)")
	fs.String("schedule", scheduleConstant, fmt.Sprintf("learning rate schedule, one of %v", supportedSchedules))
	fs.Int64("warmup-steps", 0, "warmup steps for warmup-cosine")
	fs.Float64("decay-rate", 0.5, "decay rate for the exponential schedule")
	fs.Float64("end-lr", 0, "final learning rate for warmup-cosine")
	fs.Float64("clip-norm", 0, "clip updates to this global norm (0 disables)")
	fs.Int("skip-nonfinite", 0, "skip up to N consecutive non-finite updates (0 disables)")
	fs.Uint64("seed", 0, "seed for noisy optimizers")
}

// Validate reports every problem with the config at once.
func (c RunConfig) Validate() error {
	var result *multierror.Error
	if _, err := train.LookupObjective(c.Objective); err != nil {
		result = multierror.Append(result, err)
	}
	info, ok := optimizers[c.Optimizer]
	if !ok {
		result = multierror.Append(result, errors.Errorf("unknown optimizer %q (have %v)", c.Optimizer, optimizerNames()))
	}
	if c.LR <= 0 {
		result = multierror.Append(result, errors.Errorf("lr must be positive, got %g", c.LR))
	}
	if c.Steps <= 0 {
		result = multierror.Append(result, errors.Errorf("steps must be positive, got %d", c.Steps))
	}
	if c.Momentum < 0 || c.Momentum >= 1 {
		result = multierror.Append(result, errors.Errorf("momentum must be in [0, 1), got %g", c.Momentum))
	}
	if c.ClipNorm < 0 {
		result = multierror.Append(result, errors.Errorf("clip-norm must be non-negative, got %g", c.ClipNorm))
	}
	if c.SkipNonFinite < 0 {
		result = multierror.Append(result, errors.Errorf("skip-nonfinite must be non-negative, got %d", c.SkipNonFinite))
	}
	if !isSupportedSchedule(c.Schedule) {
		result = multierror.Append(result, errors.Errorf("unknown schedule %q (have %v)", c.Schedule, supportedSchedules))
	} else if ok && !info.scheduled && c.Schedule != scheduleConstant {
		result = multierror.Append(result, errors.Errorf("optimizer %s only supports the constant schedule", c.Optimizer))
	}
	if c.Schedule == scheduleWarmupCosine && c.WarmupSteps >= int64(c.Steps) {
		result = multierror.Append(result, errors.Errorf("warmup-steps (%d) must be less than steps (%d)", c.WarmupSteps, c.Steps))
	}
	if c.Schedule == scheduleExponential && (c.DecayRate <= 0 || c.DecayRate > 1) {
		result = multierror.Append(result, errors.Errorf("decay-rate must be in (0, 1], got %g", c.DecayRate))
	}
	return result.ErrorOrNil()
}

func isSupportedSchedule(s string) bool {
	for _, name := range supportedSchedules {
		if s == name {
			return true
		}
	}
	return false
}

// label names a run in logs and tables.
func (c RunConfig) label() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Optimizer
}

// inherit fills unset fields from base.
func (c RunConfig) inherit(base RunConfig) RunConfig {
	if c.Objective == "" {
		c.Objective = base.Objective
	}
	if c.LR == 0 {
		c.LR = base.LR
	}
	if c.Steps == 0 {
		c.Steps = base.Steps
	}
	if c.Schedule == "" {
		c.Schedule = base.Schedule
	}
	if c.DecayRate == 0 {
		c.DecayRate = base.DecayRate
	}
	if c.LogEvery == 0 {
		c.LogEvery = base.LogEvery
	}
	return c
}

type runsFile struct {
	Runs []RunConfig `yaml:"runs"`
}

// loadRuns reads a YAML file of the form
//
//	runs:
//	  - name: adam-fast
//	    optimizer: adam
//	    lr: 0.05
func loadRuns(path string) ([]RunConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is caller-chosen
	if err != nil {
		return nil, errors.Wrap(err, "read runs file")
	}
	return parseRuns(data)
}

func parseRuns(data []byte) ([]RunConfig, error) {
	var f runsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse runs file")
	}
	if len(f.Runs) == 0 {
		return nil, errors.New("runs file lists no runs")
	}
	return f.Runs, nil
}
