package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/optix/internal/train"
)

const (
	statusOK       = "ok"
	statusDiverged = "diverged"
)

type compareOpts struct {
	optimizers []string
	runsFile   string
	jobs       int
}

// runResult is one row of the comparison table.
type runResult struct {
	config  RunConfig
	initial float64
	final   float64
	best    float64
	status  string
}

// NewCompareCmd returns the compare command.
func NewCompareCmd(v *viper.Viper) *cobra.Command {
	opts := &compareOpts{}
	compareCmd := &cobra.Command{
		Use:   "compare",
		Short: "Run several optimizers on the same objective and tabulate the results",
		Args:  cobra.NoArgs,
		Example: `optix compare --objective quadratic --optimizers sgd,adam,rmsprop --steps 300
optix compare --runs runs.yaml --jobs 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base, err := bindRunConfig(v, cmd)
			if err != nil {
				return err
			}
			runs, err := compareRuns(base, opts)
			if err != nil {
				return err
			}
			results, err := runAll(cmd.Context(), runs, opts.jobs)
			if err != nil {
				return err
			}
			renderResults(cmd.OutOrStdout(), results)
			return nil
		},
	}
	addRunFlags(compareCmd.Flags())
	compareCmd.Flags().StringSliceVar(&opts.optimizers, "optimizers", []string{"sgd", "adam", "rmsprop", "adagrad", "yogi"}, "optimizers to compare")
	compareCmd.Flags().StringVar(&opts.runsFile, "runs", "", "YAML file listing runs; overrides --optimizers")
	compareCmd.Flags().IntVarP(&opts.jobs, "jobs", "j", 4, "number of runs in flight")
	return compareCmd
}

// compareRuns expands the flags or runs file into validated run configs.
func compareRuns(base RunConfig, opts *compareOpts) ([]RunConfig, error) {
	var runs []RunConfig
	if opts.runsFile != "" {
		loaded, err := loadRuns(opts.runsFile)
		if err != nil {
			return nil, err
		}
		for _, r := range loaded {
			runs = append(runs, r.inherit(base))
		}
	} else {
		for _, name := range opts.optimizers {
			r := base
			r.Optimizer = name
			runs = append(runs, r)
		}
	}
	for i, r := range runs {
		if err := r.Validate(); err != nil {
			return nil, errors.Wrapf(err, "run %d (%s)", i, r.label())
		}
	}
	return runs, nil
}

// runAll trains every run concurrently; each run owns its own state.
func runAll(ctx context.Context, runs []RunConfig, jobs int) ([]runResult, error) {
	results := make([]runResult, len(runs))
	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}
	for i, cfg := range runs {
		g.Go(func() error {
			objective, err := train.LookupObjective(cfg.Objective)
			if err != nil {
				return err
			}
			log := logrus.WithField("optimizer", cfg.label())
			trainer := train.New(buildOptimizer(cfg), objective, train.Config{
				Steps:    cfg.Steps,
				LogEvery: logEvery(cfg),
				Logger:   log,
			})
			res, err := trainer.Run(ctx, objective.Init(), nil)
			r := runResult{config: cfg, status: statusOK}
			switch {
			case errors.Is(err, train.ErrDiverged):
				r.status = statusDiverged
				r.final = math.Inf(1)
			case err != nil:
				return errors.Wrapf(err, "run %s", cfg.label())
			default:
				r.final = res.Final
			}
			r.initial, r.best = summarize(res.Losses, r.final)
			results[i] = r
			log.WithFields(logrus.Fields{"final": r.final, "status": r.status}).Debug("run finished")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func summarize(losses []float64, final float64) (initial, best float64) {
	best = final
	for _, l := range losses {
		best = math.Min(best, l)
	}
	if len(losses) == 0 {
		return math.NaN(), best
	}
	return losses[0], best
}

// renderResults prints one row per run, best final loss first.
func renderResults(w io.Writer, results []runResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].final < results[j].final
	})

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"run", "optimizer", "lr", "schedule", "initial", "final", "best", "status"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range results {
		table.Append([]string{
			r.config.label(),
			r.config.Optimizer,
			strconv.FormatFloat(r.config.LR, 'g', 4, 64),
			r.config.Schedule,
			formatLoss(r.initial),
			formatLoss(r.final),
			formatLoss(r.best),
			r.status,
		})
	}
	table.Render()
}

func formatLoss(v float64) string {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.4e", v)
}
