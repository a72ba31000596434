package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/born-ml/optix/internal/optim"
	"github.com/born-ml/optix/internal/serialization"
	"github.com/born-ml/optix/internal/train"
	"github.com/born-ml/optix/internal/tree"
)

// Checkpoint file names inside the --checkpoint directory.
const (
	paramsFile = "params.safetensors"
	stateFile  = "opt_state.safetensors"
	stepsKey   = "steps"
)

type trainOpts struct {
	checkpoint string
	resume     bool
}

// NewTrainCmd returns the train command.
func NewTrainCmd(v *viper.Viper) *cobra.Command {
	opts := &trainOpts{}
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Minimize a toy objective with one optimizer",
		Args:  cobra.NoArgs,
		Example: `optix train --objective rosenbrock --optimizer adam --lr 0.02 --steps 500
optix train --optimizer sgd --momentum 0.9 --schedule warmup-cosine --warmup-steps 20
optix train --optimizer adam --checkpoint ./ckpt && optix train --optimizer adam --checkpoint ./ckpt --resume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := bindRunConfig(v, cmd)
			if err != nil {
				return err
			}
			return runTrain(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	addRunFlags(trainCmd.Flags())
	trainCmd.Flags().String("optimizer", "adam", fmt.Sprintf("optimizer alias, one of %v", optimizerNames()))
	trainCmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "directory to write params and optimizer state to")
	trainCmd.Flags().BoolVar(&opts.resume, "resume", false, "continue from the state in --checkpoint")
	return trainCmd
}

func runTrain(ctx context.Context, cfg RunConfig, opts *trainOpts, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	if opts.resume && opts.checkpoint == "" {
		return errors.New("--resume needs --checkpoint")
	}
	objective, err := train.LookupObjective(cfg.Objective)
	if err != nil {
		return err
	}
	tx := buildOptimizer(cfg)
	log := logrus.WithFields(logrus.Fields{"optimizer": cfg.label()})

	params := objective.Init()
	var state tree.Node
	var doneSteps int
	if opts.resume {
		params, state, doneSteps, err = loadCheckpoint(opts.checkpoint, tx, params)
		if err != nil {
			return err
		}
		log.WithField("steps", doneSteps).Info("resumed from checkpoint")
	}

	trainer := train.New(tx, objective, train.Config{
		Steps:    cfg.Steps,
		LogEvery: logEvery(cfg),
		Logger:   log,
	})
	res, err := trainer.Run(ctx, params, state)
	if err != nil {
		return err
	}

	if opts.checkpoint != "" {
		meta := map[string]string{
			"objective": cfg.Objective,
			"optimizer": cfg.Optimizer,
			stepsKey:    strconv.Itoa(doneSteps + cfg.Steps),
		}
		if err := saveCheckpoint(opts.checkpoint, res.Params, res.State, meta); err != nil {
			return err
		}
		log.WithField("dir", opts.checkpoint).Info("wrote checkpoint")
	}

	_, err = fmt.Fprintf(out, "%s on %s: loss %.6g -> %.6g after %d steps\n",
		cfg.label(), cfg.Objective, res.Losses[0], res.Final, doneSteps+cfg.Steps)
	return err
}

// logEvery maps the flag's 0 default to a tenth of the run.
func logEvery(cfg RunConfig) int {
	if cfg.LogEvery != 0 {
		return cfg.LogEvery
	}
	return max(cfg.Steps/10, 1)
}

func saveCheckpoint(dir string, params, state tree.Node, meta map[string]string) error {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return errors.Wrap(err, "create checkpoint dir")
	}
	if err := serialization.WriteTree(filepath.Join(dir, paramsFile), params, meta); err != nil {
		return errors.Wrap(err, "write params")
	}
	if err := serialization.WriteTree(filepath.Join(dir, stateFile), state, meta); err != nil {
		return errors.Wrap(err, "write optimizer state")
	}
	return nil
}

// loadCheckpoint restores params and state, using freshly initialized ones
// as templates.
func loadCheckpoint(dir string, tx optim.GradientTransformation, params tree.Node) (tree.Node, tree.Node, int, error) {
	template, err := tx.Init(params)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "init optimizer state")
	}
	loadedParams, meta, err := serialization.ReadTree(filepath.Join(dir, paramsFile), params)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "read params")
	}
	state, _, err := serialization.ReadTree(filepath.Join(dir, stateFile), template)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "read optimizer state")
	}
	steps, err := strconv.Atoi(meta[stepsKey])
	if err != nil {
		return nil, nil, 0, errors.Wrapf(err, "checkpoint %s metadata", stepsKey)
	}
	return loadedParams, state, steps, nil
}
