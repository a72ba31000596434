package cmd

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type rootOpts struct {
	cfgFile     string
	debugModeOn bool
	hideLogTime bool
}

const envPrefix = "OPTIX"

var longRootCmdDescription = `optix runs composable gradient transformations on small test
objectives. Use it to check an optimizer configuration, compare optimizers
side by side, or produce a checkpoint of parameters and optimizer state.
`

// NewRootCmd builds the optix command tree. Each call gets its own viper
// instance, so commands can be built and executed repeatedly.
func NewRootCmd() *cobra.Command {
	opts := &rootOpts{}
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:           "optix",
		Short:         "Run gradient transformations on toy objectives",
		Long:          longRootCmdDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, opts)
		},
	}

	rootCmd.AddCommand(NewVersionCmd(), NewTrainCmd(v), NewCompareCmd(v))

	rootCmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "YAML config file; keys match flag names")
	rootCmd.PersistentFlags().BoolVarP(&opts.debugModeOn, "debug", "d", false, "turn on debug mode")
	rootCmd.PersistentFlags().BoolVar(&opts.hideLogTime, "hide-time", false, "hide the log time")
	rootCmd.DisableAutoGenTag = true
	return rootCmd
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		logrus.Errorf("optix-%s: %v", Version, err)
		os.Exit(1)
	}
}

// initConfig sets up logging, then reads the config file and environment.
func initConfig(v *viper.Viper, opts *rootOpts) error {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:    !opts.hideLogTime,
		DisableTimestamp: opts.hideLogTime,
	})
	if opts.debugModeOn {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if opts.cfgFile == "" {
		return nil
	}
	v.SetConfigFile(opts.cfgFile)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config %s", opts.cfgFile)
	}
	logrus.Debugf("using config file %s", v.ConfigFileUsed())
	return nil
}

// bindRunConfig binds cmd's flags and decodes the merged flag, env and
// file settings.
func bindRunConfig(v *viper.Viper, cmd *cobra.Command) (RunConfig, error) {
	var cfg RunConfig
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return cfg, errors.Wrap(err, "bind flags")
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}
