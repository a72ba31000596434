package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Version is the optix release, overridden at link time with
// -ldflags "-X github.com/born-ml/optix/cmd/optix/cmd.Version=...".
var Version = "v0.1.0-dev"

// VersionInfo is printed by the version command.
type VersionInfo struct {
	Version   string `json:"version" yaml:"version"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

// NewVersionCmd returns the version command.
func NewVersionCmd() *cobra.Command {
	var (
		shortPrint bool
		output     string
	)
	versionCmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version info",
		Args:    cobra.NoArgs,
		Example: `optix version -o json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "yaml" && output != "json" {
				return errors.New("output format must be yaml or json")
			}
			if shortPrint {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), Version)
				return err
			}
			return printVersion(cmd.OutOrStdout(), output)
		},
	}
	versionCmd.Flags().BoolVar(&shortPrint, "short", false, "If true, print just the version number.")
	versionCmd.Flags().StringVarP(&output, "output", "o", "yaml", "choose `yaml` or `json` format to print version info")
	return versionCmd
}

func printVersion(w io.Writer, format string) error {
	info := VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	var (
		out []byte
		err error
	)
	if format == "json" {
		out, err = json.MarshalIndent(info, "", "  ")
		out = append(out, '\n')
	} else {
		out, err = yaml.Marshal(info)
	}
	if err != nil {
		return errors.Wrap(err, "marshal version info")
	}
	_, err = w.Write(out)
	return err
}
