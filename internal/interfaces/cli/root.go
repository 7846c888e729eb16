// Package cli implements the geofusion command line tool: offline fusion
// runs over local GeoJSON files, plus dataset inspection.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// RootOptions holds the global flags.
type RootOptions struct {
	LogLevel string
	Verbose  bool
	Output   string // "json" | "text"
}

// NewRootCommand builds the root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "geofusion",
		Short:   "geofusion fuses multi-layer geographic datasets from the command line",
		Long:    "geofusion runs the multi-layer fusion engine over local GeoJSON files:\nmatching records across independently sourced layers, merging their metrics\ninto one namespaced record set, and scoring the result.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.LogLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	pf.BoolVarP(&opts.Verbose, "verbose", "v", false, "log at debug level")
	pf.StringVarP(&opts.Output, "output", "o", "json", "output format (json, text)")

	cmd.AddCommand(
		NewFuseCmd(opts),
		NewInspectCmd(opts),
		NewLayersCmd(opts),
	)
	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().Execute()
}

// newCLILogger builds a stderr logger honoring the global log flags.
func newCLILogger(opts *RootOptions) (logging.Logger, error) {
	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	return logging.NewLogger(logging.Config{
		Level:       level,
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
}

// printResult writes data to stdout in the selected format.  Text format
// expects a fmt.Stringer and falls back to JSON otherwise.
func printResult(cmd *cobra.Command, opts *RootOptions, data interface{}) error {
	if strings.EqualFold(opts.Output, "text") {
		if s, ok := data.(fmt.Stringer); ok {
			fmt.Fprintln(cmd.OutOrStdout(), s.String())
			return nil
		}
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
