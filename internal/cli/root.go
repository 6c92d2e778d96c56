package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trdens-dev/trdens/internal/config"
	"github.com/trdens-dev/trdens/internal/logging"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "trdens",
		Short: "Compute one- and two-body nuclear transition densities",
		Long: `trdens reads shell-model eigenvectors in BIGSTICK .wfn/.bas form and
computes J,T-reduced one- or two-body transition densities between pairs of
eigenstates.

A run is described by a YAML file or a legacy parameter file. One density
file is written per transition, plus a JSON manifest of inputs and outputs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			verbose, err := OptionalBoolFlag(cmd, "verbose")
			if err != nil {
				return err
			}
			quiet, err := OptionalBoolFlag(cmd, "quiet")
			if err != nil {
				return err
			}
			logger, err := logging.New(verbose, quiet)
			if err != nil {
				return err
			}
			setLogger(cmd, logger)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = loggerFrom(cmd).Sync()
		},
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug events to stderr")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Log warnings and errors only")

	// Compute Commands
	runCmd := &cobra.Command{
		Use:   "run [config]",
		Short: "Compute transition densities for every configured transition",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunDensities,
	}
	addOverrideFlags(runCmd)
	runCmd.Flags().Int("workers", 0, "Concurrent orbit units (overrides config and "+config.EnvWorkers+")")
	runCmd.Flags().Bool("force-split", false, "Build separate initial and final jump maps even for a shared basis")
	runCmd.Flags().Bool("no-manifest", false, "Skip writing the run manifest")
	runCmd.Flags().Bool("json", false, "Print machine-readable run summary")

	// Inspect Commands
	checkCmd := &cobra.Command{
		Use:   "check [config]",
		Short: "Validate configuration, dataset and selection rules without computing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  RunCheck,
	}
	addOverrideFlags(checkCmd)
	checkCmd.Flags().Bool("json", false, "Print machine-readable check output")

	inspectCmd := &cobra.Command{
		Use:   "inspect <base>",
		Short: "Summarize one .wfn/.bas dataset",
		Args:  cobra.ExactArgs(1),
		RunE:  RunInspect,
	}
	inspectCmd.Flags().Bool("json", false, "Print machine-readable dataset summary")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("trdens %s\n", version)
		},
	}

	rootCmd.AddCommand(
		runCmd,
		checkCmd,
		inspectCmd,
		versionCmd,
	)

	return rootCmd
}

type loggerKey struct{}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}

func setLogger(cmd *cobra.Command, logger *zap.Logger) {
	cmd.SetContext(context.WithValue(commandContext(cmd), loggerKey{}, logger))
}

// loggerFrom returns the logger installed by the root command, or a no-op
// logger when a handler runs outside it.
func loggerFrom(cmd *cobra.Command) *zap.Logger {
	if logger, ok := commandContext(cmd).Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}
