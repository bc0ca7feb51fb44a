package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

// Errors returned for an unfavourable verdict rather than a malfunction.
var (
	ErrGateFailed = errors.New("quality gate failed")
	ErrNotReady   = errors.New("stage not ready")
)

var (
	configPath string
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "qualitygate",
	Short: "CI quality gate and pull request report",
	Long: `qualitygate aggregates the outcomes of CI stages (lint, typecheck, build,
security, sonar, docker) into a pass/fail decision, pulls SonarQube analysis
for the change and publishes a single markdown report on the pull request.

It never runs the checks itself. Stage outcomes are passed in with --stage
and, optionally, their captured output with --stage-output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Init(debug)
	},
}

func Execute(ctx context.Context) error {
	defer logging.Sync()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: $QUALITYGATE_CONFIG, .qualitygate.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(readyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(sonarCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(historyCmd)
}
