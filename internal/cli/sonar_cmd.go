package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/artifacts"
	"github.com/lucasnoah/qualitygate/internal/config"
	"github.com/lucasnoah/qualitygate/internal/logging"
	"github.com/lucasnoah/qualitygate/internal/report"
	"github.com/lucasnoah/qualitygate/internal/sonar"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

var sonarCmd = &cobra.Command{
	Use:   "sonar",
	Short: "Query SonarQube analysis results",
}

var sonarFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch the analysis snapshot for a project",
	Long: `Fetch metrics, quality gate status, issues, hotspots and coverage detail.

A section that fails to load is left empty and its error recorded; the
command itself only fails on bad arguments. Use --output to save the
snapshot for a later 'qualitygate report --snapshot'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid --format %q: must be text or json", format)
		}
		outcomeArg, _ := cmd.Flags().GetString("outcome")
		outcome, err := stage.ParseOutcome(outcomeArg)
		if err != nil {
			return fmt.Errorf("--outcome: %w", err)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		projectKey, _ := cmd.Flags().GetString("project-key")
		pr, _ := cmd.Flags().GetInt("pr")
		branch, _ := cmd.Flags().GetString("branch")
		snap := fetchSnapshot(cmd, cfg, analysisRequest(cfg, projectKey, pr, branch, outcome))

		if path, _ := cmd.Flags().GetString("output"); path != "" {
			if err := artifacts.WriteJSON(path, snap); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}
			logging.Logger.Infow("snapshot written", "path", path)
		}

		out := cmd.OutOrStdout()
		if format == "json" {
			data, err := jsonIndent(snap)
			if err != nil {
				return fmt.Errorf("encode snapshot: %w", err)
			}
			fmt.Fprintln(out, data)
			return nil
		}
		printSnapshot(out, snap)
		return nil
	},
}

func analysisRequest(cfg *config.Config, projectKey string, pr int, branch string, outcome stage.Outcome) sonar.Request {
	if projectKey == "" {
		projectKey = cfg.Sonar.ProjectKey
	}
	req := sonar.Request{
		ProjectKey: projectKey,
		Branch:     branch,
		Hint:       sonar.HintFromOutcome(outcome),
	}
	if pr > 0 {
		req.PullRequest = strconv.Itoa(pr)
	}
	return req
}

func fetchSnapshot(cmd *cobra.Command, cfg *config.Config, req sonar.Request) *sonar.Snapshot {
	f := sonar.NewFetcher(
		sonar.Credentials{Token: cfg.Sonar.Token, HostURL: cfg.Sonar.HostURL},
		cfg.SonarLimits(),
		cfg.SonarTimeout(),
		logging.Logger,
	)
	snap := f.Fetch(cmd.Context(), req)
	for sec, reason := range snap.Errors {
		logging.Logger.Warnw("analysis section unavailable", "section", sec, "error", reason)
	}
	return snap
}

func printSnapshot(w io.Writer, snap *sonar.Snapshot) {
	if snap.Skipped != "" {
		fmt.Fprintf(w, "Analysis skipped: %s\n", snap.Skipped)
		return
	}

	if snap.QualityGate != nil {
		fmt.Fprintf(w, "Quality gate: %s %s\n", report.GateGlyph(snap.QualityGate.Status), snap.QualityGate.Status)
	}

	keys := make([]string, 0, len(snap.Metrics))
	for k := range snap.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 0 {
		t := report.NewTable(report.Terminal, "Metric", "Value")
		for _, k := range keys {
			t.Row(k, snap.Metrics[k])
		}
		t.AlignRight(2)
		fmt.Fprint(w, t.String())
	}

	fmt.Fprintf(w, "Issues: %d (%d listed)\n", snap.IssuesTotal, len(snap.Issues))
	fmt.Fprintf(w, "Security hotspots: %d (%d listed)\n", snap.HotspotsTotal, len(snap.Hotspots))
	fmt.Fprintf(w, "Low-coverage files: %d\n", len(snap.LowCoverage))

	for _, sec := range sonar.Sections {
		if reason := snap.Err(sec); reason != "" {
			fmt.Fprintf(w, "%s unavailable: %s\n", sec, reason)
		}
	}
}

func init() {
	sonarFetchCmd.Flags().String("project-key", "", "SonarQube project key (default: sonar.project_key)")
	sonarFetchCmd.Flags().String("outcome", string(stage.Success), "outcome of the analysis stage")
	sonarFetchCmd.Flags().Int("pr", 0, "pull request number to scope the analysis to")
	sonarFetchCmd.Flags().String("branch", "", "branch to scope the analysis to")
	sonarFetchCmd.Flags().String("format", "text", "output format: text or json")
	sonarFetchCmd.Flags().String("output", "", "write the snapshot as JSON to this file")
	sonarCmd.AddCommand(sonarFetchCmd)
}
