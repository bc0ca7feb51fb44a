package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/artifacts"
	"github.com/lucasnoah/qualitygate/internal/config"
	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/github"
	"github.com/lucasnoah/qualitygate/internal/history"
	"github.com/lucasnoah/qualitygate/internal/logging"
	"github.com/lucasnoah/qualitygate/internal/report"
	"github.com/lucasnoah/qualitygate/internal/sonar"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

// newCommentAPI builds the comment client used by --publish.
var newCommentAPI = func() github.CommentAPI {
	return github.NewClient(&github.ExecRunner{})
}

// stdoutIsTerminal decides whether --preview renders or falls back to raw markdown.
var stdoutIsTerminal = func() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

const previewWidth = 100

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Render the quality report and optionally publish it",
	Long: `Evaluate the gate, fetch the SonarQube analysis (only when the sonar stage
ran) and render the markdown report.

The decision, snapshot and report are saved under report.output_dir. With
--publish the report replaces any earlier report comment on the pull
request. The command fails when publishing fails and, with --fail-on-gate,
when the gate failed.`,
	Example: `  qualitygate report --needs "$NEEDS_JSON" --pr 42 --publish
  qualitygate report --stage lint=success --stage sonar=success --project-key my-app --preview`,
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	in, err := loadInputs(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	d := in.evaluate()
	logDecision(d)

	pr, _ := cmd.Flags().GetInt("pr")
	projectKey, _ := cmd.Flags().GetString("project-key")
	repoArg, _ := cmd.Flags().GetString("repo")
	if repoArg == "" {
		repoArg = os.Getenv("GITHUB_REPOSITORY")
	}

	var snap *sonar.Snapshot
	if path, _ := cmd.Flags().GetString("snapshot"); path != "" {
		if snap, err = artifacts.LoadSnapshot(path); err != nil {
			return err
		}
	} else {
		branch, _ := cmd.Flags().GetString("branch")
		outcome := in.results.Get(stage.Sonar).Outcome
		snap = fetchSnapshot(cmd, in.cfg, analysisRequest(in.cfg, projectKey, pr, branch, outcome))
	}

	sha := commitSHA(ctx, cmd)
	md := report.Render(report.Input{
		Results:  in.results,
		Decision: d,
		Snapshot: snap,
		Flags:    in.flags,
		Policy:   in.policy,
		Title:    in.cfg.Report.Title,
		Commit:   sha,
	})

	saveArtifacts(cmd, in.cfg, d, snap, md)

	if err := writeReport(cmd, md); err != nil {
		return err
	}

	var publishErr error
	if publish, _ := cmd.Flags().GetBool("publish"); publish {
		publishErr = publishReport(ctx, cmd, in.cfg.Report.Title, md, repoArg, pr, sha)
	}

	if in.cfg.History.DSN != "" {
		project := snap.ProjectKey
		if project == "" {
			project = repoArg
		}
		recordRun(ctx, in.cfg.History.DSN, history.NewRun(project, pr, sha, d, snap))
	}

	if publishErr != nil {
		return publishErr
	}
	if failOnGate, _ := cmd.Flags().GetBool("fail-on-gate"); failOnGate && !d.Passed {
		return ErrGateFailed
	}
	return nil
}

// commitSHA returns --sha, $GITHUB_SHA or the checkout's HEAD, in that order.
func commitSHA(ctx context.Context, cmd *cobra.Command) string {
	if sha, _ := cmd.Flags().GetString("sha"); sha != "" {
		return sha
	}
	if sha := os.Getenv("GITHUB_SHA"); sha != "" {
		return sha
	}
	sha, err := github.NewClient(&github.ExecRunner{}).HeadSHA(ctx, ".")
	if err != nil {
		logging.Logger.Debugw("commit SHA unavailable", "error", err)
		return ""
	}
	return sha
}

// saveArtifacts writes the run's files. Failures are logged only.
func saveArtifacts(cmd *cobra.Command, cfg *config.Config, d *gate.Decision, snap *sonar.Snapshot, md string) {
	dir, _ := cmd.Flags().GetString("output-dir")
	if dir == "" {
		dir = cfg.Report.OutputDir
	}
	store := artifacts.NewStore(dir)
	err := errors.Join(store.SaveDecision(d), store.SaveSnapshot(snap), store.SaveReport(md))
	if err != nil {
		logging.Logger.Warnw("saving artifacts", "dir", store.Dir(), "error", err)
		return
	}
	logging.Logger.Debugw("artifacts saved", "dir", store.Dir())
}

// writeReport sends the markdown to --output, or to stdout when no other
// destination was asked for.
func writeReport(cmd *cobra.Command, md string) error {
	output, _ := cmd.Flags().GetString("output")
	publish, _ := cmd.Flags().GetBool("publish")
	preview, _ := cmd.Flags().GetBool("preview")

	if output != "" && output != "-" {
		if err := artifacts.WriteAtomic(output, []byte(md)); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		logging.Logger.Infow("report written", "path", output)
	}

	out := cmd.OutOrStdout()
	switch {
	case preview && stdoutIsTerminal():
		rendered, err := report.Preview(md, previewWidth)
		if err != nil {
			return err
		}
		fmt.Fprint(out, rendered)
	case preview, output == "-", output == "" && !publish:
		fmt.Fprint(out, md)
	}
	return nil
}

func publishReport(ctx context.Context, cmd *cobra.Command, marker, md, repoArg string, pr int, sha string) error {
	owner, repo, err := github.ParseRepo(repoArg)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	pub := github.NewPublisher(newCommentAPI(), marker, logging.Logger)
	c, err := pub.Publish(ctx, md, github.Target{Owner: owner, Repo: repo, PR: pr, HeadSHA: sha})
	if err != nil {
		return err
	}
	cmd.PrintErrf("Report published: %s\n", c.HTMLURL)
	return nil
}

// recordRun appends the run to history. Failures are logged and never
// change the command's result.
func recordRun(ctx context.Context, dsn string, r *history.Run) {
	db, err := history.Open(dsn)
	if err != nil {
		logging.Logger.Warnw("history unavailable", "error", err)
		return
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logging.Logger.Warnw("history migration failed", "error", err)
		return
	}
	id, err := db.RecordRun(ctx, r)
	if err != nil {
		logging.Logger.Warnw("recording run", "error", err)
		return
	}
	logging.Logger.Debugw("run recorded", "id", id, "dialect", db.Dialect())
}

func jsonIndent(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func init() {
	addStageFlags(reportCmd)
	reportCmd.Flags().String("project-key", "", "SonarQube project key (default: sonar.project_key)")
	reportCmd.Flags().Int("pr", 0, "pull request number")
	reportCmd.Flags().String("branch", "", "branch to scope the analysis to")
	reportCmd.Flags().String("repo", "", "repository as owner/name (default: $GITHUB_REPOSITORY)")
	reportCmd.Flags().String("sha", "", "commit SHA shown in the report (default: $GITHUB_SHA or HEAD)")
	reportCmd.Flags().String("snapshot", "", "use a saved analysis snapshot instead of fetching")
	reportCmd.Flags().String("output", "", "write the markdown report to this file (- for stdout)")
	reportCmd.Flags().String("output-dir", "", "artifact directory (default: report.output_dir)")
	reportCmd.Flags().Bool("publish", false, "publish the report as a pull request comment")
	reportCmd.Flags().Bool("preview", false, "render the report for the terminal")
	reportCmd.Flags().Bool("fail-on-gate", false, "exit non-zero when the quality gate failed")
}
