package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/history"
	"github.com/lucasnoah/qualitygate/internal/report"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded gate runs",
	Long: `Runs are recorded by 'qualitygate report' when history.dsn (or
$QUALITYGATE_HISTORY_DSN) is set. postgres:// DSNs use PostgreSQL, anything
else is a SQLite database file.`,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent gate runs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		project, _ := cmd.Flags().GetString("project")
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := db.ListRuns(cmd.Context(), project, limit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}

		t := report.NewTable(report.Terminal, "ID", "Project", "PR", "Commit", "Gate", "Sonar", "When")
		for _, r := range runs {
			t.Row(r.ID, r.Project, prLabel(r.PR), shortCommit(r.Commit), passLabel(r.Passed), r.QualityGate, r.CreatedAt.Format(time.DateTime))
		}
		t.AlignRight(1)
		fmt.Fprint(out, t.String())
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one gate run with its stage verdicts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run ID %q", args[0])
		}

		db, err := openHistory()
		if err != nil {
			return err
		}
		defer db.Close()

		r, err := db.GetRun(cmd.Context(), id)
		if err != nil {
			return err
		}
		if r == nil {
			return fmt.Errorf("run %d not found", id)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Run %d  %s  PR %s  commit %s\n", r.ID, r.Project, prLabel(r.PR), shortCommit(r.Commit))
		fmt.Fprintf(out, "Recorded: %s\n", r.CreatedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "Gate: %s\n", passLabel(r.Passed))
		if r.QualityGate != "" {
			fmt.Fprintf(out, "Sonar quality gate: %s\n", r.QualityGate)
		}
		if len(r.Flags) > 0 {
			fmt.Fprintf(out, "Flags: %s\n", strings.Join(r.Flags, ", "))
		}

		t := report.NewTable(report.Terminal, "Stage", "Reported", "Expected", "Core", "Passed", "Reason")
		for _, s := range r.Stages {
			t.Row(s.Stage, s.Reported, s.Expected, s.Core, s.Passed, s.Reason)
		}
		fmt.Fprint(out, t.String())
		return nil
	},
}

func openHistory() (*history.DB, error) {
	cfg, _, err := resolveConfig()
	if err != nil {
		return nil, err
	}
	if cfg.History.DSN == "" {
		return nil, fmt.Errorf("history is not configured: set history.dsn or $QUALITYGATE_HISTORY_DSN")
	}
	db, err := history.Open(cfg.History.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history: %w", err)
	}
	return db, nil
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func prLabel(pr int) string {
	if pr <= 0 {
		return "-"
	}
	return "#" + strconv.Itoa(pr)
}

func shortCommit(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	if sha == "" {
		return "-"
	}
	return sha
}

func init() {
	historyListCmd.Flags().String("project", "", "only list runs for this project")
	historyListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
}
