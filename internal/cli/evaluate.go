package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/report"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Decide whether the quality gate passes",
	Long: `Evaluate the stage outcomes against the gate policy.

Exits non-zero only when a core stage did not pass. Informational stages are
reported but never fail the gate.`,
	Example: `  qualitygate evaluate --stage lint=success --stage typecheck=success --stage build=failure
  qualitygate evaluate --needs "$NEEDS_JSON" --skip-sonar --format json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "text" && format != "json" {
			return fmt.Errorf("invalid --format %q: must be text or json", format)
		}

		in, err := loadInputs(cmd)
		if err != nil {
			return err
		}
		d := in.evaluate()
		logDecision(d)

		out := cmd.OutOrStdout()
		if format == "json" {
			data, err := d.JSON()
			if err != nil {
				return fmt.Errorf("encode decision: %w", err)
			}
			fmt.Fprintln(out, data)
		} else {
			printDecision(out, d)
		}

		if !d.Passed {
			return ErrGateFailed
		}
		return nil
	},
}

// printDecision writes a terminal table of verdicts followed by the result.
func printDecision(w io.Writer, d *gate.Decision) {
	t := report.NewTable(report.Terminal, "Stage", "Type", "Reported", "Expected", "Result")
	for _, v := range d.Verdicts {
		kind := "informational"
		if v.Core {
			kind = "core"
		}
		result := "pass"
		switch {
		case !v.Passed && v.Core:
			result = "FAIL"
		case !v.Passed:
			result = "warn"
		}
		t.Row(v.Stage, kind, v.Reported, v.Outcome, result)
	}
	fmt.Fprint(w, t.String())

	if d.Passed {
		fmt.Fprintln(w, "Quality gate: PASSED")
	} else {
		fmt.Fprintln(w, "Quality gate: FAILED")
	}
	for _, r := range d.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
	if len(d.Flags) > 0 {
		fmt.Fprintf(w, "Flags: %v\n", d.Flags)
	}
}

func init() {
	addStageFlags(evaluateCmd)
	evaluateCmd.Flags().String("format", "text", "output format: text or json")
}
