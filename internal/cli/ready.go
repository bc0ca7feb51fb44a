package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/logging"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

var readyCmd = &cobra.Command{
	Use:   "ready <stage>",
	Short: "Check whether a gated stage may run",
	Long: `Report whether the given stage should run: its skip flag is not raised and
every stage it depends on passed or was validly skipped.

Exits 0 when the stage may run and non-zero when it is skipped or blocked.`,
	Example: `  qualitygate ready docker --stage lint=success --stage typecheck=success --stage build=success`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := loadInputs(cmd)
		if err != nil {
			return err
		}

		name := stage.Name(args[0])
		ok, reason := gate.Ready(name, in.results, in.policy, in.flags)
		fmt.Fprintln(cmd.OutOrStdout(), reason)
		if !ok {
			logging.Logger.Infow("stage not ready", "stage", name, "reason", reason)
			return fmt.Errorf("%w: %s", ErrNotReady, reason)
		}
		return nil
	},
}

func init() {
	addStageFlags(readyCmd)
}
