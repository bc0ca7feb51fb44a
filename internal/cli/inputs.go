package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/qualitygate/internal/checks"
	"github.com/lucasnoah/qualitygate/internal/config"
	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/logging"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

// skipFlags maps the boolean CLI switches to the gate flags they raise.
var skipFlags = []struct {
	option string
	flag   string
}{
	{"skip-build", "skip_build"},
	{"skip-security", "skip_security"},
	{"skip-sonar", "skip_sonar"},
	{"skip-docker", "skip_docker"},
}

// addStageFlags registers the inputs shared by evaluate, ready and report.
func addStageFlags(cmd *cobra.Command) {
	cmd.Flags().StringArray("stage", nil, "stage outcome as name=outcome (repeatable)")
	cmd.Flags().StringArray("stage-output", nil, "captured stage output as name=path (repeatable)")
	cmd.Flags().String("needs", "", "GitHub Actions needs context as JSON, or @file")
	for _, s := range skipFlags {
		cmd.Flags().Bool(s.option, false, fmt.Sprintf("raise the %s flag", s.flag))
	}
	cmd.Flags().StringArray("flag", nil, "raise a custom skip flag (repeatable)")
}

// runInputs is everything a gate evaluation needs.
type runInputs struct {
	cfg     *config.Config
	policy  gate.Policy
	results stage.Set
	flags   gate.Flags
}

func (in *runInputs) evaluate() *gate.Decision {
	return gate.Evaluate(in.results, in.policy, in.flags)
}

// loadInputs resolves the config and parses the stage flags of cmd.
func loadInputs(cmd *cobra.Command) (*runInputs, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	needs, _ := cmd.Flags().GetString("needs")
	stageArgs, _ := cmd.Flags().GetStringArray("stage")
	results, err := parseStages(needs, stageArgs)
	if err != nil {
		return nil, err
	}

	outputArgs, _ := cmd.Flags().GetStringArray("stage-output")
	outputs, err := parseOutputs(outputArgs)
	if err != nil {
		return nil, err
	}
	results = checks.Attach(results, outputs, cfg.ParserFor, logging.Logger)

	var raised []string
	for _, s := range skipFlags {
		if on, _ := cmd.Flags().GetBool(s.option); on {
			raised = append(raised, s.flag)
		}
	}
	custom, _ := cmd.Flags().GetStringArray("flag")
	raised = append(raised, custom...)

	return &runInputs{
		cfg:     cfg,
		policy:  cfg.Policy(),
		results: results,
		flags:   gate.NewFlags(raised...),
	}, nil
}

// parseStages builds the result set from the needs context, then applies
// --stage values on top.
func parseStages(needs string, stageArgs []string) (stage.Set, error) {
	var results []stage.Result

	if needs != "" {
		fromNeeds, err := parseNeeds(needs)
		if err != nil {
			return stage.Set{}, err
		}
		results = append(results, fromNeeds...)
	}

	for _, arg := range stageArgs {
		name, value, err := splitPair("--stage", arg)
		if err != nil {
			return stage.Set{}, err
		}
		outcome, err := stage.ParseOutcome(value)
		if err != nil {
			return stage.Set{}, fmt.Errorf("--stage %s: %w", name, err)
		}
		results = append(results, stage.Result{Name: stage.Name(name), Outcome: outcome})
	}
	return stage.NewSet(results...), nil
}

type needsEntry struct {
	Result string `json:"result"`
}

// parseNeeds reads the `needs` context of a GitHub Actions job, given
// inline or as @path.
func parseNeeds(raw string) ([]stage.Result, error) {
	data := []byte(raw)
	if path, ok := strings.CutPrefix(raw, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read needs: %w", err)
		}
	}

	var needs map[string]needsEntry
	if err := json.Unmarshal(data, &needs); err != nil {
		return nil, fmt.Errorf("parse needs: %w", err)
	}

	results := make([]stage.Result, 0, len(needs))
	for name, n := range needs {
		outcome, err := stage.ParseOutcome(n.Result)
		if err != nil {
			return nil, fmt.Errorf("needs.%s: %w", name, err)
		}
		results = append(results, stage.Result{Name: stage.Name(name), Outcome: outcome})
	}
	return results, nil
}

// parseOutputs maps each --stage-output to its file path.
func parseOutputs(args []string) (map[stage.Name]string, error) {
	if len(args) == 0 {
		return nil, nil
	}
	outputs := make(map[stage.Name]string, len(args))
	for _, arg := range args {
		name, path, err := splitPair("--stage-output", arg)
		if err != nil {
			return nil, err
		}
		outputs[stage.Name(name)] = path
	}
	return outputs, nil
}

func splitPair(option, arg string) (string, string, error) {
	name, value, ok := strings.Cut(arg, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("%s %q: expected name=value", option, arg)
	}
	return name, strings.TrimSpace(value), nil
}

// logDecision writes the decision to the log: failures at error level,
// informational findings as warnings.
func logDecision(d *gate.Decision) {
	for _, v := range d.Failures() {
		logging.Logger.Errorw("core check failed", "stage", v.Stage, "reason", v.Reason)
	}
	for _, v := range d.Advisories() {
		logging.Logger.Warnw("informational check reported issues", "stage", v.Stage, "reason", v.Reason)
	}
	if d.Passed {
		logging.Logger.Infow("quality gate passed", "flags", d.Flags)
	}
}
