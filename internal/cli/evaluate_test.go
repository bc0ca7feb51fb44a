package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

func TestEvaluate_AllCorePassed(t *testing.T) {
	isolate(t)
	out, err := executeCommand("evaluate",
		"--stage", "lint=success", "--stage", "typecheck=success", "--stage", "build=success")
	if err != nil {
		t.Fatalf("unexpected error: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Quality gate: PASSED") {
		t.Errorf("expected PASSED, got:\n%s", out)
	}
}

func TestEvaluate_CoreFailure(t *testing.T) {
	isolate(t)
	out, err := executeCommand("evaluate",
		"--stage", "lint=success", "--stage", "typecheck=success",
		"--stage", "build=failure", "--stage", "security=success")
	if !errors.Is(err, ErrGateFailed) {
		t.Fatalf("expected ErrGateFailed, got %v", err)
	}
	for _, want := range []string{"Quality gate: FAILED", "Build failed", "FAIL"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestEvaluate_SkipFlag(t *testing.T) {
	isolate(t)
	_, err := executeCommand("evaluate",
		"--stage", "lint=success", "--stage", "typecheck=success", "--skip-build")
	if err != nil {
		t.Fatalf("skip_build with lint and typecheck green should pass: %v", err)
	}
}

func TestEvaluate_InformationalFailureDoesNotFail(t *testing.T) {
	isolate(t)
	out, err := executeCommand("evaluate",
		"--stage", "lint=success", "--stage", "typecheck=success", "--stage", "build=success",
		"--stage", "security=failure")
	if err != nil {
		t.Fatalf("informational failure must not fail the gate: %v", err)
	}
	if !strings.Contains(out, "warn") || !strings.Contains(out, "informational only") {
		t.Errorf("expected an advisory in output:\n%s", out)
	}
}

func TestEvaluate_JSON(t *testing.T) {
	isolate(t)
	out, err := executeCommand("evaluate", "--format", "json",
		"--stage", "lint=success", "--stage", "typecheck=success", "--stage", "build=failure")
	if !errors.Is(err, ErrGateFailed) {
		t.Fatalf("expected ErrGateFailed, got %v", err)
	}

	var d gate.Decision
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("output is not a decision: %v\n%s", err, out)
	}
	if d.Passed {
		t.Error("expected passed=false")
	}
	if got := d.Expected(stage.Docker); got != stage.Skipped {
		t.Errorf("docker expected %q, got %q", stage.Skipped, got)
	}
}

func TestEvaluate_Needs(t *testing.T) {
	isolate(t)
	needs := `{"lint":{"result":"success"},"typecheck":{"result":"success"},"build":{"result":"cancelled"}}`
	_, err := executeCommand("evaluate", "--needs", needs)
	if !errors.Is(err, ErrGateFailed) {
		t.Fatalf("cancelled build should fail the gate, got %v", err)
	}

	resetFlags(rootCmd)
	_, err = executeCommand("evaluate", "--needs", needs, "--stage", "build=success")
	if err != nil {
		t.Fatalf("--stage should override needs: %v", err)
	}
}

func TestEvaluate_NeedsFromFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "needs.json")
	data := `{"lint":{"result":"success"},"typecheck":{"result":"success"},"build":{"result":"success"}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := executeCommand("evaluate", "--needs", "@"+path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEvaluate_BadInput(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown outcome", []string{"--stage", "lint=purple"}, "unknown stage outcome"},
		{"missing separator", []string{"--stage", "lint"}, "expected name=value"},
		{"bad needs", []string{"--needs", "{"}, "parse needs"},
		{"bad format", []string{"--format", "xml"}, "invalid --format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			_, err := executeCommand(append([]string{"evaluate"}, tt.args...)...)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
			if errors.Is(err, ErrGateFailed) {
				t.Error("input errors must not be reported as a gate failure")
			}
		})
	}
}

func TestEvaluate_StageOutputSummary(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "build.log")
	if err := os.WriteFile(path, []byte("compiling\nsrc/app.ts: cannot find module\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand("evaluate", "--format", "json",
		"--stage", "lint=success", "--stage", "typecheck=success", "--stage", "build=failure",
		"--stage-output", "build="+path)
	if !errors.Is(err, ErrGateFailed) {
		t.Fatalf("expected ErrGateFailed, got %v", err)
	}
	var d gate.Decision
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	v, _ := d.Verdict(stage.Build)
	if v.Summary != "src/app.ts: cannot find module" {
		t.Errorf("build summary = %q", v.Summary)
	}
}

func TestEvaluate_CustomPolicy(t *testing.T) {
	dir := isolate(t)
	cfg := "gate:\n  core_stages: [lint]\n  dependencies: {}\n"
	if err := os.WriteFile(filepath.Join(dir, ".qualitygate.yaml"), []byte(cfg), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := executeCommand("evaluate", "--stage", "lint=success", "--stage", "build=failure"); err != nil {
		t.Fatalf("build is informational under this policy: %v", err)
	}
}

func TestEvaluate_InvalidConfig(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("sonar:\n  timeout: soon\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err := executeCommand("evaluate", "--config", path, "--stage", "lint=success")
	if err == nil || !strings.Contains(err.Error(), "validation error") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestReady(t *testing.T) {
	green := []string{"--stage", "lint=success", "--stage", "typecheck=success", "--stage", "build=success"}

	isolate(t)
	out, err := executeCommand(append([]string{"ready", "docker"}, green...)...)
	if err != nil {
		t.Fatalf("docker should be ready: %v", err)
	}
	if !strings.Contains(out, "Docker Build ready") {
		t.Errorf("unexpected output: %s", out)
	}

	isolate(t)
	_, err = executeCommand(append([]string{"ready", "docker", "--skip-docker"}, green...)...)
	if !errors.Is(err, ErrNotReady) || !strings.Contains(err.Error(), "skip_docker") {
		t.Errorf("expected skip_docker not-ready, got %v", err)
	}

	isolate(t)
	out, err = executeCommand("ready", "docker",
		"--stage", "lint=success", "--stage", "typecheck=success", "--stage", "build=failure")
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("expected ErrNotReady, got %v", err)
	}
	if !strings.Contains(out, "blocked by failed core checks (Build)") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestReady_RequiresStage(t *testing.T) {
	isolate(t)
	if _, err := executeCommand("ready"); err == nil {
		t.Error("expected an argument error")
	}
}

func TestEvaluate_StageOutputFindings(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "tsc.log")
	tsc := "src/app.ts(4,7): error TS2322: Type 'string' is not assignable to type 'number'.\n" +
		"src/util.ts:9:1 - error TS2304: Cannot find name 'foo'.\n"
	if err := os.WriteFile(path, []byte(tsc), 0644); err != nil {
		t.Fatal(err)
	}
	out, err := executeCommand("evaluate", "--format", "json",
		"--stage", "lint=success", "--stage", "typecheck=failure", "--stage", "build=success",
		"--stage-output", "typecheck="+path)
	if !errors.Is(err, ErrGateFailed) {
		t.Fatalf("expected ErrGateFailed, got %v", err)
	}

	var d struct {
		Verdicts []struct {
			Stage    string `json:"stage"`
			Findings []struct {
				File string `json:"file"`
				Line int    `json:"line"`
				Code string `json:"code"`
			} `json:"findings"`
		} `json:"verdicts"`
	}
	if err := json.Unmarshal([]byte(out), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, v := range d.Verdicts {
		if v.Stage != string(stage.TypeCheck) {
			if len(v.Findings) != 0 {
				t.Errorf("%s: unexpected findings %+v", v.Stage, v.Findings)
			}
			continue
		}
		if len(v.Findings) != 2 || v.Findings[0].File != "src/app.ts" || v.Findings[0].Line != 4 || v.Findings[1].Code != "TS2304" {
			t.Errorf("typecheck findings = %+v", v.Findings)
		}
	}
}
