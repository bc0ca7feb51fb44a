package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/report"
	"github.com/lucasnoah/qualitygate/internal/sonar"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

const validConfig = `
gate:
  core_stages: [lint, typecheck, build, test]
  skippable:
    build: skip_build
    docker: skip_docker
  dependencies:
    docker: [lint, typecheck, build, test]
stages:
  lint:
    parser: eslint
  test:
    parser: generic
sonar:
  project_key: my-app
  host_url: https://sonar.example.com
  timeout: 10s
  max_issues: 20
report:
  title: "## Quality"
history:
  dsn: "file:history.db"
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "qualitygate.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func hasError(errs []ValidationError, field, fragment string) bool {
	for _, e := range errs {
		if e.Field == field && strings.Contains(e.Message, fragment) {
			return true
		}
	}
	return false
}

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Sonar.ProjectKey != "my-app" {
		t.Errorf("ProjectKey = %q", cfg.Sonar.ProjectKey)
	}
	if cfg.SonarTimeout() != 10*time.Second {
		t.Errorf("SonarTimeout = %v", cfg.SonarTimeout())
	}
	if cfg.Report.Title != "## Quality" {
		t.Errorf("Title = %q", cfg.Report.Title)
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("Validate() returned errors for valid config: %v", errs)
	}
}

func TestDefaultsMerge(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// max_issues is explicit, the other caps fall back.
	want := sonar.Limits{Issues: 20, Hotspots: sonar.DefaultLimits.Hotspots, LowCoverage: sonar.DefaultLimits.LowCoverage}
	if diff := cmp.Diff(want, cfg.SonarLimits()); diff != "" {
		t.Errorf("limits mismatch (-want +got):\n%s", diff)
	}
	if cfg.Report.OutputDir != ".qualitygate" {
		t.Errorf("OutputDir = %q", cfg.Report.OutputDir)
	}
	// The gate section was given, so its skippable map replaces the default.
	if _, ok := cfg.Gate.Skippable["sonar"]; ok {
		t.Error("explicit skippable map should not be merged with defaults")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if diff := cmp.Diff(gate.DefaultPolicy(), cfg.Policy()); diff != "" {
		t.Errorf("default policy mismatch (-want +got):\n%s", diff)
	}
	if cfg.Report.Title != report.DefaultTitle {
		t.Errorf("Title = %q", cfg.Report.Title)
	}
	if cfg.ParserFor(stage.Lint) != "eslint" || cfg.ParserFor(stage.Security) != "npm-audit" {
		t.Error("default parsers not applied")
	}
	if cfg.ParserFor(stage.Build) != "generic" {
		t.Errorf("unconfigured stage should use generic parser, got %q", cfg.ParserFor(stage.Build))
	}
	if cfg.SonarTimeout() != 30*time.Second {
		t.Errorf("SonarTimeout = %v", cfg.SonarTimeout())
	}
	if errs := Validate(cfg); len(errs) != 0 {
		t.Errorf("defaults should validate: %v", errs)
	}
}

func TestPolicyConversion(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	p := cfg.Policy()
	if !p.IsCore("test") {
		t.Error("custom core stage should be core")
	}
	if flag, ok := p.SkipFlag(stage.Docker); !ok || flag != "skip_docker" {
		t.Errorf("SkipFlag(docker) = %q, %v", flag, ok)
	}
	if got := p.Dependencies[stage.Docker]; len(got) != 4 || got[3] != "test" {
		t.Errorf("docker dependencies = %v", got)
	}
}

func TestEmptyGateSectionsDisableDefaults(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, "gate:\n  core_stages: []\n  dependencies: {}\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(cfg.Gate.CoreStages) != 0 || len(cfg.Gate.Dependencies) != 0 {
		t.Errorf("explicit empty sections should stay empty: %+v", cfg.Gate)
	}
	if len(cfg.Gate.Skippable) != 4 {
		t.Errorf("omitted skippable should default, got %v", cfg.Gate.Skippable)
	}
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	cfg.Sonar.HostURL = "https://from-file"
	env := map[string]string{
		EnvSonarToken: "secret",
		EnvHistoryDSN: "postgres://db/qg",
	}
	cfg.ApplyEnv(func(k string) string { return env[k] })

	if cfg.Sonar.Token != "secret" {
		t.Errorf("Token = %q", cfg.Sonar.Token)
	}
	if cfg.Sonar.HostURL != "https://from-file" {
		t.Error("unset SONAR_HOST_URL must not clear the file value")
	}
	if cfg.History.DSN != "postgres://db/qg" {
		t.Errorf("DSN = %q", cfg.History.DSN)
	}

	env[EnvSonarHost] = "https://from-env"
	cfg.ApplyEnv(func(k string) string { return env[k] })
	if cfg.Sonar.HostURL != "https://from-env" {
		t.Errorf("HostURL = %q", cfg.Sonar.HostURL)
	}
}

func TestTokenNotReadFromFile(t *testing.T) {
	cfg, err := Load(writeTestConfig(t, "sonar:\n  token: leaked\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Sonar.Token != "" {
		t.Error("token must only come from the environment")
	}
}

func TestResolve(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv(EnvConfig, "")
	t.Setenv(EnvSonarToken, "tok")

	cfg, path, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if path != "" || cfg.Sonar.Token != "tok" {
		t.Errorf("expected defaults with env token, got path=%q token=%q", path, cfg.Sonar.Token)
	}

	if err := os.WriteFile(".qualitygate.yaml", []byte("sonar:\n  project_key: found\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, path, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if path != ".qualitygate.yaml" || cfg.Sonar.ProjectKey != "found" {
		t.Errorf("expected search path hit, got path=%q key=%q", path, cfg.Sonar.ProjectKey)
	}

	if _, _, err := Resolve("missing.yaml"); err == nil {
		t.Error("an explicit config that does not exist is an error")
	}

	t.Setenv(EnvConfig, "also-missing.yaml")
	if _, _, err := Resolve(""); err == nil {
		t.Error("a config named by the environment that does not exist is an error")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	if _, err := Load(writeTestConfig(t, "gate: [unclosed")); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected read error")
	}
}

func TestValidateErrors(t *testing.T) {
	yaml := `
gate:
  core_stages: [lint, lint, ""]
  skippable:
    build: ""
  dependencies:
    docker: [docker, ghost]
    phantom: [lint]
stages:
  lint:
    parser: jslint
sonar:
  timeout: soon
  max_hotspots: -1
  host_url: "sonar.local"
`
	cfg, err := Load(writeTestConfig(t, yaml))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	errs := Validate(cfg)

	checks := []struct{ field, fragment string }{
		{"gate.core_stages[1]", "duplicate stage"},
		{"gate.core_stages[2]", "is required"},
		{"gate.skippable.build", "skip flag is required"},
		{"gate.dependencies.docker", "cannot depend on itself"},
		{"gate.dependencies.docker", `undefined stage "ghost"`},
		{"gate.dependencies.phantom", `undefined stage "phantom"`},
		{"stages.lint.parser", `unrecognized parser "jslint"`},
		{"sonar.timeout", "invalid duration"},
		{"sonar.max_hotspots", "must not be negative"},
		{"sonar.host_url", "invalid URL"},
	}
	for _, c := range checks {
		if !hasError(errs, c.field, c.fragment) {
			t.Errorf("expected %s: %s, got %v", c.field, c.fragment, errs)
		}
	}
	if len(errs) != len(checks) {
		t.Errorf("expected %d errors, got %d: %v", len(checks), len(errs), errs)
	}
}

func TestValidationError_Error(t *testing.T) {
	e := ValidationError{Field: "sonar.timeout", Message: "must be positive"}
	if e.Error() != "sonar.timeout: must be positive" {
		t.Errorf("Error() = %q", e.Error())
	}
}

func TestHistory_RedactedDSN(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{"", ""},
		{".qualitygate/history.db", ".qualitygate/history.db"},
		{"postgres://db/qg", "postgres://db/qg"},
		{"postgres://ci:secret@db:5432/qg?sslmode=disable", "postgres://ci:xxxxx@db:5432/qg?sslmode=disable"},
		{"host=db user=ci password=secret dbname=qg", "host=db user=ci password=xxxxx dbname=qg"},
		{"host=db password='two words' dbname=qg", "host=db password=xxxxx dbname=qg"},
	}
	for _, tt := range tests {
		if got := (History{DSN: tt.dsn}).RedactedDSN(); got != tt.want {
			t.Errorf("RedactedDSN(%q) = %q, want %q", tt.dsn, got, tt.want)
		}
	}
}
