package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/qualitygate/internal/checks"
	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/report"
	"github.com/lucasnoah/qualitygate/internal/sonar"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

// Environment variables read by ApplyEnv and Resolve.
const (
	EnvConfig     = "QUALITYGATE_CONFIG"
	EnvHistoryDSN = "QUALITYGATE_HISTORY_DSN"
	EnvSonarToken = "SONAR_TOKEN"
	EnvSonarHost  = "SONAR_HOST_URL"
)

// SearchPaths are tried in order when no config path is given.
var SearchPaths = []string{".qualitygate.yaml", "qualitygate.yaml"}

const (
	defaultSonarTimeout = "30s"
	defaultOutputDir    = ".qualitygate"
)

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it fills in defaults for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Resolve loads the configuration for a run and applies environment
// overrides. explicit, when set, must exist. Otherwise $QUALITYGATE_CONFIG
// and then SearchPaths are tried; if none exists the defaults are used.
// The returned path is empty when defaults were used.
func Resolve(explicit string) (*Config, string, error) {
	candidates := SearchPaths
	if explicit == "" {
		explicit = os.Getenv(EnvConfig)
	}
	if explicit != "" {
		candidates = []string{explicit}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			if explicit != "" {
				return nil, "", fmt.Errorf("config %s: %w", path, err)
			}
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			return nil, "", err
		}
		cfg.ApplyEnv(os.Getenv)
		return cfg, path, nil
	}

	cfg := Default()
	cfg.ApplyEnv(os.Getenv)
	return cfg, "", nil
}

// ApplyEnv overlays secrets and deployment settings from the environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.Sonar.Token = getenv(EnvSonarToken)
	if v := getenv(EnvSonarHost); v != "" {
		c.Sonar.HostURL = v
	}
	if v := getenv(EnvHistoryDSN); v != "" {
		c.History.DSN = v
	}
}

// applyDefaults fills unset sections. A section present in the file, even
// if empty, is kept as written so defaults can be switched off.
func applyDefaults(cfg *Config) {
	def := gate.DefaultPolicy()
	g := &cfg.Gate
	if g.CoreStages == nil {
		for _, n := range def.CoreStages {
			g.CoreStages = append(g.CoreStages, string(n))
		}
	}
	if g.Skippable == nil {
		g.Skippable = make(map[string]string, len(def.Skippable))
		for n, flag := range def.Skippable {
			g.Skippable[string(n)] = flag
		}
	}
	if g.Dependencies == nil {
		g.Dependencies = make(map[string][]string, len(def.Dependencies))
		for n, deps := range def.Dependencies {
			for _, d := range deps {
				g.Dependencies[string(n)] = append(g.Dependencies[string(n)], string(d))
			}
		}
	}

	if cfg.Stages == nil {
		cfg.Stages = map[string]StageConfig{
			string(stage.Lint):      {Parser: "eslint"},
			string(stage.TypeCheck): {Parser: "typescript"},
			string(stage.Security):  {Parser: "npm-audit"},
		}
	}

	s := &cfg.Sonar
	if s.Timeout == "" {
		s.Timeout = defaultSonarTimeout
	}
	if s.MaxIssues == 0 {
		s.MaxIssues = sonar.DefaultLimits.Issues
	}
	if s.MaxHotspots == 0 {
		s.MaxHotspots = sonar.DefaultLimits.Hotspots
	}
	if s.MaxLowCoverageFiles == 0 {
		s.MaxLowCoverageFiles = sonar.DefaultLimits.LowCoverage
	}

	if cfg.Report.Title == "" {
		cfg.Report.Title = report.DefaultTitle
	}
	if cfg.Report.OutputDir == "" {
		cfg.Report.OutputDir = defaultOutputDir
	}
}

// Policy converts the gate section into an evaluation policy.
func (c *Config) Policy() gate.Policy {
	p := gate.Policy{
		Skippable:    make(map[stage.Name]string, len(c.Gate.Skippable)),
		Dependencies: make(map[stage.Name][]stage.Name, len(c.Gate.Dependencies)),
	}
	for _, n := range c.Gate.CoreStages {
		p.CoreStages = append(p.CoreStages, stage.Name(n))
	}
	for n, flag := range c.Gate.Skippable {
		p.Skippable[stage.Name(n)] = flag
	}
	for n, deps := range c.Gate.Dependencies {
		for _, d := range deps {
			p.Dependencies[stage.Name(n)] = append(p.Dependencies[stage.Name(n)], stage.Name(d))
		}
	}
	return p
}

// ParserFor returns the parser configured for a stage, or the generic one.
func (c *Config) ParserFor(n stage.Name) string {
	if sc, ok := c.Stages[string(n)]; ok && sc.Parser != "" {
		return sc.Parser
	}
	return checks.Generic
}

// SonarLimits returns the display caps for the analysis fetch.
func (c *Config) SonarLimits() sonar.Limits {
	return sonar.Limits{
		Issues:      c.Sonar.MaxIssues,
		Hotspots:    c.Sonar.MaxHotspots,
		LowCoverage: c.Sonar.MaxLowCoverageFiles,
	}
}

// SonarTimeout returns the per-request timeout. Validate rejects values
// that do not parse; those fall back to the default here.
func (c *Config) SonarTimeout() time.Duration {
	d, err := time.ParseDuration(c.Sonar.Timeout)
	if err != nil || d <= 0 {
		d, _ = time.ParseDuration(defaultSonarTimeout)
	}
	return d
}
