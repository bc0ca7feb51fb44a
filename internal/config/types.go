package config

import (
	"net/url"
	"regexp"
)

// Config is the top-level configuration parsed from .qualitygate.yaml.
type Config struct {
	Gate    Gate                   `yaml:"gate"`
	Stages  map[string]StageConfig `yaml:"stages"`
	Sonar   Sonar                  `yaml:"sonar"`
	Report  Report                 `yaml:"report"`
	History History                `yaml:"history"`
}

// Gate defines which stages are core, which skip flag skips a stage, and
// which stages wait on others.
type Gate struct {
	CoreStages   []string            `yaml:"core_stages"`
	Skippable    map[string]string   `yaml:"skippable"`
	Dependencies map[string][]string `yaml:"dependencies"`
}

// StageConfig holds per-stage settings.
type StageConfig struct {
	Parser string `yaml:"parser"`
}

// Sonar configures the analysis fetch. The token is never read from the
// file; it comes from SONAR_TOKEN.
type Sonar struct {
	ProjectKey          string `yaml:"project_key"`
	HostURL             string `yaml:"host_url"`
	Token               string `yaml:"-"`
	Timeout             string `yaml:"timeout"`
	MaxIssues           int    `yaml:"max_issues"`
	MaxHotspots         int    `yaml:"max_hotspots"`
	MaxLowCoverageFiles int    `yaml:"max_low_coverage_files"`
}

// Report configures rendering and local artifacts.
type Report struct {
	Title     string `yaml:"title"`
	OutputDir string `yaml:"output_dir"`
}

// History configures the optional run log. An empty DSN disables it.
type History struct {
	DSN string `yaml:"dsn"`
}

var dsnPassword = regexp.MustCompile(`(?i)\bpassword=('[^']*'|\S+)`)

// RedactedDSN returns the DSN with any password replaced by "xxxxx". Both
// URL and keyword/value forms are handled; file paths pass through.
func (h History) RedactedDSN() string {
	if u, err := url.Parse(h.DSN); err == nil && u.User != nil {
		return u.Redacted()
	}
	return dsnPassword.ReplaceAllString(h.DSN, "password=xxxxx")
}
