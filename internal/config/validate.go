package config

import (
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/lucasnoah/qualitygate/internal/checks"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Stages the config knows about: the standard workflow plus anything
	// named in the gate or stages sections.
	defined := make(map[string]bool)
	for _, n := range stage.Known {
		defined[string(n)] = true
	}
	for _, n := range cfg.Gate.CoreStages {
		defined[n] = true
	}
	for n := range cfg.Gate.Skippable {
		defined[n] = true
	}
	for n := range cfg.Stages {
		defined[n] = true
	}

	seen := make(map[string]bool)
	for i, n := range cfg.Gate.CoreStages {
		field := fmt.Sprintf("gate.core_stages[%d]", i)
		switch {
		case n == "":
			add(field, "is required")
		case seen[n]:
			add(field, "duplicate stage %q", n)
		}
		seen[n] = true
	}

	for _, n := range sortedKeys(cfg.Gate.Skippable) {
		if cfg.Gate.Skippable[n] == "" {
			add("gate.skippable."+n, "skip flag is required")
		}
	}

	for _, n := range sortedKeys(cfg.Gate.Dependencies) {
		field := "gate.dependencies." + n
		if !defined[n] {
			add(field, "references undefined stage %q", n)
		}
		for _, d := range cfg.Gate.Dependencies[n] {
			switch {
			case d == n:
				add(field, "stage %q cannot depend on itself", n)
			case !defined[d]:
				add(field, "references undefined stage %q", d)
			}
		}
	}

	for _, n := range sortedKeys(cfg.Stages) {
		p := cfg.Stages[n].Parser
		if _, ok := checks.Lookup(p); p != "" && !ok {
			add(fmt.Sprintf("stages.%s.parser", n), "unrecognized parser %q (want one of %v)", p, checks.Names())
		}
	}

	s := cfg.Sonar
	if d, err := time.ParseDuration(s.Timeout); err != nil {
		add("sonar.timeout", "invalid duration %q", s.Timeout)
	} else if d <= 0 {
		add("sonar.timeout", "must be positive")
	}
	for field, v := range map[string]int{
		"sonar.max_issues":             s.MaxIssues,
		"sonar.max_hotspots":           s.MaxHotspots,
		"sonar.max_low_coverage_files": s.MaxLowCoverageFiles,
	} {
		if v < 0 {
			add(field, "must not be negative")
		}
	}
	if s.HostURL != "" {
		if u, err := url.Parse(s.HostURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			add("sonar.host_url", "invalid URL %q", s.HostURL)
		}
	}

	if cfg.Report.Title == "" {
		add("report.title", "is required")
	}

	sort.SliceStable(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
