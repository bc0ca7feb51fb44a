package checks

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// NPMAuditParser reads `npm audit --json` output (npm 7+ format).
type NPMAuditParser struct{}

type npmAuditReport struct {
	Metadata struct {
		Vulnerabilities map[string]int `json:"vulnerabilities"`
	} `json:"metadata"`
	Vulnerabilities map[string]struct {
		Severity string `json:"severity"`
	} `json:"vulnerabilities"`
}

// auditSeverities in descending order; "total" is reported separately.
var auditSeverities = []string{"critical", "high", "moderate", "low", "info"}

// Advisory is one vulnerable package.
type Advisory struct {
	Package  string `json:"package"`
	Severity string `json:"severity"`
}

// AuditCounts aggregates an npm audit report.
type AuditCounts struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	Advisories []Advisory     `json:"advisories,omitempty"`
}

func (p *NPMAuditParser) Parse(output string, outcome stage.Outcome) ParseResult {
	var raw npmAuditReport
	if err := json.Unmarshal([]byte(output), &raw); err != nil {
		return unparsed("npm audit", outcome)
	}

	c := AuditCounts{BySeverity: make(map[string]int)}
	for _, sev := range auditSeverities {
		if n := raw.Metadata.Vulnerabilities[sev]; n > 0 {
			c.BySeverity[sev] = n
			c.Total += n
		}
	}
	for name, v := range raw.Vulnerabilities {
		c.Advisories = append(c.Advisories, Advisory{Package: name, Severity: v.Severity})
	}
	sort.Slice(c.Advisories, func(i, j int) bool { return c.Advisories[i].Package < c.Advisories[j].Package })

	if c.Total == 0 {
		return ParseResult{Clean: true, Summary: "no known vulnerabilities", Findings: c}
	}

	var parts []string
	for _, sev := range auditSeverities {
		if n := c.BySeverity[sev]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, sev))
		}
	}
	return ParseResult{
		Clean:    c.BySeverity["critical"] == 0 && c.BySeverity["high"] == 0,
		Summary:  fmt.Sprintf("%s (%s)", plural(c.Total, "vulnerability"), strings.Join(parts, ", ")),
		Findings: c,
	}
}
