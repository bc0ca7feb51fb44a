package sonar

import "github.com/lucasnoah/qualitygate/internal/stage"

// Section names one independently fetched part of a Snapshot.
type Section string

const (
	SectionMetrics     Section = "metrics"
	SectionQualityGate Section = "quality_gate"
	SectionIssues      Section = "issues"
	SectionHotspots    Section = "hotspots"
	SectionCoverage    Section = "coverage"
)

// Sections lists every section in fetch order.
var Sections = []Section{SectionMetrics, SectionQualityGate, SectionIssues, SectionHotspots, SectionCoverage}

// Metric keys requested from the measures endpoint.
const (
	MetricBugs                     = "bugs"
	MetricVulnerabilities          = "vulnerabilities"
	MetricCodeSmells               = "code_smells"
	MetricCoverage                 = "coverage"
	MetricDuplication              = "duplicated_lines_density"
	MetricHotspots                 = "security_hotspots"
	MetricReliabilityRating        = "reliability_rating"
	MetricSecurityRating           = "security_rating"
	MetricMaintainabilityRating    = "sqale_rating"
	MetricLinesOfCode              = "ncloc"
	MetricComplexity               = "complexity"
	MetricCognitiveComplexity      = "cognitive_complexity"
	MetricNewBugs                  = "new_bugs"
	MetricNewVulnerabilities       = "new_vulnerabilities"
	MetricNewCodeSmells            = "new_code_smells"
	MetricNewCoverage              = "new_coverage"
	MetricNewDuplication           = "new_duplicated_lines_density"
	MetricNewHotspots              = "new_security_hotspots"
	MetricNewReliabilityRating     = "new_reliability_rating"
	MetricNewSecurityRating        = "new_security_rating"
	MetricNewMaintainabilityRating = "new_maintainability_rating"
)

// MetricKeys is the full list requested in a single measures call.
var MetricKeys = []string{
	MetricBugs, MetricVulnerabilities, MetricCodeSmells, MetricCoverage, MetricDuplication,
	MetricHotspots, MetricReliabilityRating, MetricSecurityRating, MetricMaintainabilityRating,
	MetricLinesOfCode, MetricComplexity, MetricCognitiveComplexity,
	MetricNewBugs, MetricNewVulnerabilities, MetricNewCodeSmells, MetricNewCoverage,
	MetricNewDuplication, MetricNewHotspots, MetricNewReliabilityRating,
	MetricNewSecurityRating, MetricNewMaintainabilityRating,
}

// Issue is an open issue reported by the analysis.
type Issue struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
	File     string `json:"file"`
	Line     int    `json:"line,omitempty"`
	Rule     string `json:"rule"`
}

// Hotspot is a security hotspot awaiting review.
type Hotspot struct {
	Probability string `json:"probability"`
	Message     string `json:"message"`
	File        string `json:"file"`
	Line        int    `json:"line,omitempty"`
}

// FileCoverage is the coverage of one file.
type FileCoverage struct {
	Path           string `json:"path"`
	Coverage       string `json:"coverage"`
	UncoveredLines string `json:"uncovered_lines,omitempty"`
}

// Condition is one quality-gate condition.
type Condition struct {
	Metric     string `json:"metric"`
	Comparator string `json:"comparator,omitempty"`
	Actual     string `json:"actual"`
	Threshold  string `json:"threshold"`
	Status     string `json:"status"`
}

// QualityGate is the project's quality-gate status.
type QualityGate struct {
	Status     string      `json:"status"` // OK, WARN, ERROR or NONE
	Conditions []Condition `json:"conditions,omitempty"`
}

// FailedConditions returns the conditions that did not pass.
func (q QualityGate) FailedConditions() []Condition {
	var out []Condition
	for _, c := range q.Conditions {
		if c.Status == "ERROR" || c.Status == "WARN" {
			out = append(out, c)
		}
	}
	return out
}

// Snapshot is the analysis data pulled for one run. It is rebuilt on every
// invocation. A section that failed to load is empty and has an entry in
// Errors; Skipped is set when no fetch was attempted at all.
type Snapshot struct {
	ProjectKey    string             `json:"project_key"`
	Metrics       map[string]string  `json:"metrics,omitempty"`
	QualityGate   *QualityGate       `json:"quality_gate,omitempty"`
	Issues        []Issue            `json:"issues,omitempty"`
	IssuesTotal   int                `json:"issues_total"`
	Hotspots      []Hotspot          `json:"hotspots,omitempty"`
	HotspotsTotal int                `json:"hotspots_total"`
	LowCoverage   []FileCoverage     `json:"low_coverage,omitempty"`
	Errors        map[Section]string `json:"errors,omitempty"`
	Skipped       string             `json:"skipped,omitempty"`
}

// Empty reports whether no section holds data.
func (s *Snapshot) Empty() bool {
	return s == nil || (len(s.Metrics) == 0 && s.QualityGate == nil && len(s.Issues) == 0 &&
		len(s.Hotspots) == 0 && len(s.LowCoverage) == 0)
}

// Err returns the fetch error recorded for a section, if any.
func (s *Snapshot) Err(sec Section) string {
	if s == nil {
		return ""
	}
	return s.Errors[sec]
}

// Metric returns the value of key, or "" when unavailable.
func (s *Snapshot) Metric(key string) string {
	if s == nil {
		return ""
	}
	return s.Metrics[key]
}

// OmittedIssues returns how many issues exist beyond those listed.
func (s *Snapshot) OmittedIssues() int {
	if s == nil || s.IssuesTotal <= len(s.Issues) {
		return 0
	}
	return s.IssuesTotal - len(s.Issues)
}

// OmittedHotspots returns how many hotspots exist beyond those listed.
func (s *Snapshot) OmittedHotspots() int {
	if s == nil || s.HotspotsTotal <= len(s.Hotspots) {
		return 0
	}
	return s.HotspotsTotal - len(s.Hotspots)
}

// Hint is the outcome of the analysis stage, used to decide whether there
// is anything to fetch.
type Hint string

const (
	HintSuccess Hint = "success"
	HintFailure Hint = "failure"
	HintOther   Hint = "other"
)

// HintFromOutcome converts a stage outcome into a fetch hint.
func HintFromOutcome(o stage.Outcome) Hint {
	switch o {
	case stage.Success:
		return HintSuccess
	case stage.Failure:
		return HintFailure
	}
	return HintOther
}

// Ran reports whether the analysis ran to a conclusion.
func (h Hint) Ran() bool {
	return h == HintSuccess || h == HintFailure
}
