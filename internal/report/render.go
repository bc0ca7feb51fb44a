// Package report renders gate decisions and analysis snapshots as the
// markdown posted to pull requests.
package report

import (
	"fmt"
	"strings"

	"github.com/lucasnoah/qualitygate/internal/gate"
	"github.com/lucasnoah/qualitygate/internal/sonar"
	"github.com/lucasnoah/qualitygate/internal/stage"
)

// DefaultTitle is the first line of every report. The publisher uses it to
// find comments it posted earlier.
const DefaultTitle = "## 🔍 Code Quality Report"

// Section headers, in the order they appear.
const (
	HeaderSummary  = "### 📋 Check Summary"
	HeaderStatus   = "### 🚦 Overall Status"
	HeaderAnalysis = "### 📊 Quality Analysis"
	HeaderAbout    = "### ℹ️ About This Report"

	HeaderMetrics    = "#### Metrics"
	HeaderIssues     = "#### Critical Issues"
	HeaderHotspots   = "#### Security Hotspots"
	HeaderCoverage   = "#### Low Coverage Files"
	HeaderConditions = "#### Failed Quality Gate Conditions"
)

const na = "N/A"

// Input is everything a report is built from.
type Input struct {
	Results  stage.Set
	Decision *gate.Decision // evaluated from Results, Policy and Flags when nil
	Snapshot *sonar.Snapshot
	Flags    gate.Flags
	Policy   gate.Policy
	Title    string
	Commit   string
}

// Render builds the markdown report. It never fails: missing data shows up
// as placeholders, and every section header is always present.
func Render(in Input) string {
	if in.Decision == nil {
		in.Decision = gate.Evaluate(in.Results, in.Policy, in.Flags)
	}
	title := in.Title
	if title == "" {
		title = DefaultTitle
	}

	var b strings.Builder
	b.WriteString(title + "\n\n")
	writeSummary(&b, in.Decision)
	writeStatus(&b, in.Decision)
	writeAnalysis(&b, in.Snapshot)
	writeAbout(&b, in.Policy, in.Commit)
	return b.String()
}

func writeSummary(b *strings.Builder, d *gate.Decision) {
	b.WriteString(HeaderSummary + "\n\n")
	t := newTable("Check", "Type", "Status", "Details")
	for _, v := range d.Verdicts {
		kind := "Informational"
		if v.Core {
			kind = "Core"
		}
		t.Row(v.Stage.Label(), kind, statusCell(v), detailsCell(v))
	}
	b.WriteString(t.String() + "\n")
}

func statusCell(v gate.Verdict) string {
	switch {
	case v.Blocked:
		return OutcomeGlyph(stage.Skipped) + " Blocked"
	case v.Skipped:
		return OutcomeGlyph(stage.Skipped) + " Skipped"
	case !v.Core && v.Reported == stage.Failure:
		return "⚠️ Issues found"
	}
	return OutcomeGlyph(v.Reported) + " " + OutcomeLabel(v.Reported)
}

func detailsCell(v gate.Verdict) string {
	if v.Summary != "" && !v.Skipped && !v.Blocked {
		return oneLine(v.Summary)
	}
	return v.Reason
}

func writeStatus(b *strings.Builder, d *gate.Decision) {
	b.WriteString(HeaderStatus + "\n\n")
	if d.Passed {
		b.WriteString("✅ **All core checks passed.**\n\n")
	} else {
		b.WriteString("❌ **Core checks failed.** This pull request should not be merged until they pass.\n\n")
	}
	for _, v := range d.Failures() {
		fmt.Fprintf(b, "- ❌ %s\n", v.Reason)
	}
	for _, v := range d.Advisories() {
		fmt.Fprintf(b, "- ⚠️ %s\n", v.Reason)
	}
	for _, v := range d.Verdicts {
		if v.Blocked || v.Skipped {
			fmt.Fprintf(b, "- ⏭️ %s\n", v.Reason)
		}
	}
	if len(d.Flags) > 0 {
		fmt.Fprintf(b, "\nSkip flags: `%s`\n", strings.Join(d.Flags, "`, `"))
	}
	b.WriteString("\n")
}

func writeAnalysis(b *strings.Builder, s *sonar.Snapshot) {
	b.WriteString(HeaderAnalysis + "\n\n")
	switch {
	case s == nil:
		b.WriteString("_Not available: no analysis data_\n\n")
	case s.Skipped != "":
		fmt.Fprintf(b, "_Not available: %s_\n\n", s.Skipped)
	case s.QualityGate != nil:
		fmt.Fprintf(b, "Quality gate: %s **%s**\n\n", GateGlyph(s.QualityGate.Status), s.QualityGate.Status)
	case s.Err(sonar.SectionQualityGate) != "":
		fmt.Fprintf(b, "Quality gate: %s\n\n", na)
	}

	writeMetrics(b, s)
	writeIssues(b, s)
	writeHotspots(b, s)
	writeCoverage(b, s)
	writeConditions(b, s)
}

// unavailable returns the reason a section has no data, or "".
func unavailable(s *sonar.Snapshot, sec sonar.Section) string {
	switch {
	case s == nil:
		return "no analysis data"
	case s.Skipped != "":
		return s.Skipped
	}
	return s.Err(sec)
}

type metricRow struct {
	label   string
	overall string
	newCode string
	percent bool
}

var metricRows = []metricRow{
	{"Bugs", sonar.MetricBugs, sonar.MetricNewBugs, false},
	{"Vulnerabilities", sonar.MetricVulnerabilities, sonar.MetricNewVulnerabilities, false},
	{"Code Smells", sonar.MetricCodeSmells, sonar.MetricNewCodeSmells, false},
	{"Security Hotspots", sonar.MetricHotspots, sonar.MetricNewHotspots, false},
	{"Coverage", sonar.MetricCoverage, sonar.MetricNewCoverage, true},
	{"Duplication", sonar.MetricDuplication, sonar.MetricNewDuplication, true},
	{"Reliability Rating", sonar.MetricReliabilityRating, sonar.MetricNewReliabilityRating, false},
	{"Security Rating", sonar.MetricSecurityRating, sonar.MetricNewSecurityRating, false},
	{"Maintainability Rating", sonar.MetricMaintainabilityRating, sonar.MetricNewMaintainabilityRating, false},
	{"Lines of Code", sonar.MetricLinesOfCode, "", false},
	{"Complexity", sonar.MetricComplexity, "", false},
	{"Cognitive Complexity", sonar.MetricCognitiveComplexity, "", false},
}

func writeMetrics(b *strings.Builder, s *sonar.Snapshot) {
	b.WriteString(HeaderMetrics + "\n\n")
	if reason := unavailable(s, sonar.SectionMetrics); reason != "" {
		fmt.Fprintf(b, "_Metrics unavailable: %s_\n\n", reason)
	}
	t := newTable("Metric", "Overall", "New Code")
	t.AlignRight(2, 3)
	for _, m := range metricRows {
		t.Row(m.label, metricValue(s, m.overall, m.percent), metricValue(s, m.newCode, m.percent))
	}
	b.WriteString(t.String() + "\n")
}

func metricValue(s *sonar.Snapshot, key string, percent bool) string {
	if key == "" {
		return na
	}
	v := s.Metric(key)
	if v == "" {
		return na
	}
	if percent {
		return v + "%"
	}
	return v
}

func writeIssues(b *strings.Builder, s *sonar.Snapshot) {
	b.WriteString(HeaderIssues + "\n\n")
	if reason := unavailable(s, sonar.SectionIssues); reason != "" {
		fmt.Fprintf(b, "_Not available: %s_\n\n", reason)
		return
	}
	if len(s.Issues) == 0 {
		b.WriteString("_No critical issues found._\n\n")
		return
	}
	for _, is := range s.Issues {
		fmt.Fprintf(b, "- %s **%s** %s: %s", SeverityGlyph(is.Severity), is.Severity, location(is.File, is.Line), oneLine(is.Message))
		if is.Rule != "" {
			fmt.Fprintf(b, " (`%s`)", is.Rule)
		}
		b.WriteString("\n")
	}
	writeOmitted(b, s.OmittedIssues())
}

func writeHotspots(b *strings.Builder, s *sonar.Snapshot) {
	b.WriteString(HeaderHotspots + "\n\n")
	if reason := unavailable(s, sonar.SectionHotspots); reason != "" {
		fmt.Fprintf(b, "_Not available: %s_\n\n", reason)
		return
	}
	if len(s.Hotspots) == 0 {
		b.WriteString("_No security hotspots to review._\n\n")
		return
	}
	for _, h := range s.Hotspots {
		fmt.Fprintf(b, "- %s **%s** %s: %s\n", ProbabilityGlyph(h.Probability), h.Probability, location(h.File, h.Line), oneLine(h.Message))
	}
	writeOmitted(b, s.OmittedHotspots())
}

func writeCoverage(b *strings.Builder, s *sonar.Snapshot) {
	b.WriteString(HeaderCoverage + "\n\n")
	if reason := unavailable(s, sonar.SectionCoverage); reason != "" {
		fmt.Fprintf(b, "_Not available: %s_\n\n", reason)
		return
	}
	if len(s.LowCoverage) == 0 {
		b.WriteString("_No files with coverage data._\n\n")
		return
	}
	t := newTable("File", "Coverage", "Uncovered Lines")
	t.AlignRight(2, 3)
	for _, f := range s.LowCoverage {
		uncovered := f.UncoveredLines
		if uncovered == "" {
			uncovered = na
		}
		t.Row("`"+f.Path+"`", f.Coverage+"%", uncovered)
	}
	b.WriteString(t.String() + "\n")
}

func writeConditions(b *strings.Builder, s *sonar.Snapshot) {
	b.WriteString(HeaderConditions + "\n\n")
	if reason := unavailable(s, sonar.SectionQualityGate); reason != "" {
		fmt.Fprintf(b, "_Not available: %s_\n\n", reason)
		return
	}
	if s.QualityGate == nil {
		b.WriteString("_Quality gate status unknown._\n\n")
		return
	}
	failed := s.QualityGate.FailedConditions()
	if len(failed) == 0 {
		b.WriteString("_All quality gate conditions passed._\n\n")
		return
	}
	t := newTable("Metric", "Status", "Actual", "Threshold")
	for _, c := range failed {
		threshold := c.Threshold
		if c.Comparator != "" {
			threshold = comparatorSymbol(c.Comparator) + " " + c.Threshold
		}
		t.Row(c.Metric, GateGlyph(c.Status)+" "+c.Status, valueOr(c.Actual), threshold)
	}
	b.WriteString(t.String() + "\n")
}

func comparatorSymbol(c string) string {
	switch c {
	case "LT":
		return "<"
	case "GT":
		return ">"
	case "EQ":
		return "="
	case "NE":
		return "≠"
	}
	return c
}

func writeAbout(b *strings.Builder, p gate.Policy, commit string) {
	b.WriteString(HeaderAbout + "\n\n")
	core := make([]string, len(p.CoreStages))
	for i, n := range p.CoreStages {
		core[i] = n.Label()
	}
	if len(core) == 0 {
		core = append(core, "none")
	}
	fmt.Fprintf(b, "- **Core checks** (%s) must pass for the quality gate to pass.\n", strings.Join(core, ", "))
	b.WriteString("- **Informational checks** are reported for visibility and never fail the gate.\n")
	b.WriteString("- A check skipped through its skip flag counts as passed. Checks that depend on failed core checks are skipped.\n")
	b.WriteString("- This comment is replaced on every run.\n")
	if commit != "" {
		fmt.Fprintf(b, "\n<sub>Commit `%s`</sub>\n", shortSHA(commit))
	}
}

func writeOmitted(b *strings.Builder, n int) {
	if n > 0 {
		fmt.Fprintf(b, "\n_… and %d more_\n", n)
	}
	b.WriteString("\n")
}

func location(file string, line int) string {
	if file == "" {
		return "`" + na + "`"
	}
	if line > 0 {
		return fmt.Sprintf("`%s:%d`", file, line)
	}
	return "`" + file + "`"
}

func valueOr(v string) string {
	if v == "" {
		return na
	}
	return v
}

func oneLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
