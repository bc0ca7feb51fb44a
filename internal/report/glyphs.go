package report

import (
	"strings"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

var outcomeGlyphs = map[stage.Outcome]string{
	stage.Success:    "✅",
	stage.Failure:    "❌",
	stage.Skipped:    "⏭️",
	stage.NotStarted: "⏸️",
	stage.InProgress: "⏳",
}

var outcomeLabels = map[stage.Outcome]string{
	stage.Success:    "Passed",
	stage.Failure:    "Failed",
	stage.Skipped:    "Skipped",
	stage.NotStarted: "Not run",
	stage.InProgress: "In progress",
}

// OutcomeGlyph returns the emoji for a stage outcome, or ❔ if unrecognized.
func OutcomeGlyph(o stage.Outcome) string {
	if g, ok := outcomeGlyphs[o]; ok {
		return g
	}
	return "❔"
}

// OutcomeLabel returns the display label for a stage outcome.
func OutcomeLabel(o stage.Outcome) string {
	if l, ok := outcomeLabels[o]; ok {
		return l
	}
	return "Unknown"
}

var severityGlyphs = map[string]string{
	"BLOCKER":  "🚫",
	"CRITICAL": "🔴",
	"MAJOR":    "🟠",
	"MINOR":    "🟡",
	"INFO":     "🔵",
}

// SeverityGlyph returns the emoji for an issue severity, or ⚪ if unrecognized.
func SeverityGlyph(severity string) string {
	if g, ok := severityGlyphs[strings.ToUpper(severity)]; ok {
		return g
	}
	return "⚪"
}

var probabilityGlyphs = map[string]string{
	"HIGH":   "🔴",
	"MEDIUM": "🟠",
	"LOW":    "🟡",
}

// ProbabilityGlyph returns the emoji for a hotspot's vulnerability probability.
func ProbabilityGlyph(p string) string {
	if g, ok := probabilityGlyphs[strings.ToUpper(p)]; ok {
		return g
	}
	return "⚪"
}

var gateGlyphs = map[string]string{
	"OK":    "✅",
	"WARN":  "⚠️",
	"ERROR": "❌",
}

// GateGlyph returns the emoji for a quality-gate status, or ❔ if unrecognized.
func GateGlyph(status string) string {
	if g, ok := gateGlyphs[strings.ToUpper(status)]; ok {
		return g
	}
	return "❔"
}
