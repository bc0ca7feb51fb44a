package checks

import (
	"strings"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// GenericParser is the fallback: it keeps the last non-empty line of a
// failing stage's output, which is where most tools print their verdict.
type GenericParser struct{}

// maxSummaryLen caps the summary taken from free-form output.
const maxSummaryLen = 160

func (p *GenericParser) Parse(output string, outcome stage.Outcome) ParseResult {
	if outcome == stage.Success {
		return ParseResult{Clean: true}
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if r := []rune(last); len(r) > maxSummaryLen {
		last = string(r[:maxSummaryLen-1]) + "…"
	}
	return ParseResult{Summary: last}
}
