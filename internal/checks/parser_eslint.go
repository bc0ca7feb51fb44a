package checks

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// ESLintParser reads `eslint --format json` output.
type ESLintParser struct{}

type eslintFile struct {
	FilePath     string          `json:"filePath"`
	Messages     []eslintMessage `json:"messages"`
	ErrorCount   int             `json:"errorCount"`
	WarningCount int             `json:"warningCount"`
}

type eslintMessage struct {
	RuleID   string          `json:"ruleId"`
	Severity int             `json:"severity"` // 1=warning, 2=error
	Message  string          `json:"message"`
	Line     int             `json:"line"`
	Fix      json.RawMessage `json:"fix"`
}

// LintFinding is one message reported by the linter.
type LintFinding struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Rule    string `json:"rule"`
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// LintCounts aggregates an ESLint report.
type LintCounts struct {
	Files    int           `json:"files"`
	Errors   int           `json:"errors"`
	Warnings int           `json:"warnings"`
	Fixable  int           `json:"fixable"`
	Findings []LintFinding `json:"findings,omitempty"`
}

func (p *ESLintParser) Parse(output string, outcome stage.Outcome) ParseResult {
	var files []eslintFile
	if err := json.Unmarshal([]byte(output), &files); err != nil {
		return unparsed("ESLint", outcome)
	}

	var c LintCounts
	for _, f := range files {
		if len(f.Messages) > 0 {
			c.Files++
		}
		for _, m := range f.Messages {
			isErr := m.Severity == 2
			if isErr {
				c.Errors++
			} else {
				c.Warnings++
			}
			if len(m.Fix) > 0 && string(m.Fix) != "null" {
				c.Fixable++
			}
			c.Findings = append(c.Findings, LintFinding{
				File:    f.FilePath,
				Line:    m.Line,
				Rule:    m.RuleID,
				Error:   isErr,
				Message: m.Message,
			})
		}
	}

	summary := fmt.Sprintf("%s, %s", plural(c.Errors, "error"), plural(c.Warnings, "warning"))
	if c.Files > 0 {
		summary += fmt.Sprintf(" in %s", plural(c.Files, "file"))
	}
	if c.Fixable > 0 {
		summary += fmt.Sprintf(" (%d fixable)", c.Fixable)
	}
	return ParseResult{Clean: c.Errors == 0, Summary: summary, Findings: c}
}

// unparsed is the result for output a parser could not read.
func unparsed(tool string, outcome stage.Outcome) ParseResult {
	return ParseResult{
		Clean:   outcome == stage.Success,
		Summary: fmt.Sprintf("%s output could not be parsed", tool),
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if strings.HasSuffix(noun, "y") {
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(noun, "y"))
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
