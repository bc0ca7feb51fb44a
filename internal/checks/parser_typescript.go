package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// TypeScriptParser reads `tsc --noEmit` output.
type TypeScriptParser struct{}

// TypeError is one diagnostic emitted by tsc.
type TypeError struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Both the default and --pretty false formats:
//
//	src/auth.ts(42,5): error TS2345: Argument of type...
//	src/auth.ts:42:5 - error TS2345: Argument of type...
var tscLineRe = regexp.MustCompile(`^(.+?)(?:\((\d+),\d+\):|:(\d+):\d+ -)\s+error\s+(TS\d+):\s+(.+)$`)

func (p *TypeScriptParser) Parse(output string, outcome stage.Outcome) ParseResult {
	var errs []TypeError
	files := make(map[string]bool)

	for _, line := range strings.Split(output, "\n") {
		m := tscLineRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNo := m[2]
		if lineNo == "" {
			lineNo = m[3]
		}
		n, _ := strconv.Atoi(lineNo)
		errs = append(errs, TypeError{File: m[1], Line: n, Code: m[4], Message: m[5]})
		files[m[1]] = true
	}

	if len(errs) == 0 {
		if outcome == stage.Failure {
			return ParseResult{Summary: "failed without reporting type errors"}
		}
		return ParseResult{Clean: true, Summary: "no type errors"}
	}
	return ParseResult{
		Summary:  fmt.Sprintf("%s in %s", plural(len(errs), "type error"), plural(len(files), "file")),
		Findings: errs,
	}
}
