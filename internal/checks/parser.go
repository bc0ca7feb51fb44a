// Package checks turns the captured output of a CI stage into the one-line
// summary shown next to it in the report.
package checks

import (
	"sort"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// ParseResult holds the normalized output from a parser.
type ParseResult struct {
	Clean    bool   `json:"clean"`
	Summary  string `json:"summary"`
	Findings any    `json:"findings,omitempty"`
}

// Parser converts a stage's captured output into a ParseResult. outcome is
// what the CI reported for the stage; parsers fall back to it when the
// output cannot be read.
type Parser interface {
	Parse(output string, outcome stage.Outcome) ParseResult
}

// Generic is the parser name used when a stage has none configured.
const Generic = "generic"

var parsers = map[string]Parser{
	"eslint":     &ESLintParser{},
	"typescript": &TypeScriptParser{},
	"npm-audit":  &NPMAuditParser{},
	Generic:      &GenericParser{},
}

// Lookup returns the parser registered under name.
func Lookup(name string) (Parser, bool) {
	p, ok := parsers[name]
	return p, ok
}

// Names returns the registered parser names, sorted.
func Names() []string {
	names := make([]string, 0, len(parsers))
	for n := range parsers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
