package stage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Name identifies a pipeline stage.
type Name string

const (
	Lint      Name = "lint"
	TypeCheck Name = "typecheck"
	Build     Name = "build"
	Security  Name = "security"
	Sonar     Name = "sonar"
	Docker    Name = "docker"
)

// Known lists the stages the CI workflow produces, in report order.
var Known = []Name{Lint, TypeCheck, Build, Security, Sonar, Docker}

var labels = map[Name]string{
	Lint:      "Lint",
	TypeCheck: "Type Check",
	Build:     "Build",
	Security:  "Security Audit",
	Sonar:     "SonarQube Analysis",
	Docker:    "Docker Build",
}

// Label returns the human-readable name used in reports.
// Unknown stages fall back to their raw name.
func (n Name) Label() string {
	if l, ok := labels[n]; ok {
		return l
	}
	return string(n)
}

// IsKnown reports whether n is one of the stages the workflow defines.
func (n Name) IsKnown() bool {
	_, ok := labels[n]
	return ok
}

// Outcome is the conclusion of a stage within one pipeline run.
type Outcome string

const (
	Success    Outcome = "success"
	Failure    Outcome = "failure"
	Skipped    Outcome = "skipped"
	NotStarted Outcome = "not_started"
	InProgress Outcome = "in_progress"
)

// ErrUnknownOutcome is returned by ParseOutcome for values outside the lattice.
var ErrUnknownOutcome = errors.New("unknown stage outcome")

// ParseOutcome maps a CI job result string onto an Outcome.
// Cancelled and timed-out jobs count as failures.
func ParseOutcome(s string) (Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "success", "succeeded", "passed":
		return Success, nil
	case "failure", "failed", "cancelled", "canceled", "timed_out", "error":
		return Failure, nil
	case "skipped":
		return Skipped, nil
	case "", "not_started":
		return NotStarted, nil
	case "in_progress", "running", "queued", "pending":
		return InProgress, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownOutcome, s)
}

// Result is the outcome of a single stage. Values are never mutated after
// construction; use With* helpers to derive modified copies.
type Result struct {
	Name    Name    `json:"name"`
	Outcome Outcome `json:"outcome"`
	Summary string  `json:"summary,omitempty"`
	// Findings is the structured detail behind Summary, as produced by the
	// stage's output parser.
	Findings any `json:"findings,omitempty"`
}

// WithSummary returns a copy of r carrying the given detail line.
func (r Result) WithSummary(s string) Result {
	r.Summary = s
	return r
}

// WithFindings returns a copy of r carrying parsed findings.
func (r Result) WithFindings(f any) Result {
	r.Findings = f
	return r
}

// Set holds at most one Result per stage.
type Set struct {
	results map[Name]Result
}

// NewSet builds a Set from results. A later result for the same stage
// replaces an earlier one.
func NewSet(results ...Result) Set {
	s := Set{results: make(map[Name]Result, len(results))}
	for _, r := range results {
		s.results[r.Name] = r
	}
	return s
}

// Get returns the result for name. Stages that never reported are
// returned as not_started.
func (s Set) Get(name Name) Result {
	if r, ok := s.results[name]; ok {
		return r
	}
	return Result{Name: name, Outcome: NotStarted}
}

// Has reports whether name was explicitly reported.
func (s Set) Has(name Name) bool {
	_, ok := s.results[name]
	return ok
}

// With returns a new Set with r added or replaced.
func (s Set) With(r Result) Set {
	out := Set{results: make(map[Name]Result, len(s.results)+1)}
	for k, v := range s.results {
		out.results[k] = v
	}
	out.results[r.Name] = r
	return out
}

// Names returns the reported stage names: known stages first in workflow
// order, then any others alphabetically.
func (s Set) Names() []Name {
	var names []Name
	for _, n := range Known {
		if s.Has(n) {
			names = append(names, n)
		}
	}
	var extra []Name
	for n := range s.results {
		if !n.IsKnown() {
			extra = append(extra, n)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(names, extra...)
}

// Len returns the number of reported stages.
func (s Set) Len() int {
	return len(s.results)
}
