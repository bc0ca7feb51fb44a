package gate

import (
	"sort"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// Flags is the set of skip flags raised for a run (e.g. "skip_build").
type Flags map[string]bool

// NewFlags returns a Flags with the given names raised.
func NewFlags(names ...string) Flags {
	f := make(Flags, len(names))
	for _, n := range names {
		f[n] = true
	}
	return f
}

// Raised reports whether the named flag is set.
func (f Flags) Raised(name string) bool {
	return f[name]
}

// Names returns the raised flags in sorted order.
func (f Flags) Names() []string {
	var out []string
	for n, on := range f {
		if on {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

// Policy decides which stages block the gate, which may be skipped by a
// flag, and which stages only run when their dependencies passed.
type Policy struct {
	CoreStages   []stage.Name                `json:"core_stages" yaml:"core_stages"`
	Skippable    map[stage.Name]string       `json:"skippable" yaml:"skippable"`
	Dependencies map[stage.Name][]stage.Name `json:"dependencies" yaml:"dependencies"`
}

// DefaultPolicy is the policy of the standard CI workflow.
func DefaultPolicy() Policy {
	return Policy{
		CoreStages: []stage.Name{stage.Lint, stage.TypeCheck, stage.Build},
		Skippable: map[stage.Name]string{
			stage.Build:    "skip_build",
			stage.Security: "skip_security",
			stage.Sonar:    "skip_sonar",
			stage.Docker:   "skip_docker",
		},
		Dependencies: map[stage.Name][]stage.Name{
			stage.Docker: {stage.Lint, stage.TypeCheck, stage.Build},
		},
	}
}

// IsCore reports whether a failure of n fails the gate.
func (p Policy) IsCore(n stage.Name) bool {
	for _, c := range p.CoreStages {
		if c == n {
			return true
		}
	}
	return false
}

// SkipFlag returns the flag that skips n, if n is skippable.
func (p Policy) SkipFlag(n stage.Name) (string, bool) {
	flag, ok := p.Skippable[n]
	return flag, ok && flag != ""
}

// skipped reports whether n is validly skipped: configured as skippable and
// its flag raised. A raised flag on a non-skippable stage has no effect.
func (p Policy) skipped(n stage.Name, flags Flags) bool {
	flag, ok := p.SkipFlag(n)
	return ok && flags.Raised(flag)
}

// Stages returns every stage the policy mentions: known stages in workflow
// order first, then any custom stages alphabetically.
func (p Policy) Stages() []stage.Name {
	seen := make(map[stage.Name]bool)
	mark := func(n stage.Name) { seen[n] = true }

	for _, n := range p.CoreStages {
		mark(n)
	}
	for n := range p.Skippable {
		mark(n)
	}
	for n, deps := range p.Dependencies {
		mark(n)
		for _, d := range deps {
			mark(d)
		}
	}
	// The standard workflow stages are always reported so the summary keeps its shape.
	for _, n := range stage.Known {
		mark(n)
	}

	var out []stage.Name
	for _, n := range stage.Known {
		if seen[n] {
			out = append(out, n)
			delete(seen, n)
		}
	}
	var extra []stage.Name
	for n := range seen {
		extra = append(extra, n)
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// blockers returns the dependencies of n that are neither successful nor
// validly skipped.
func (p Policy) blockers(n stage.Name, results stage.Set, flags Flags) []stage.Name {
	var out []stage.Name
	for _, dep := range p.Dependencies[n] {
		if p.skipped(dep, flags) {
			continue
		}
		if results.Get(dep).Outcome != stage.Success {
			out = append(out, dep)
		}
	}
	return out
}
