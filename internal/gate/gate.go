package gate

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lucasnoah/qualitygate/internal/stage"
)

// Verdict is the evaluated state of one stage within a gate decision.
type Verdict struct {
	Stage    stage.Name    `json:"stage"`
	Reported stage.Outcome `json:"reported"`
	Outcome  stage.Outcome `json:"outcome"`
	Core     bool          `json:"core"`
	Skipped  bool          `json:"skipped,omitempty"`
	Blocked  bool          `json:"blocked,omitempty"`
	Passed   bool          `json:"passed"`
	Reason   string        `json:"reason"`
	Summary  string        `json:"summary,omitempty"`
	Findings any           `json:"findings,omitempty"`
}

// Decision is the structured output of a gate evaluation.
type Decision struct {
	Passed   bool      `json:"passed"`
	Reasons  []string  `json:"reasons"`
	Flags    []string  `json:"flags,omitempty"`
	Verdicts []Verdict `json:"verdicts"`
}

// JSON returns the decision as indented JSON.
func (d *Decision) JSON() (string, error) {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Verdict returns the verdict for n.
func (d *Decision) Verdict(n stage.Name) (Verdict, bool) {
	for _, v := range d.Verdicts {
		if v.Stage == n {
			return v, true
		}
	}
	return Verdict{}, false
}

// Expected returns the outcome a stage is expected to have given the
// decision: skipped for validly skipped or blocked stages, otherwise the
// reported outcome.
func (d *Decision) Expected(n stage.Name) stage.Outcome {
	if v, ok := d.Verdict(n); ok {
		return v.Outcome
	}
	return stage.NotStarted
}

// Failures returns the core verdicts that failed the gate.
func (d *Decision) Failures() []Verdict {
	var out []Verdict
	for _, v := range d.Verdicts {
		if v.Core && !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

// Advisories returns informational verdicts whose stage did not succeed.
func (d *Decision) Advisories() []Verdict {
	var out []Verdict
	for _, v := range d.Verdicts {
		if !v.Core && !v.Passed {
			out = append(out, v)
		}
	}
	return out
}

// Evaluate computes the gate decision for results under p. It is a pure
// function of its inputs.
//
// Core stages must succeed unless validly skipped; stages absent from
// results count as not_started. Informational stages never affect Passed.
// Stages with dependencies whose dependencies did not pass are reported as
// blocked with an expected outcome of skipped.
func Evaluate(results stage.Set, p Policy, flags Flags) *Decision {
	d := &Decision{
		Passed: true,
		Flags:  flags.Names(),
	}

	names := p.Stages()
	known := make(map[stage.Name]bool, len(names))
	for _, n := range names {
		known[n] = true
	}
	for _, n := range results.Names() {
		if !known[n] {
			names = append(names, n)
		}
	}

	var coreReasons, infoReasons []string
	for _, n := range names {
		v := evaluateStage(n, results, p, flags)
		d.Verdicts = append(d.Verdicts, v)
		if v.Core {
			if !v.Passed {
				d.Passed = false
			}
			coreReasons = append(coreReasons, v.Reason)
		} else {
			infoReasons = append(infoReasons, v.Reason)
		}
	}

	d.Reasons = append(coreReasons, infoReasons...)
	return d
}

func evaluateStage(n stage.Name, results stage.Set, p Policy, flags Flags) Verdict {
	r := results.Get(n)
	v := Verdict{
		Stage:    n,
		Reported: r.Outcome,
		Outcome:  r.Outcome,
		Core:     p.IsCore(n),
		Summary:  r.Summary,
		Findings: r.Findings,
	}
	label := n.Label()

	if p.skipped(n, flags) {
		flag, _ := p.SkipFlag(n)
		v.Skipped = true
		v.Outcome = stage.Skipped
		v.Passed = true
		v.Reason = fmt.Sprintf("%s skipped (%s)", label, flag)
		return v
	}

	if v.Core {
		v.Passed = r.Outcome == stage.Success
		if v.Passed {
			v.Reason = fmt.Sprintf("%s passed", label)
		} else {
			v.Reason = fmt.Sprintf("%s %s", label, describeFailure(r.Outcome))
		}
		return v
	}

	if blockers := p.blockers(n, results, flags); len(blockers) > 0 {
		v.Blocked = true
		v.Outcome = stage.Skipped
		v.Passed = true
		v.Reason = fmt.Sprintf("%s blocked by failed core checks (%s)", label, joinLabels(blockers))
		return v
	}

	switch r.Outcome {
	case stage.Success:
		v.Passed = true
		v.Reason = fmt.Sprintf("%s passed", label)
	case stage.Failure:
		v.Reason = fmt.Sprintf("%s found issues (informational only)", label)
	case stage.Skipped:
		v.Passed = true
		v.Reason = fmt.Sprintf("%s skipped (informational only)", label)
	default:
		v.Reason = fmt.Sprintf("%s %s (informational only)", label, describeFailure(r.Outcome))
	}
	return v
}

// describeFailure phrases why a stage outcome does not count as a pass.
func describeFailure(o stage.Outcome) string {
	switch o {
	case stage.Failure:
		return "failed"
	case stage.Skipped:
		return "was skipped without a skip flag"
	case stage.NotStarted:
		return "did not run"
	case stage.InProgress:
		return "has not finished"
	}
	return fmt.Sprintf("ended with unexpected outcome %q", string(o))
}

func joinLabels(names []stage.Name) string {
	labels := make([]string, len(names))
	for i, n := range names {
		labels[i] = n.Label()
	}
	return strings.Join(labels, ", ")
}

// Ready reports whether stage n should run given the results so far: its
// skip flag is not raised and every dependency passed or was validly
// skipped. The returned string explains a negative answer.
func Ready(n stage.Name, results stage.Set, p Policy, flags Flags) (bool, string) {
	if p.skipped(n, flags) {
		flag, _ := p.SkipFlag(n)
		return false, fmt.Sprintf("%s skipped (%s)", n.Label(), flag)
	}
	if blockers := p.blockers(n, results, flags); len(blockers) > 0 {
		return false, fmt.Sprintf("%s blocked by failed core checks (%s)", n.Label(), joinLabels(blockers))
	}
	return true, fmt.Sprintf("%s ready", n.Label())
}
