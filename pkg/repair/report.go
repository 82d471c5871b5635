package repair

import (
	"github.com/fulmenhq/draftfix/pkg/diagnose"
)

// Report records what an execution did.
type Report struct {
	Actions []Action `json:"actions" yaml:"actions"`
	Applied int      `json:"applied" yaml:"applied"`
	Failed  int      `json:"failed" yaml:"failed"`
	Skipped int      `json:"skipped" yaml:"skipped"`
	// Unresolved lists findings that are still defects after execution:
	// those whose action did not apply and those no action was planned for.
	Unresolved []diagnose.Finding `json:"unresolved" yaml:"unresolved"`
}

// UnresolvedCount is the number of findings left unfixed.
func (r *Report) UnresolvedCount() int {
	if r == nil {
		return 0
	}
	return len(r.Unresolved)
}

// Resolved reports whether every finding was fixed.
func (r *Report) Resolved() bool {
	return r.UnresolvedCount() == 0
}

func (r *Report) tally() {
	r.Applied, r.Failed, r.Skipped = 0, 0, 0
	r.Unresolved = nil
	for _, a := range r.Actions {
		switch a.Outcome {
		case Applied:
			r.Applied++
		case Failed:
			r.Failed++
			r.Unresolved = append(r.Unresolved, a.Finding)
		default:
			r.Skipped++
			r.Unresolved = append(r.Unresolved, a.Finding)
		}
	}
}
