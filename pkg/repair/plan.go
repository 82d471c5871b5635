// Package repair turns findings into actions and applies them to a bundle.
package repair

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/diagnose"
)

// Policy selects which actions are planned.
type Policy string

const (
	// PolicyPatch plans an action for every repairable finding.
	PolicyPatch Policy = "patch"
	// PolicyOffline plans only local fixes; nothing is fetched or generated.
	PolicyOffline Policy = "offline"
	// PolicyDiagnose plans nothing.
	PolicyDiagnose Policy = "diagnose"
)

// Policies lists the accepted policies.
func Policies() []Policy {
	return []Policy{PolicyPatch, PolicyOffline, PolicyDiagnose}
}

// ParsePolicy validates a policy name. The empty string means PolicyPatch.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyPatch, nil
	case PolicyPatch, PolicyOffline, PolicyDiagnose:
		return p, nil
	default:
		return "", fmt.Errorf("unknown policy %q (expected patch, offline or diagnose)", s)
	}
}

// ActionKind enumerates repair steps.
type ActionKind string

const (
	CreateFile              ActionKind = "create-file"
	RegeneratePlatformBlock ActionKind = "regenerate-platform-block"
	RewritePath             ActionKind = "rewrite-path"
	FetchAndBindAsset       ActionKind = "fetch-and-bind-asset"
)

// phase orders execution: local fixes first, network last.
func (k ActionKind) phase() int {
	switch k {
	case CreateFile:
		return 0
	case RegeneratePlatformBlock:
		return 1
	case RewritePath:
		return 2
	default:
		return 3
	}
}

// Outcome is the result of executing an action.
type Outcome string

const (
	Pending Outcome = "pending"
	Applied Outcome = "applied"
	Failed  Outcome = "failed"
	Skipped Outcome = "skipped"
)

// Action is one repair step bound to exactly one finding.
type Action struct {
	Kind ActionKind `json:"kind" yaml:"kind"`
	// Target is the bundle-relative file, directory or asset the action writes.
	Target  string           `json:"target" yaml:"target"`
	Finding diagnose.Finding `json:"finding" yaml:"finding"`
	// Placeholder marks a fetch-and-bind served by the placeholder generator.
	Placeholder bool    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Outcome     Outcome `json:"outcome" yaml:"outcome"`
	Error       string  `json:"error,omitempty" yaml:"error,omitempty"`
}

func (a Action) String() string {
	return fmt.Sprintf("%s %s", a.Kind, a.Target)
}

// Plan maps findings to actions under policy, ordered by execution phase and
// stable within a phase. Findings that map to no action are left out; see
// Unplanned.
func Plan(findings []diagnose.Finding, policy Policy) []Action {
	if policy == PolicyDiagnose {
		return nil
	}
	var actions []Action
	for _, f := range findings {
		a, ok := actionFor(f)
		if !ok {
			continue
		}
		if a.Kind == FetchAndBindAsset && policy == PolicyOffline {
			continue
		}
		actions = append(actions, a)
	}
	sort.SliceStable(actions, func(i, j int) bool {
		return actions[i].Kind.phase() < actions[j].Kind.phase()
	})
	return actions
}

func actionFor(f diagnose.Finding) (Action, bool) {
	a := Action{Finding: f, Outcome: Pending}
	switch f.Kind {
	case diagnose.MissingManifest:
		a.Kind, a.Target = CreateFile, f.Manifest.FileName()
	case diagnose.MissingAssetDir:
		a.Kind, a.Target = CreateFile, bundle.AssetDir(f.AssetKind)+"/"
	case diagnose.PlatformMismatch:
		a.Kind, a.Target = RegeneratePlatformBlock, f.Manifest.FileName()
	case diagnose.StaleAbsolutePath:
		if f.Material == nil {
			return a, false
		}
		a.Kind, a.Target = RewritePath, f.Material.AssetPath()
	case diagnose.MissingAsset, diagnose.MissingLocalAsset:
		if f.Material == nil {
			return a, false
		}
		a.Kind, a.Target = FetchAndBindAsset, f.Material.AssetPath()
		a.Placeholder = f.Kind == diagnose.MissingLocalAsset
	default:
		return a, false
	}
	return a, true
}

// Unplanned returns the findings no action was planned for, in order.
func Unplanned(findings []diagnose.Finding, actions []Action) []diagnose.Finding {
	planned := make(map[string]bool, len(actions))
	for _, a := range actions {
		planned[findingKey(a.Finding)] = true
	}
	var out []diagnose.Finding
	for _, f := range findings {
		if !planned[findingKey(f)] {
			out = append(out, f)
		}
	}
	return out
}

func findingKey(f diagnose.Finding) string {
	key := fmt.Sprintf("%s|%s|%s|%s", f.Kind, f.Manifest, f.AssetKind, f.MaterialID)
	if f.Material != nil {
		key += fmt.Sprintf("|%s|%s|%d", f.Material.Manifest, f.Material.Kind, f.Material.Index)
	}
	return key
}
