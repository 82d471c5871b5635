// Package diagnose inspects an unpacked bundle and reports its structural
// defects as an ordered list of findings.
package diagnose

import (
	"fmt"

	"github.com/fulmenhq/draftfix/pkg/bundle"
)

// Kind enumerates the defects the engine detects.
type Kind string

const (
	MissingManifest   Kind = "MissingManifest"
	MissingAssetDir   Kind = "MissingAssetDir"
	PlatformMismatch  Kind = "PlatformMismatch"
	MissingAsset      Kind = "MissingAsset"
	StaleAbsolutePath Kind = "StaleAbsolutePath"
	DanglingSegment   Kind = "DanglingSegment"
	MissingLocalAsset Kind = "MissingLocalAsset"
)

// Kinds returns every finding kind in check order.
func Kinds() []Kind {
	return []Kind{MissingManifest, MissingAssetDir, PlatformMismatch, MissingAsset, StaleAbsolutePath, DanglingSegment, MissingLocalAsset}
}

// MaterialRef points at one entry of a manifest's material collection.
type MaterialRef struct {
	Kind     bundle.Kind `json:"kind" yaml:"kind"`
	Manifest bundle.Role `json:"manifest" yaml:"manifest"`
	// Index is the position within materials.<collection>.
	Index     int    `json:"index" yaml:"index"`
	ID        string `json:"id,omitempty" yaml:"id,omitempty"`
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	RemoteURL string `json:"remote_url,omitempty" yaml:"remote_url,omitempty"`
}

// AssetPath is the bundle-relative location the material resolves to.
func (r MaterialRef) AssetPath() string {
	return bundle.AssetRelPath(r.Kind, r.Name)
}

func (r MaterialRef) String() string {
	return fmt.Sprintf("%s materials.%s[%d] %q", r.Manifest, r.Kind.Collection(), r.Index, r.Name)
}

// Finding is one detected defect. Findings are values and never mutated.
type Finding struct {
	Kind   Kind   `json:"kind" yaml:"kind"`
	Detail string `json:"detail" yaml:"detail"`
	// Manifest is set for manifest-scoped findings.
	Manifest bundle.Role `json:"manifest,omitempty" yaml:"manifest,omitempty"`
	// AssetKind is set for MissingAssetDir.
	AssetKind bundle.Kind  `json:"asset_kind,omitempty" yaml:"asset_kind,omitempty"`
	Material  *MaterialRef `json:"material,omitempty" yaml:"material,omitempty"`
	// MaterialID is the unresolved id of a DanglingSegment.
	MaterialID string `json:"material_id,omitempty" yaml:"material_id,omitempty"`
	// Unparseable marks a MissingManifest raised for a file that exists but
	// could not be parsed.
	Unparseable bool `json:"unparseable,omitempty" yaml:"unparseable,omitempty"`
}

func (f Finding) String() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Count returns the number of findings of each kind.
func Count(findings []Finding) map[Kind]int {
	out := make(map[Kind]int)
	for _, f := range findings {
		out[f.Kind]++
	}
	return out
}
