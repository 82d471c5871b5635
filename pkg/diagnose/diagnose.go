package diagnose

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/platform"
)

// Options controls what Diagnose checks for.
type Options struct {
	Target platform.Family
	// Placeholders enables the MissingLocalAsset check: materials with no
	// remote locator whose file is absent. Only useful when a placeholder
	// generator can produce them.
	Placeholders bool
}

// Check is one diagnostic pass.
type Check struct {
	Name string
	Run  func(s *state) []Finding
}

// Checks returns the passes in reporting order.
func Checks() []Check {
	return []Check{
		{Name: "manifest-presence", Run: checkManifests},
		{Name: "asset-dirs", Run: checkAssetDirs},
		{Name: "platform", Run: checkPlatform},
		{Name: "missing-asset", Run: checkMissingAssets},
		{Name: "absolute-path", Run: checkAbsolutePaths},
		{Name: "dangling-segment", Run: checkDanglingSegments},
		{Name: "missing-local-asset", Run: checkMissingLocalAssets},
	}
}

// state is shared by the checks of one Diagnose call.
type state struct {
	b    *bundle.Bundle
	opts Options
	// remote and local hold one ref per absent asset path that will be fetched or
	// generated, in discovery order, split by whether it has a locator.
	remote []MaterialRef
	local  []MaterialRef
}

// Diagnose runs every check against b. Checks never short-circuit each
// other. If ctx is done, the findings collected so far are returned.
func Diagnose(ctx context.Context, b *bundle.Bundle, opts Options) []Finding {
	s := &state{b: b, opts: opts}
	s.collectPending()

	var findings []Finding
	for _, c := range Checks() {
		if ctx.Err() != nil {
			break
		}
		findings = append(findings, c.Run(s)...)
	}
	return findings
}

// AssetName returns the file name a material resolves to under assets/<kind>/,
// or "" when it declares none usable.
func AssetName(m *bundle.Material) string {
	name := strings.ReplaceAll(m.DeclaredName(), `\`, "/")
	name = bundle.NormalizeName(path.Base(name))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

func ref(role bundle.Role, kind bundle.Kind, index int, m *bundle.Material) MaterialRef {
	return MaterialRef{
		Kind:      kind,
		Manifest:  role,
		Index:     index,
		ID:        m.ID,
		Name:      AssetName(m),
		Path:      m.Path,
		RemoteURL: m.RemoteURL,
	}
}

// eachMaterial visits content then info, audio then video then image, in document order.
func (s *state) eachMaterial(fn func(role bundle.Role, kind bundle.Kind, index int, m *bundle.Material)) {
	for _, role := range bundle.DraftRoles() {
		d := s.b.Draft(role)
		if d == nil {
			continue
		}
		for _, kind := range bundle.Kinds() {
			for i, m := range d.MaterialsOf(kind) {
				if m != nil {
					fn(role, kind, i, m)
				}
			}
		}
	}
}

func (s *state) collectPending() {
	seen := map[string]bool{}
	var local []MaterialRef
	s.eachMaterial(func(role bundle.Role, kind bundle.Kind, i int, m *bundle.Material) {
		name := AssetName(m)
		if name == "" || s.b.HasAsset(kind, name) {
			return
		}
		r := ref(role, kind, i, m)
		if !bundle.IsRemoteLocator(m.RemoteURL) {
			local = append(local, r)
			return
		}
		if !seen[r.AssetPath()] {
			seen[r.AssetPath()] = true
			s.remote = append(s.remote, r)
		}
	})
	for _, r := range local {
		if !seen[r.AssetPath()] {
			seen[r.AssetPath()] = true
			s.local = append(s.local, r)
		}
	}
}

func checkManifests(s *state) []Finding {
	var out []Finding
	for _, role := range bundle.Roles() {
		name := role.FileName()
		if perr, ok := s.b.ParseErrors[role]; ok {
			out = append(out, Finding{
				Kind:        MissingManifest,
				Manifest:    role,
				Unparseable: true,
				Detail:      fmt.Sprintf("%s is unparseable: %s", name, unparseableReason(perr)),
			})
			continue
		}
		if !s.b.Present(role) {
			out = append(out, Finding{Kind: MissingManifest, Manifest: role, Detail: name + " is missing"})
		}
	}
	return out
}

func unparseableReason(e *bundle.ManifestParseError) string {
	switch {
	case e.Wrapped != nil:
		return e.Wrapped.Error()
	case len(e.Problems) > 0:
		return strings.Join(e.Problems, "; ")
	}
	return "invalid document"
}

// checkAssetDirs skips kinds with a pending fetch or placeholder: that
// action creates the directory itself.
func checkAssetDirs(s *state) []Finding {
	covered := map[bundle.Kind]bool{}
	for _, r := range s.remote {
		covered[r.Kind] = true
	}
	if s.opts.Placeholders {
		for _, r := range s.local {
			covered[r.Kind] = true
		}
	}
	var out []Finding
	for _, kind := range bundle.Kinds() {
		if s.b.HasAssetDir(kind) || covered[kind] {
			continue
		}
		out = append(out, Finding{Kind: MissingAssetDir, AssetKind: kind, Detail: bundle.AssetDir(kind) + " is missing"})
	}
	return out
}

func matchesTarget(declared string, target platform.Family) bool {
	f, err := platform.ParseFamily(declared)
	return err == nil && f == target
}

func checkPlatform(s *state) []Finding {
	var out []Finding
	for _, role := range bundle.Roles() {
		var declared []string
		switch {
		case role == bundle.RoleMeta && s.b.Meta != nil:
			declared = s.b.Meta.PlatformOS()
		case role != bundle.RoleMeta && s.b.Draft(role) != nil:
			declared = s.b.Draft(role).PlatformOS()
		}
		for _, decl := range declared {
			if !matchesTarget(decl, s.opts.Target) {
				out = append(out, Finding{
					Kind:     PlatformMismatch,
					Manifest: role,
					Detail:   fmt.Sprintf("%s declares os %q, target is %q", role.FileName(), decl, s.opts.Target),
				})
				break
			}
		}
	}
	return out
}

func checkMissingAssets(s *state) []Finding {
	out := make([]Finding, 0, len(s.remote))
	for _, r := range s.remote {
		out = append(out, Finding{
			Kind:     MissingAsset,
			Manifest: r.Manifest,
			Material: &r,
			Detail:   fmt.Sprintf("%s is not in the bundle; remote copy at %s", r.AssetPath(), r.RemoteURL),
		})
	}
	return out
}

func checkAbsolutePaths(s *state) []Finding {
	var out []Finding
	s.eachMaterial(func(role bundle.Role, kind bundle.Kind, i int, m *bundle.Material) {
		if !bundle.IsAbsoluteRef(m.Path) || AssetName(m) == "" {
			return
		}
		r := ref(role, kind, i, m)
		out = append(out, Finding{
			Kind:     StaleAbsolutePath,
			Manifest: role,
			Material: &r,
			Detail:   fmt.Sprintf("%s path %q is absolute", r, m.Path),
		})
	})
	return out
}

func checkDanglingSegments(s *state) []Finding {
	var out []Finding
	for _, role := range bundle.DraftRoles() {
		d := s.b.Draft(role)
		if d == nil {
			continue
		}
		ids := d.Materials.IDs()
		seen := map[string]bool{}
		for _, t := range d.Tracks {
			for _, seg := range t.Segments {
				id := seg.MaterialID
				if id == "" || ids[id] || seen[id] {
					continue
				}
				seen[id] = true
				out = append(out, Finding{
					Kind:       DanglingSegment,
					Manifest:   role,
					MaterialID: id,
					Detail:     fmt.Sprintf("%s has a %s segment referencing unknown material %q", role.FileName(), t.Type, id),
				})
			}
		}
	}
	return out
}

func checkMissingLocalAssets(s *state) []Finding {
	if !s.opts.Placeholders {
		return nil
	}
	out := make([]Finding, 0, len(s.local))
	for _, r := range s.local {
		out = append(out, Finding{
			Kind:     MissingLocalAsset,
			Manifest: r.Manifest,
			Material: &r,
			Detail:   fmt.Sprintf("%s is not in the bundle and has no remote copy", r.AssetPath()),
		})
	}
	return out
}
