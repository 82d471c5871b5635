// Package bundle is the in-memory model of an unpacked draft: its identifier,
// working directory, the three parsed manifests and the asset tree on disk.
package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fulmenhq/draftfix/pkg/safeio"
)

// ShapeValidator checks decoded manifest JSON against the expected shape for its
// role and returns one message per violation.
type ShapeValidator interface {
	ValidateManifest(role Role, doc interface{}) ([]string, error)
}

// Bundle is an unpacked draft. Manifest fields are nil when the file is absent
// or could not be parsed; see ParseErrors for the latter.
type Bundle struct {
	ID string
	// Dir holds the manifests and assets/ directly.
	Dir string
	// WorkRoot is the temporary directory containing Dir; removed by Cleanup.
	WorkRoot string

	Content *Draft
	Info    *Draft
	Meta    *Meta

	ParseErrors map[Role]*ManifestParseError

	mu    sync.Mutex
	dirty map[Role]bool
}

// New wraps an already unpacked directory without reading it.
func New(id, dir, workRoot string) *Bundle {
	return &Bundle{
		ID:          id,
		Dir:         dir,
		WorkRoot:    workRoot,
		ParseErrors: map[Role]*ManifestParseError{},
		dirty:       map[Role]bool{},
	}
}

// Load reads all three manifests from b.Dir. Missing files are not an error.
// Unparseable manifests are recorded in ParseErrors; the only returned errors
// are I/O failures other than not-exist.
func (b *Bundle) Load(v ShapeValidator) error {
	for _, role := range Roles() {
		if err := b.loadOne(role, v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bundle) loadOne(role Role, v ShapeValidator) error {
	p := b.ManifestPath(role)
	data, err := safeio.ReadFileContained(b.Dir, p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", role.FileName(), err)
	}

	fail := func(problems []string, cause error) {
		b.ParseErrors[role] = &ManifestParseError{Role: role, Path: p, Problems: problems, Wrapped: cause}
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		fail(nil, err)
		return nil
	}
	if v != nil {
		problems, err := v.ValidateManifest(role, doc)
		if err != nil {
			return fmt.Errorf("validate %s: %w", role.FileName(), err)
		}
		if len(problems) > 0 {
			fail(problems, nil)
			return nil
		}
	}

	switch role {
	case RoleMeta:
		var m Meta
		if err := json.Unmarshal(data, &m); err != nil {
			fail(nil, err)
			return nil
		}
		b.Meta = &m
	default:
		var d Draft
		if err := json.Unmarshal(data, &d); err != nil {
			fail(nil, err)
			return nil
		}
		b.SetDraft(role, &d)
	}
	return nil
}

// ManifestPath returns the absolute path of a manifest.
func (b *Bundle) ManifestPath(role Role) string {
	return filepath.Join(b.Dir, role.FileName())
}

// Present reports whether the manifest was loaded successfully.
func (b *Bundle) Present(role Role) bool {
	switch role {
	case RoleContent:
		return b.Content != nil
	case RoleInfo:
		return b.Info != nil
	case RoleMeta:
		return b.Meta != nil
	}
	return false
}

// Draft returns the content or info manifest.
func (b *Bundle) Draft(role Role) *Draft {
	switch role {
	case RoleContent:
		return b.Content
	case RoleInfo:
		return b.Info
	}
	return nil
}

// SetDraft installs a content or info manifest.
func (b *Bundle) SetDraft(role Role, d *Draft) {
	switch role {
	case RoleContent:
		b.Content = d
	case RoleInfo:
		b.Info = d
	}
}

// MarkDirty flags a manifest for rewrite on Save. Safe for concurrent use.
func (b *Bundle) MarkDirty(role Role) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty == nil {
		b.dirty = map[Role]bool{}
	}
	b.dirty[role] = true
}

// Dirty reports whether a manifest has pending changes.
func (b *Bundle) Dirty(role Role) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dirty[role]
}

// Save writes every dirty manifest atomically. A failure is a *WriteError.
func (b *Bundle) Save() error {
	for _, role := range Roles() {
		if !b.Dirty(role) {
			continue
		}
		var doc interface{}
		switch role {
		case RoleMeta:
			if b.Meta == nil {
				continue
			}
			doc = b.Meta
		default:
			d := b.Draft(role)
			if d == nil {
				continue
			}
			doc = d
		}
		p := b.ManifestPath(role)
		data, err := Encode(doc)
		if err != nil {
			return &WriteError{Path: p, Wrapped: err}
		}
		if err := safeio.WriteFilePreservePerms(p, data); err != nil {
			return &WriteError{Path: p, Wrapped: err}
		}
		b.mu.Lock()
		delete(b.dirty, role)
		b.mu.Unlock()
	}
	return nil
}

// PreserveCorrupt renames an unparseable manifest to <name>.corrupt so a skeleton
// can take its place. It is a no-op when the manifest parsed or is absent.
func (b *Bundle) PreserveCorrupt(role Role) error {
	if _, ok := b.ParseErrors[role]; !ok {
		return nil
	}
	p := b.ManifestPath(role)
	if err := os.Rename(p, p+CorruptSuffix); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &WriteError{Path: p + CorruptSuffix, Wrapped: err}
	}
	return nil
}

// AssetDirPath returns the absolute assets/<kind> directory.
func (b *Bundle) AssetDirPath(k Kind) string {
	return filepath.Join(b.Dir, filepath.FromSlash(AssetDir(k)))
}

// HasAssetDir reports whether assets/<kind> exists as a directory.
func (b *Bundle) HasAssetDir(k Kind) bool {
	st, err := os.Stat(b.AssetDirPath(k))
	return err == nil && st.IsDir()
}

// AssetPath returns the absolute location of a named asset.
func (b *Bundle) AssetPath(k Kind, name string) string {
	return filepath.Join(b.Dir, filepath.FromSlash(AssetRelPath(k, name)))
}

// HasAsset reports whether assets/<kind>/<name> exists as a regular file,
// comparing names after NFC normalization.
func (b *Bundle) HasAsset(k Kind, name string) bool {
	if name == "" {
		return false
	}
	want := NormalizeName(name)
	if st, err := os.Stat(b.AssetPath(k, want)); err == nil && st.Mode().IsRegular() {
		return true
	}
	entries, err := os.ReadDir(b.AssetDirPath(k))
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() && NormalizeName(e.Name()) == want {
			return true
		}
	}
	return false
}

// Cleanup removes the temporary work root.
func (b *Bundle) Cleanup() error {
	if b.WorkRoot == "" {
		return nil
	}
	return os.RemoveAll(b.WorkRoot)
}
