// Package archive converts between draft zip archives and unpacked bundles.
package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/safeio"
)

// DefaultExcludes are skipped on unpack and never packed.
var DefaultExcludes = []string{"__MACOSX/**", "**/.DS_Store", "**/*" + bundle.CorruptSuffix}

// UnpackOptions controls extraction and layout normalization.
type UnpackOptions struct {
	// WorkDir is where the temporary root is created; os.TempDir() when empty.
	WorkDir string
	// FallbackID names the bundle when the archive has a flat layout.
	FallbackID string
	// Exclude globs (doublestar syntax) matched against entry names.
	Exclude []string
	// Validator checks manifest shape on load; nil skips shape checks.
	Validator bundle.ShapeValidator
	// Now is used for synthesized ids; defaults to time.Now.
	Now func() time.Time
}

func (o UnpackOptions) excludes() []string {
	if o.Exclude == nil {
		return DefaultExcludes
	}
	return o.Exclude
}

// SyntheticID returns a fresh bundle id for flat archives with no fallback.
func SyntheticID(now time.Time) string {
	return fmt.Sprintf("dfd_draftfix_%d_%s", now.Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

type entry struct {
	file *zip.File
	name string
}

// Unpack extracts archivePath into a fresh temporary root and loads the
// manifests. On any error, including cancellation, the temporary root is removed.
func Unpack(ctx context.Context, archivePath string, opts UnpackOptions) (*bundle.Bundle, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &ArchiveFormatError{Path: archivePath, Reason: "not a zip container", Wrapped: err}
	}
	defer func() { _ = zr.Close() }()

	entries, err := collectEntries(archivePath, zr.File, opts.excludes())
	if err != nil {
		return nil, err
	}

	id, nested := detectLayout(entries)
	if !nested {
		id = opts.FallbackID
		if id == "" {
			now := time.Now
			if opts.Now != nil {
				now = opts.Now
			}
			id = SyntheticID(now())
		}
	}
	id = bundle.NormalizeName(id)
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return nil, &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("unusable bundle id %q", id)}
	}

	workRoot, err := os.MkdirTemp(opts.WorkDir, "draftfix-*")
	if err != nil {
		return nil, &bundle.WriteError{Path: opts.WorkDir, Wrapped: fmt.Errorf("create work dir: %w", err)}
	}
	ok := false
	defer func() {
		if !ok {
			_ = os.RemoveAll(workRoot)
		}
	}()

	extractRoot := workRoot
	if !nested {
		extractRoot = filepath.Join(workRoot, id)
	}
	if err := os.MkdirAll(filepath.Join(workRoot, id), 0o755); err != nil {
		return nil, &bundle.WriteError{Path: filepath.Join(workRoot, id), Wrapped: err}
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := extract(archivePath, extractRoot, e); err != nil {
			return nil, err
		}
	}

	b := bundle.New(id, filepath.Join(workRoot, id), workRoot)
	if err := b.Load(opts.Validator); err != nil {
		return nil, err
	}
	ok = true
	return b, nil
}

func collectEntries(archivePath string, files []*zip.File, exclude []string) ([]entry, error) {
	out := make([]entry, 0, len(files))
	for _, f := range files {
		raw := f.Name
		if strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, `\`) || bundle.IsAbsoluteRef(raw) {
			return nil, &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("absolute entry name %q", raw)}
		}
		if f.Mode()&os.ModeSymlink != 0 {
			return nil, &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("symlink entry %q", raw)}
		}
		name := bundle.NormalizeName(strings.ReplaceAll(raw, `\`, "/"))
		isDir := strings.HasSuffix(name, "/") || f.FileInfo().IsDir()
		name = strings.TrimSuffix(name, "/")
		if name == "" || name == "." {
			continue
		}
		for _, seg := range strings.Split(name, "/") {
			if seg == ".." {
				return nil, &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("entry %q escapes the archive root", raw)}
			}
		}
		if excluded(name, isDir, exclude) {
			continue
		}
		if isDir {
			name += "/"
		}
		out = append(out, entry{file: f, name: name})
	}
	return out, nil
}

func excluded(name string, isDir bool, globs []string) bool {
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, name); ok {
			return true
		}
		// A directory entry such as "__MACOSX/" matches "__MACOSX/**" only with a child.
		if isDir {
			if ok, _ := doublestar.Match(g, name+"/x"); ok && strings.HasSuffix(g, "/**") {
				return true
			}
		}
	}
	return false
}

// detectLayout returns the single top-level directory holding every entry.
// A lone top-level "assets" directory means the archive is flat.
func detectLayout(entries []entry) (string, bool) {
	top := ""
	for _, e := range entries {
		seg, _, nested := strings.Cut(e.name, "/")
		if !nested {
			// top-level file
			return "", false
		}
		if top == "" {
			top = seg
		} else if seg != top {
			return "", false
		}
	}
	if top == "" || top == bundle.AssetsDir {
		return "", false
	}
	return top, true
}

func extract(archivePath, root string, e entry) error {
	rel := strings.TrimSuffix(e.name, "/")
	dest, err := safeio.JoinContained(root, rel)
	if err != nil {
		return &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("entry %q escapes the archive root", e.file.Name), Wrapped: err}
	}
	if strings.HasSuffix(e.name, "/") {
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return &bundle.WriteError{Path: rel, Wrapped: err}
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &bundle.WriteError{Path: path.Dir(rel), Wrapped: err}
	}

	rc, err := e.file.Open()
	if err != nil {
		return &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("open entry %q", e.file.Name), Wrapped: err}
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644) // #nosec G304 -- dest verified by JoinContained
	if err != nil {
		return &bundle.WriteError{Path: rel, Wrapped: err}
	}
	src := &entryReader{r: rc}
	if _, err := io.Copy(out, src); err != nil { // #nosec G110 -- bundles are operator-supplied
		_ = out.Close()
		if src.err != nil {
			return &ArchiveFormatError{Path: archivePath, Reason: fmt.Sprintf("read entry %q", e.file.Name), Wrapped: err}
		}
		return &bundle.WriteError{Path: rel, Wrapped: err}
	}
	if err := out.Close(); err != nil {
		return &bundle.WriteError{Path: rel, Wrapped: err}
	}
	return nil
}

// entryReader remembers read failures so they can be told apart from write
// failures after io.Copy.
type entryReader struct {
	r   io.Reader
	err error
}

func (e *entryReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && err != io.EOF {
		e.err = err
	}
	return n, err
}
