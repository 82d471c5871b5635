package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/fulmenhq/draftfix/pkg/bundle"
)

// DeterministicTimestamp is the default entry modification time.
var DeterministicTimestamp = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// PackOptions controls archive output.
type PackOptions struct {
	// Timestamp is written as every entry's modification time.
	Timestamp time.Time
	// Exclude globs are matched against bundle-relative paths.
	Exclude []string
}

func (o PackOptions) timestamp() time.Time {
	if o.Timestamp.IsZero() {
		return DeterministicTimestamp
	}
	return o.Timestamp
}

func (o PackOptions) excludes() []string {
	if o.Exclude == nil {
		return DefaultExcludes
	}
	return o.Exclude
}

type packEntry struct {
	rel   string
	abs   string
	isDir bool
}

// Pack writes the bundle directory to destPath as a zip whose entries are
// relative to the bundle root, sorted, with forward slashes. The archive is
// written to a temp file in the destination directory and renamed on success.
// Failures are returned as *bundle.WriteError.
func Pack(ctx context.Context, b *bundle.Bundle, destPath string, opts PackOptions) (string, error) {
	entries, err := walk(b.Dir, opts.excludes())
	if err != nil {
		return "", &bundle.WriteError{Path: destPath, Wrapped: err}
	}

	destDir := filepath.Dir(destPath)
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", &bundle.WriteError{Path: destPath, Wrapped: err}
	}
	tmp, err := os.CreateTemp(destDir, "."+filepath.Base(destPath)+".tmp-*")
	if err != nil {
		return "", &bundle.WriteError{Path: destPath, Wrapped: err}
	}
	tmpName := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &bundle.WriteError{Path: destPath, Wrapped: err}
	}

	zw := zip.NewWriter(tmp)
	ts := opts.timestamp()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		if err := writeEntry(zw, e, ts); err != nil {
			return fail(err)
		}
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", &bundle.WriteError{Path: destPath, Wrapped: err}
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		_ = os.Remove(tmpName)
		return "", &bundle.WriteError{Path: destPath, Wrapped: err}
	}
	return destPath, nil
}

func walk(root string, exclude []string) ([]packEntry, error) {
	var out []packEntry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if excluded(rel, d.IsDir(), exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		switch {
		case d.IsDir():
			out = append(out, packEntry{rel: rel + "/", abs: p, isDir: true})
		case d.Type().IsRegular():
			out = append(out, packEntry{rel: rel, abs: p})
		default:
			return fmt.Errorf("unsupported file type at %s", rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out, nil
}

func writeEntry(zw *zip.Writer, e packEntry, ts time.Time) error {
	hdr := &zip.FileHeader{Name: e.rel, Modified: ts}
	if e.isDir {
		hdr.Method = zip.Store
		hdr.SetMode(fs.ModeDir | 0o755)
		_, err := zw.CreateHeader(hdr)
		return err
	}
	hdr.Method = zip.Deflate
	hdr.SetMode(0o644)
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(e.abs) // #nosec G304 -- path produced by WalkDir under the bundle root
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	_, err = io.Copy(w, f)
	return err
}
