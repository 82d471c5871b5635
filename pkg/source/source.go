// Package source resolves a bundle locator to a local archive file.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/fetch"
	"github.com/fulmenhq/draftfix/pkg/logger"
)

// SourceUnavailableError indicates the locator could not be read at all.
type SourceUnavailableError struct {
	Locator string
	Wrapped error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Locator, e.Wrapped)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Wrapped }

// Kind returns the error taxonomy name.
func (e *SourceUnavailableError) Kind() string { return bundle.KindSourceUnavailable }

// IsSourceUnavailable checks if an error is a source unavailable error
func IsSourceUnavailable(err error) bool {
	var target *SourceUnavailableError
	return errors.As(err, &target)
}

// Resolved is a local archive ready to unpack.
type Resolved struct {
	Locator string
	Path    string
	// Downloaded is set when Path is a temp copy owned by the caller.
	Downloaded bool
}

// Cleanup removes the downloaded copy, if any.
func (r *Resolved) Cleanup() error {
	if r == nil || !r.Downloaded {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsLocal reports whether locator is a plain filesystem path.
func IsLocal(locator string) bool {
	return fetch.Scheme(locator) == fetch.SchemeFile && !strings.HasPrefix(locator, "file:")
}

// Resolve makes locator available as a local file. Plain paths are used in
// place; every other locator is fetched into a temp file under workDir.
func Resolve(ctx context.Context, locator string, f fetch.Fetcher, workDir string) (*Resolved, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, &SourceUnavailableError{Locator: locator, Wrapped: errors.New("empty locator")}
	}
	if IsLocal(locator) {
		st, err := os.Stat(locator)
		if err != nil {
			return nil, &SourceUnavailableError{Locator: locator, Wrapped: err}
		}
		if st.IsDir() {
			return nil, &SourceUnavailableError{Locator: locator, Wrapped: fmt.Errorf("%s is a directory", locator)}
		}
		return &Resolved{Locator: locator, Path: locator}, nil
	}
	if f == nil {
		return nil, &SourceUnavailableError{Locator: locator, Wrapped: errors.New("no fetcher configured")}
	}

	if workDir != "" {
		if err := os.MkdirAll(workDir, 0o750); err != nil {
			return nil, &SourceUnavailableError{Locator: locator, Wrapped: err}
		}
	}
	tmp, err := os.CreateTemp(workDir, "draftfix-source-*.zip")
	if err != nil {
		return nil, &SourceUnavailableError{Locator: locator, Wrapped: err}
	}
	tmpName := tmp.Name()
	_ = tmp.Close()

	if err := f.Fetch(ctx, locator, tmpName); err != nil {
		_ = os.Remove(tmpName)
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &SourceUnavailableError{Locator: locator, Wrapped: err}
	}
	logger.Debug("fetched source archive", logger.String("path", tmpName))
	return &Resolved{Locator: locator, Path: tmpName, Downloaded: true}, nil
}

// FallbackID derives a bundle id from the locator's base name: the query is
// dropped, the name URL-unescaped and a trailing ".zip" removed. It returns
// "" when nothing usable remains.
func FallbackID(locator string) string {
	var base string
	if IsLocal(locator) {
		base = path.Base(strings.ReplaceAll(locator, `\`, "/"))
	} else {
		p := locator
		if u, err := url.Parse(locator); err == nil {
			p = u.EscapedPath()
			if p == "" {
				p = u.Opaque
			}
		}
		if i := strings.IndexAny(p, "?#"); i >= 0 {
			p = p[:i]
		}
		base = path.Base(p)
		if unescaped, err := url.PathUnescape(base); err == nil {
			base = unescaped
		}
	}
	if strings.EqualFold(path.Ext(base), ".zip") {
		base = base[:len(base)-len(".zip")]
	}
	base = bundle.NormalizeName(strings.TrimSpace(base))
	if base == "" || base == "." || base == "/" || base == ".." || strings.ContainsAny(base, `/\`) {
		return ""
	}
	return base
}
