package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/fulmenhq/draftfix/pkg/safeio"
)

// FileFetcher copies file:// locators and plain local paths.
type FileFetcher struct {
	MaxBytes int64
}

// LocalPath returns the filesystem path for a file:// locator or a plain path.
func LocalPath(locator string) (string, error) {
	if !strings.HasPrefix(locator, "file:") {
		return safeio.CleanUserPath(locator)
	}
	u, err := url.Parse(locator)
	if err != nil {
		return "", err
	}
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		return "", fmt.Errorf("file locator %q names a remote host", locator)
	}
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return "", fmt.Errorf("file locator %q has no path", locator)
	}
	return filepath.FromSlash(p), nil
}

// Fetch copies the source file to destPath.
func (f FileFetcher) Fetch(ctx context.Context, locator, destPath string) error {
	src, err := LocalPath(locator)
	if err != nil {
		return &FetchError{Locator: locator, Wrapped: err}
	}
	in, err := os.Open(src) // #nosec G304 -- operator-supplied locator
	if err != nil {
		return &FetchError{Locator: locator, Wrapped: err}
	}
	defer func() { _ = in.Close() }()
	if st, err := in.Stat(); err == nil && st.IsDir() {
		return &FetchError{Locator: locator, Wrapped: fmt.Errorf("%s is a directory", src)}
	}
	if err := writeStream(ctx, in, destPath, f.MaxBytes); err != nil {
		return newError(locator, err)
	}
	return nil
}
