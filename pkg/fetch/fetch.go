// Package fetch retrieves remote media and archives onto local disk.
//
// Every Fetcher makes a single attempt per call, creates missing parent
// directories, and replaces an existing destination atomically. Retry and
// caching are layered on as decorators (Retrying, Caching).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/fulmenhq/draftfix/pkg/bundle"
)

// Fetcher retrieves the bytes behind locator into destPath.
type Fetcher interface {
	Fetch(ctx context.Context, locator, destPath string) error
}

// Func adapts a plain function to Fetcher.
type Func func(ctx context.Context, locator, destPath string) error

// Fetch calls f.
func (f Func) Fetch(ctx context.Context, locator, destPath string) error {
	return f(ctx, locator, destPath)
}

// ErrTooLarge is wrapped by FetchError when a payload exceeds the byte limit.
var ErrTooLarge = errors.New("payload exceeds size limit")

// ErrUnsupportedScheme is wrapped by FetchError when no fetcher handles a locator.
var ErrUnsupportedScheme = errors.New("unsupported locator scheme")

// FetchError reports a failed retrieval.
type FetchError struct {
	Locator    string
	StatusCode int
	Timeout    bool
	Wrapped    error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Wrapped != nil:
		return fmt.Sprintf("fetch %s: status %d: %v", e.Locator, e.StatusCode, e.Wrapped)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: status %d", e.Locator, e.StatusCode)
	case e.Timeout:
		return fmt.Sprintf("fetch %s: timed out: %v", e.Locator, e.Wrapped)
	default:
		return fmt.Sprintf("fetch %s: %v", e.Locator, e.Wrapped)
	}
}

func (e *FetchError) Unwrap() error { return e.Wrapped }

// Kind returns the error taxonomy name.
func (e *FetchError) Kind() string { return bundle.KindFetch }

// IsFetchError checks if an error is a fetch error
func IsFetchError(err error) bool {
	var target *FetchError
	return errors.As(err, &target)
}

// newError wraps err for locator, classifying timeouts. An err that already
// is a *FetchError is returned unchanged.
func newError(locator string, err error) error {
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &FetchError{Locator: locator, Timeout: isTimeout(err), Wrapped: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// writeStream copies r into destPath through a temp file in the same
// directory. maxBytes <= 0 disables the limit.
func writeStream(ctx context.Context, r io.Reader, destPath string, maxBytes int64) error {
	dir := filepath.Dir(destPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(destPath)+".part-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}

	src := io.Reader(ctxReader{ctx: ctx, r: r})
	if maxBytes > 0 {
		src = io.LimitReader(src, maxBytes+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return fail(err)
	}
	if maxBytes > 0 && n > maxBytes {
		return fail(fmt.Errorf("%w (%d bytes)", ErrTooLarge, maxBytes))
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, destPath); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
