package archive

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fulmenhq/draftfix/pkg/bundle"
)

// ArchiveFormatError indicates the input is not a usable zip container.
type ArchiveFormatError struct {
	Path   string
	Reason string
	// LooksLikeHTML is set when the payload is an HTML page, typically an
	// error page served in place of the archive.
	LooksLikeHTML bool
	Wrapped       error
}

func (e *ArchiveFormatError) Error() string {
	msg := fmt.Sprintf("invalid archive %s: %s", e.Path, e.Reason)
	if e.LooksLikeHTML {
		msg += " (payload looks like an HTML page)"
	}
	if e.Wrapped != nil {
		msg += ": " + e.Wrapped.Error()
	}
	return msg
}

func (e *ArchiveFormatError) Unwrap() error { return e.Wrapped }

// Kind returns the error taxonomy name.
func (e *ArchiveFormatError) Kind() string { return bundle.KindArchiveFormat }

// IsArchiveFormatError checks if an error is an archive format error
func IsArchiveFormatError(err error) bool {
	var target *ArchiveFormatError
	return errors.As(err, &target)
}

// sniffWindow is how much of a payload SniffHTML inspects.
const sniffWindow = 1024

// SniffHTML reports whether the first KiB of the file looks like an HTML document.
func SniffHTML(path string) (bool, error) {
	f, err := os.Open(path) // #nosec G304 -- caller-provided archive path
	if err != nil {
		return false, err
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, sniffWindow)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	head := bytes.ToLower(buf[:n])
	return bytes.Contains(head, []byte("<html")) || bytes.Contains(head, []byte("<!doctype")), nil
}
