package bundle

import (
	"errors"
	"fmt"
)

// Error kinds shared across the engine's typed errors.
const (
	KindSourceUnavailable = "source_unavailable"
	KindArchiveFormat     = "archive_format"
	KindManifestParse     = "manifest_parse"
	KindFetch             = "fetch"
	KindWrite             = "write"
)

// ManifestParseError indicates a manifest whose bytes are not valid JSON or
// whose shape does not match its role.
type ManifestParseError struct {
	Role Role
	Path string
	// Problems lists schema violations, when the bytes were valid JSON.
	Problems []string
	Wrapped  error
}

func (e *ManifestParseError) Error() string {
	switch {
	case e.Wrapped != nil:
		return fmt.Sprintf("parse %s manifest %s: %v", e.Role, e.Path, e.Wrapped)
	case len(e.Problems) > 0:
		return fmt.Sprintf("parse %s manifest %s: %s", e.Role, e.Path, e.Problems[0])
	default:
		return fmt.Sprintf("parse %s manifest %s", e.Role, e.Path)
	}
}

func (e *ManifestParseError) Unwrap() error { return e.Wrapped }

// Kind returns the error taxonomy name.
func (e *ManifestParseError) Kind() string { return KindManifestParse }

// IsManifestParseError checks if an error is a manifest parse error
func IsManifestParseError(err error) bool {
	var target *ManifestParseError
	return errors.As(err, &target)
}

// WriteError indicates a failure persisting a manifest or the output archive.
type WriteError struct {
	Path    string
	Wrapped error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Wrapped)
}

func (e *WriteError) Unwrap() error { return e.Wrapped }

// Kind returns the error taxonomy name.
func (e *WriteError) Kind() string { return KindWrite }

// IsWriteError checks if an error is a write error
func IsWriteError(err error) bool {
	var target *WriteError
	return errors.As(err, &target)
}

// ErrorKind returns the taxonomy name of the first typed error in err's chain,
// or "" when there is none.
func ErrorKind(err error) string {
	var k interface{ Kind() string }
	if errors.As(err, &k) {
		return k.Kind()
	}
	return ""
}
