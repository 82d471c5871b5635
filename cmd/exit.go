/*
Copyright © 2025 3 Leaps <info@3leaps.net>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fulmenhq/draftfix/pkg/bundle"
	"github.com/fulmenhq/draftfix/pkg/exitcode"
	"github.com/fulmenhq/draftfix/pkg/pipeline"
)

// configError marks bad flags, config files or settings.
type configError struct {
	err error
}

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

// statusError carries a non-zero exit status for an outcome that was already
// reported, such as a partial repair.
type statusError struct {
	code int
	msg  string
}

func (e *statusError) Error() string { return e.msg }

func isStatusOnly(err error) bool {
	var s *statusError
	return errors.As(err, &s)
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitcode.Success
	}
	var s *statusError
	if errors.As(err, &s) {
		return s.code
	}
	if errors.Is(err, context.Canceled) {
		return exitcode.Cancelled
	}
	var c *configError
	if errors.As(err, &c) {
		return exitcode.ConfigError
	}
	switch bundle.ErrorKind(err) {
	case bundle.KindSourceUnavailable:
		return exitcode.SourceUnavailable
	case bundle.KindArchiveFormat:
		return exitcode.ArchiveFormatError
	case bundle.KindManifestParse:
		return exitcode.ManifestParseError
	case bundle.KindWrite:
		return exitcode.WriteError
	}
	return exitcode.GeneralError
}

// batchError turns batch outcomes into the command's error: the first fatal
// error wins, then any partial result.
func batchError(items []pipeline.Item) error {
	partial := 0
	for _, it := range items {
		if it.Err != nil {
			if len(items) == 1 {
				return it.Err
			}
			return fmt.Errorf("%s: %w", it.Request.Source, it.Err)
		}
		if it.Result != nil && it.Result.Status == pipeline.StatusPartial {
			partial++
		}
	}
	if partial > 0 {
		return &statusError{
			code: exitcode.PartialRepair,
			msg:  fmt.Sprintf("%d of %d bundles have unresolved findings", partial, len(items)),
		}
	}
	return nil
}
