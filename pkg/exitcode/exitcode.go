// Package exitcode provides standardized exit codes for draftfix
package exitcode

// Exit codes for the draftfix CLI
const (
	Success            = 0
	GeneralError       = 1
	ConfigError        = 2
	WriteError         = 4
	SourceUnavailable  = 5
	ArchiveFormatError = 8
	PartialRepair      = 10
	ManifestParseError = 11
	Cancelled          = 12
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case WriteError:
		return "Write error"
	case SourceUnavailable:
		return "Source unavailable"
	case ArchiveFormatError:
		return "Invalid archive format"
	case PartialRepair:
		return "Partially repaired"
	case ManifestParseError:
		return "Manifest parse error"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown error"
	}
}
