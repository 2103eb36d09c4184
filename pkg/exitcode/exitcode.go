// Package exitcode provides standardized exit codes for vibepack
package exitcode

// Exit codes for the vibepack CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	StructuralError = 3
	PolicyError     = 4
	NetworkError    = 5
	IntegrityError  = 6
	SizeLimitError  = 7
	FileSystemError = 8
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
	case StructuralError:
		return "Layout structure error"
	case PolicyError:
		return "Policy violation"
	case NetworkError:
		return "Network error"
	case IntegrityError:
		return "Integrity verification error"
	case SizeLimitError:
		return "Identifier size limit error"
	case FileSystemError:
		return "File system error"
	default:
		return "Unknown error"
	}
}
