/*
Copyright © 2025 3 Leaps <info@3leaps.com>
*/

// Package exitcode provides standardized exit codes for addonsync
package exitcode

// Exit codes for the addonsync CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	FileSystemError = 4
	// DriftDetected is returned by `audit --check` when registries disagree with the tree.
	DriftDetected = 10
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
	case FileSystemError:
		return "File system error"
	case DriftDetected:
		return "Registry drift detected"
	default:
		return "Unknown error"
	}
}
