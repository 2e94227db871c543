package agent

import "github.com/vorpalbuild/vorpal/pkg/artifact"

// platformFor maps a target system onto the lockfile's platform string.
func platformFor(system artifact.System) string {
	switch system {
	case artifact.SystemAarch64Linux:
		return "aarch64-linux"
	case artifact.SystemAarch64Macos:
		return "aarch64-macos"
	case artifact.SystemX8664Linux:
		return "x86_64-linux"
	case artifact.SystemX8664Macos:
		return "x86_64-macos"
	default:
		return "unknown"
	}
}
