//go:build !linux

package repo

// IsNetworkFS reports whether path lives on a network filesystem. Detection
// is only implemented on Linux.
func IsNetworkFS(string) bool { return false }
