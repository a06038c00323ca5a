package watcher

import "time"

type Config struct {
	// Enabled turns filesystem monitoring on. Polling on demand always works.
	Enabled            bool
	PollInterval       time.Duration
	Debounce           time.Duration
	AllowNetworkDrives bool
}
