package manager

type Config struct {
	// Repositories are opened when the application starts.
	Repositories []string
	// WatchedFiles are extension files relative to the metadata directory.
	WatchedFiles []string
	UserConfigs  []string
}
