package badgerfx

// Entity is a value stored under its own key, optionally reachable through
// secondary index keys whose values hold the primary key.
type Entity interface {
	// StorageKey returns the primary key. Called on the zero value with an
	// id, it must build the key for that id.
	StorageKey(id ...string) string
	StorageIndexes() []string

	MarshalStorage() ([]byte, error)
	UnmarshalStorage(data []byte) error
}
