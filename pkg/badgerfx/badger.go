package badgerfx

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// SeekEnd sorts after every printable key byte; append it to a prefix to
// start a reverse iteration at the end of the prefix range.
const SeekEnd = byte(0xFF)

func New(config Config, logger *zapLogger) (*badger.DB, error) {
	db, err := badger.Open(config.Build().WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	return db, nil
}
