package history

import (
	"errors"

	"github.com/repoagent/repoagent/pkg/badgerfx"
)

var (
	ErrNotFound  = badgerfx.ErrNotFound
	ErrInvalidID = errors.New("invalid record id")
)
