package manager

import (
	"errors"

	"github.com/repoagent/repoagent/internal/repo"
)

var (
	ErrRepositoryNotFound = repo.ErrRepositoryNotFound
	ErrNotOpen            = errors.New("repository is not open")
	ErrShutdownTimeout    = errors.New("repository did not stop in time")
)
