package repo

import "errors"

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrInvalidRepository  = errors.New("invalid repository")
	ErrInvalidPath        = errors.New("invalid path")
)
