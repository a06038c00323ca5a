package git

import "errors"

var (
	ErrRepositoryNotFound      = errors.New("repository not found")
	ErrCloneFailed             = errors.New("failed to clone repository")
	ErrPullFailed              = errors.New("failed to pull repository")
	ErrFileNotFound            = errors.New("file not found")
	ErrInvalidRepository       = errors.New("invalid repository")
	ErrEmptyRepository         = errors.New("repository has no commits")
	ErrRepositoryAlreadyExists = errors.New("repository already exists")
	ErrOperationCancelled      = errors.New("operation cancelled")
)
