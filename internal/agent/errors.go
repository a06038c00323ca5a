package agent

import "errors"

var ErrInvalidSubRepoPath = errors.New("invalid sub-repository path")
