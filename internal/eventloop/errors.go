package eventloop

import "errors"

var (
	ErrAlreadyRunning = errors.New("event loop already running")
	ErrStopped        = errors.New("event loop stopped")
)
