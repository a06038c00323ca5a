package cmdcore

import "errors"

var (
	ErrUnknownMode       = errors.New("unknown command mode")
	ErrMissingExecutable = errors.New("command executable not configured")
	ErrMissingHandler    = errors.New("in-process command handler not configured")
)
