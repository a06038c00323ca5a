package cmdcore

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLauncher selects the worker strategy configured in cfg.
func NewLauncher(cfg Config, handler Handler, logger *zap.Logger) (Launcher, error) {
	switch cfg.Mode {
	case ModeProcess, "":
		if cfg.Executable == "" {
			return nil, ErrMissingExecutable
		}
		return NewProcessLauncher(cfg.Executable, cfg.Env, logger), nil
	case ModeInProcess:
		if handler == nil {
			return nil, ErrMissingHandler
		}
		return NewInProcessLauncher(handler, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
}
