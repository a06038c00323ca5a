package builtin

import "errors"

var ErrInvalidArguments = errors.New("invalid arguments")
