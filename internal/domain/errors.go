package domain

import "errors"

var (
	// ErrResourceUnavailable means the arbiter could not load the requested model.
	ErrResourceUnavailable = errors.New("resource unavailable")

	ErrUnknownTool      = errors.New("unknown tool")
	ErrDuplicateTool    = errors.New("duplicate tool")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrTimeout          = errors.New("timeout")

	// ErrBlockedCommand is returned by tools whose input matched the deny list.
	ErrBlockedCommand = errors.New("blocked: potentially destructive command")
)
