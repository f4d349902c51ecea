package types

import "errors"

var (
	ErrInvalidRoute      = errors.New("invalid route")
	ErrDeviceUnavailable = errors.New("device unavailable")
	ErrDeviceCommand     = errors.New("device command failed")
	ErrAuth              = errors.New("authentication failed")
	ErrDuplicateFinalize = errors.New("session already finalized")

	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidTransition = errors.New("invalid session state transition")
	ErrRetriesExhausted  = errors.New("retry budget exhausted")
	ErrDeviceBusy        = errors.New("device busy")
	ErrNotFound          = errors.New("requested item not found")
)
