package domain

import "errors"

// Sentinel errors for the abstract error kinds of the control/actuation surface.
// Handlers and subsystems compare with errors.Is; wrap with fmt.Errorf("...: %w", ...)
// when more context is useful.
var (
	ErrConfigInvalid       = errors.New("configuration document is invalid")
	ErrUnknownControl      = errors.New("control point not declared")
	ErrProviderUnreachable = errors.New("provider unreachable")
	ErrProviderBadPayload  = errors.New("provider returned an unexpected payload")
	ErrStatusBufferOverflow = errors.New("status serialization exceeded buffer")
)
