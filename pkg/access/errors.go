package access

import "errors"

// Domain-level error values returned by the access service.
var (
	ErrUnknownUser             = errors.New("unknown user")
	ErrUserExists              = errors.New("user already exists")
	ErrUnknownPreAuthorization = errors.New("unknown pre-authorization")
	ErrInvalidIdentity         = errors.New("invalid identity")
	ErrInvalidEmail            = errors.New("invalid email")
	ErrInvalidGrant            = errors.New("invalid grant")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
)
