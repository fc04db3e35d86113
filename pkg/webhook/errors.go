package webhook

import "errors"

// Error values returned by the processor. The HTTP layer maps them onto status codes.
var (
	ErrUnauthorized           = errors.New("unauthorized")
	ErrMalformedEvent         = errors.New("malformed event")
	ErrUnprocessableEvent     = errors.New("unprocessable event")
	ErrDuplicateEvent         = errors.New("duplicate event")
	ErrInvalidProcessorConfig = errors.New("invalid processor config")
)
