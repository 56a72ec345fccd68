package cqrs

import "errors"

// Errors returned by command and query services. Handlers map them to status
// codes with errors.Is.
var (
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidQuery = errors.New("invalid query")
)
