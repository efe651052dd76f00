package presence

import "errors"

// Presence domain errors
var (
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrMissingCredential   = errors.New("missing credential")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrNotAdmitted         = errors.New("connection not admitted")
	ErrUnknownEvent        = errors.New("unknown event")
	ErrMalformedPayload    = errors.New("malformed payload")
	ErrConnectionClosed    = errors.New("connection closed")
	ErrSendBufferFull      = errors.New("send buffer full")
)
