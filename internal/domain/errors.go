package domain

import "errors"

// Error categories. Errors recorded in the connection state wrap one of these.
var (
	// ErrMediaUnavailable means the capture API is missing: no drivers or no encoders were registered.
	ErrMediaUnavailable = errors.New("media devices unavailable")
	// ErrCapture means a capture device was denied, missing or failed to open.
	ErrCapture = errors.New("capture failed")
	// ErrNegotiation covers offer creation, local/remote description and answer parsing failures.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrConnectivity is recorded when an established connection drops.
	ErrConnectivity = errors.New("connection lost")
)
