package core

import "errors"

var (
	// ErrDuplicateIdentity means identity generation handed out an id that is still registered.
	ErrDuplicateIdentity = errors.New("duplicate identity")
	ErrBackpressure      = errors.New("backpressure")
	ErrConnClosed        = errors.New("connection closed")
)
