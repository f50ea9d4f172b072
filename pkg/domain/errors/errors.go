package errors

import "errors"

var (
	// requested entity is not found.
	ErrMissing = errors.New("missing")

	// the request conflicts with the current state of the entity.
	ErrConflict = errors.New("conflict")
)
