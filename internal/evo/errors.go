package evo

import (
	"errors"

	"gentasche/internal/costmodel"
)

var (
	// ErrInvalidArgument reports a rejected parameter: non-positive counts, an
	// exterior crossing point, a sequence too short to mutate, an out-of-range pick.
	ErrInvalidArgument = costmodel.ErrInvalidArgument
	// ErrMalformedInput reports a problem instance that does not match its declared shape.
	ErrMalformedInput = costmodel.ErrMalformedInput
	// ErrNotRated reports an operation that needs scores before rating happened.
	ErrNotRated = errors.New("not rated")
	// ErrPreconditionViolation reports optimizer lifecycle misuse.
	ErrPreconditionViolation = errors.New("precondition violation")
)
