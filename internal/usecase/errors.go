package usecase

import "errors"

var (
	// ErrNoGenerators is returned when no enabled generator is registered.
	ErrNoGenerators = errors.New("no signal generators enabled")
	// ErrUnknownGenerator is returned when configuration enables a type nobody registered.
	ErrUnknownGenerator = errors.New("unknown signal generator type")
	ErrInvalidConfig    = errors.New("invalid signal service configuration")
)
