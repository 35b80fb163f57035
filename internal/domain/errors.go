package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrStaleState        = errors.New("stale state")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotLocked         = errors.New("wager is not locked")
	ErrAlreadySettled    = errors.New("wager already settled")
	ErrConflict          = errors.New("vote conflict")
	ErrLockHeld          = errors.New("lock already held")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ValidationError describe un input inválido. Nunca implica cambio de estado.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid construye un *ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation devuelve true si err (o algo que envuelve) es un *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// PlatformError envuelve un fallo del adapter de la plataforma externa.
// Es transitorio: el scheduler reintenta en el siguiente tick.
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// IsPlatform devuelve true si err proviene de la plataforma externa.
func IsPlatform(err error) bool {
	var pe *PlatformError
	return errors.As(err, &pe)
}
