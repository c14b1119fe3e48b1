package domain

import (
	"errors"
	"fmt"

	"sdq-screen/internal/sdq"
)

// Taxonomia de errores del protocolo de sesion y del flujo de revision.
var (
	ErrInvalidSubject        = errors.New("invalid subject")
	ErrDuplicateSession      = errors.New("active session already exists for subject and role")
	ErrState                 = errors.New("operation not valid in current state")
	ErrIndexOutOfRange       = sdq.ErrIndexOutOfRange
	ErrNotComplete           = errors.New("session not complete")
	ErrAdapterTimeout        = errors.New("interpreter unavailable, try again")
	ErrAdapterUnintelligible = errors.New("answer could not be interpreted")
	ErrSessionNotFound       = errors.New("session not found")
	ErrReviewNotFound        = errors.New("review record not found")
	ErrInvalidOption         = sdq.ErrInvalidOption
	ErrInvalidRole           = errors.New("invalid respondent role")
	ErrReviewerRequired      = errors.New("reviewer id is required")
)

// DuplicateSessionError lleva el id de la sesion activa para poder retomarla.
type DuplicateSessionError struct {
	SessionID string
}

func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDuplicateSession, e.SessionID)
}

func (e *DuplicateSessionError) Is(target error) bool {
	return target == ErrDuplicateSession
}

// UnintelligibleError lleva el mensaje que se muestra al respondente al re-preguntar.
type UnintelligibleError struct {
	Message string
}

func (e *UnintelligibleError) Error() string {
	return ErrAdapterUnintelligible.Error()
}

func (e *UnintelligibleError) Is(target error) bool {
	return target == ErrAdapterUnintelligible
}

// StateError describe la transicion rechazada.
func StateError(op string, state any) error {
	return fmt.Errorf("%w: %s from %v", ErrState, op, state)
}
