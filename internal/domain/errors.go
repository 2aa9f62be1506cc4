package domain

import (
	"errors"
	"fmt"
)

// Error categories. Specific errors wrap one of these so callers can branch
// with errors.Is without knowing every sentinel.
var (
	ErrValidation = errors.New("invalid request")
	ErrNotFound   = errors.New("not found")
	ErrTransient  = errors.New("store temporarily unavailable")
)

var (
	// ErrRoomNotFound is returned when a room document does not exist.
	ErrRoomNotFound = fmt.Errorf("room %w", ErrNotFound)
	// ErrPlayerNotFound is returned when a nickname has not joined the room.
	ErrPlayerNotFound = fmt.Errorf("player %w", ErrNotFound)
	// ErrUserNotFound is returned when no global profile exists for a nickname.
	ErrUserNotFound = fmt.Errorf("user profile %w", ErrNotFound)
	// ErrQuestionNotFound is returned when no question exists at a (level, order).
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)

	ErrInvalidRoomCode   = fmt.Errorf("%w: room code must be 5 digits", ErrValidation)
	ErrDuplicateCode     = fmt.Errorf("%w: room code already in use", ErrValidation)
	ErrRoomNotJoinable   = fmt.Errorf("%w: room is not in progress", ErrValidation)
	ErrInvalidTransition = fmt.Errorf("%w: transition not allowed from current phase", ErrValidation)
	ErrNotPlaying        = fmt.Errorf("%w: no question is being played", ErrValidation)
	ErrToolUsed          = fmt.Errorf("%w: help tool already used in this room", ErrValidation)
	ErrNegativeDelta     = fmt.Errorf("%w: score delta must not be negative", ErrValidation)

	// ErrSessionClosed is returned by commands sent to a stopped player session.
	ErrSessionClosed = errors.New("player session closed")
)

// ValidationError describes a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Transient wraps a driver or network failure as ErrTransient.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
