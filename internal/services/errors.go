package services

import (
	"errors"
	"fmt"

	"studyrooms-backend/internal/models"
)

// AuthenticationError rejects a credential at connection time.
type AuthenticationError struct{ Message string }

func (e *AuthenticationError) Error() string { return e.Message }

// MembershipError means the identity lacks the room/community membership an action needs.
type MembershipError struct{ Message string }

func (e *MembershipError) Error() string { return e.Message }

type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Validation error"
}

// ConflictError reports a violated single-active-room invariant. Held is
// the room already occupied, when known.
type ConflictError struct {
	Message string
	Held    *models.RoomRef
}

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// PersistenceError wraps a durable-store failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a *PersistenceError; nil stays nil.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}

// PublicMessage is the text safe to show to the originating client.
func PublicMessage(err error) string {
	var (
		authErr       *AuthenticationError
		membershipErr *MembershipError
		validationErr *ValidationError
		conflictErr   *ConflictError
		notFoundErr   *NotFoundError
	)
	switch {
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.As(err, &membershipErr):
		return membershipErr.Message
	case errors.As(err, &validationErr):
		return validationErr.Error()
	case errors.As(err, &conflictErr):
		return conflictErr.Message
	case errors.As(err, &notFoundErr):
		return notFoundErr.Message
	default:
		return "Something went wrong, please try again"
	}
}
