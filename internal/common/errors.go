// Package common defines sentinel errors and constants shared by the server
// layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrValidation     = errors.New("validation error")

	// Chat rules.
	ErrChatNotFound       = errors.New("chat not found")
	ErrSenderNotFound     = errors.New("sender not found")
	ErrNotAParticipant    = errors.New("user is not a participant of this chat")
	ErrForbidden          = errors.New("forbidden")
	ErrNotGroupChat       = errors.New("operation is only allowed in group chats")
	ErrAlreadyParticipant = errors.New("user is already a member of this chat")

	// Auth errors (invalid, malformed or foreign token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
