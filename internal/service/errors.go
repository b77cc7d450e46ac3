package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies a service failure. Handlers map kinds to HTTP statuses;
// ResourceExhausted is the one kind expected under load and must stay
// distinguishable from Internal so callers can back off and retry.
type Kind string

const (
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindValidation        Kind = "VALIDATION"
	KindResourceExhausted Kind = "RESOURCE_EXHAUSTED"
	KindInternal          Kind = "INTERNAL"
)

type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// Constructors
func New(kind Kind, message string) error {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &AppError{Kind: kind, Message: message, Cause: cause}
}

func Unauthorized(msg string) error {
	return New(KindUnauthorized, msg)
}

func NotFound(msg string) error {
	return New(KindNotFound, msg)
}

func Validation(msg string) error {
	return New(KindValidation, msg)
}

func Internal(msg string) error {
	return New(KindInternal, msg)
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Domain errors shared across services.
var (
	ErrInvalidCredentials = Unauthorized("invalid credentials")
	ErrChatNotFound       = NotFound("chat not found")
	ErrMessageNotFound    = NotFound("message not found")
	ErrUserNotFound       = NotFound("user not found")
	ErrEmailTaken         = Validation("email already registered")
	ErrEmptyMemberList    = Validation("chat requires at least one member")
)

// translateStoreError maps storage failures into the service taxonomy.
// Pool saturation (a bounded pool with an acquire timeout) surfaces as a
// context deadline or a "too many connections" driver error; both classify
// as ResourceExhausted, never as a generic internal error.
func translateStoreError(err error, msg string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return Wrap(KindNotFound, msg, err)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return Wrap(KindValidation, msg, err)
	case isPoolExhausted(err):
		return Wrap(KindResourceExhausted, msg, err)
	default:
		return Wrap(KindInternal, msg, err)
	}
}

func isPoolExhausted(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	s := err.Error()
	return strings.Contains(s, "too many connections") ||
		strings.Contains(s, "connection pool exhausted")
}
