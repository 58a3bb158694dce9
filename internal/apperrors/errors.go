package apperrors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/w3a11y/artisan-wordpress-sub001/pkg/models"
)

type Kind string

const (
	KindConfig     Kind = "config"
	KindValidation Kind = "validation"
	KindAuth       Kind = "auth"
	KindBatch      Kind = "batch"
	KindNetwork    Kind = "network"
	KindStorage    Kind = "storage"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindInternal   Kind = "internal"
)

type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Wrap attaches a kind to err. A typed error already in the chain is returned as is.
func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// Validation is shorthand for a validation error with a formatted message.
func Validation(op, format string, args ...any) *Error {
	return New(KindValidation, op, fmt.Sprintf(format, args...))
}

// IsKind checks whether the first typed error in the chain has the provided kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first typed error in the chain, or "" when there is none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// HTTPStatus maps an error to the status the endpoint answers with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuth:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBatch, KindStorage, KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Code maps an error to the wire code of models.ErrorResponse.
func Code(err error) string {
	switch KindOf(err) {
	case KindValidation:
		return models.CodeValidation
	case KindAuth:
		return models.CodeInvalidNonce
	case KindNotFound:
		return models.CodeNotFound
	case KindConflict:
		return models.CodeConflict
	case KindBatch, KindStorage, KindNetwork:
		return models.CodeBatchFailed
	default:
		return models.CodeInternal
	}
}

// Message returns the user-facing message of err.
func Message(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
