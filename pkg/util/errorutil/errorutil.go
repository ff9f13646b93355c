package errorutil

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
)

// Error codes shared by the store, services and the HTTP layer.
const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeIllegalTransition = "ILLEGAL_TRANSITION"
	CodeAlreadyOwned      = "ALREADY_OWNED"
	CodeAlreadyReplacing  = "ALREADY_REPLACING"
	CodeDuplicateAppeal   = "DUPLICATE_APPEAL"
	CodeUnknownDevice     = "UNKNOWN_DEVICE"
	CodeConcurrentUpdate  = "CONCURRENT_UPDATE"
	CodeInternal          = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewIllegalTransition reports an event that the current status does not accept.
func NewIllegalTransition(status, event string) error {
	return NewDomainError(CodeIllegalTransition,
		fmt.Sprintf("cannot %s an appeal in status %s", event, status),
		http.StatusConflict,
		map[string]any{"status": status, "event": event})
}

// NewAlreadyOwned reports a claim or action against an appeal held by another operator.
func NewAlreadyOwned(ownerID string) error {
	return NewDomainError(CodeAlreadyOwned, "appeal is owned by another operator",
		http.StatusConflict, map[string]any{"owner_id": ownerID})
}

func NewAlreadyReplacing(appealID int64) error {
	return NewDomainError(CodeAlreadyReplacing, "appeal is already in replacement",
		http.StatusConflict, map[string]any{"appeal_id": appealID})
}

// NewDuplicateAppeal points the requester at the open appeal that blocks the submission.
func NewDuplicateAppeal(existingID int64) error {
	return NewDomainError(CodeDuplicateAppeal, "an equivalent appeal is already open",
		http.StatusConflict, map[string]any{"existing_appeal_id": existingID})
}

func NewUnknownDevice(serial string) error {
	return NewDomainError(CodeUnknownDevice, "device serial is not registered",
		http.StatusUnprocessableEntity, map[string]any{"serial": serial})
}

// NewConcurrentUpdate reports a transaction aborted by the database to break
// a lock cycle. Nothing was written; the caller may retry.
func NewConcurrentUpdate(appealID int64, err error) error {
	return &DomainError{
		Code:       CodeConcurrentUpdate,
		Message:    "appeal was updated concurrently, retry the action",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"appeal_id": appealID},
		Err:        err,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsCode reports whether err carries a DomainError with the given code.
func IsCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return &DomainError{
			Code:       codeForStatus(fiberErr.Code),
			Message:    fiberErr.Message,
			HTTPStatus: fiberErr.Code,
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &DomainError{
			Code:       CodeNotFound,
			Message:    "resource not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{},
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return CodeValidation
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	}
	if status >= http.StatusInternalServerError {
		return CodeInternal
	}
	return fmt.Sprintf("HTTP_%d", status)
}

func MapError(err error) error {
	if err == nil {
		return nil
	}
	return ToDomainError(err)
}
