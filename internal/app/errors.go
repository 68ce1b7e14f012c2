package app

import (
	"errors"
	"fmt"
	"net/http"

	"scorecard/api/internal/store"
)

// DomainError is an expected failure with the HTTP status and code it is
// reported under. Details, when set, is serialized next to the message.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(format string, args ...any) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", fmt.Sprintf(format, args...), nil)
}

func invalidInput(format string, args ...any) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf(format, args...), nil)
}

// parentMissing turns a missing parent into a 404 naming the parent.
func parentMissing(err error) (*DomainError, bool) {
	if !errors.Is(err, store.ErrParentNotFound) {
		return nil, false
	}
	return domainError(http.StatusNotFound, "PARENT_NOT_FOUND", err.Error(), nil), true
}
