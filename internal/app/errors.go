package app

import (
	"fmt"
	"net/http"
)

const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeForbidden      = "FORBIDDEN"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRetry          = "RETRY"
	CodePDFUnavailable = "PDF_UNAVAILABLE"
	CodeServerError    = "SERVER_ERROR"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
	cause   error
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, CodeValidation, message, details)
}

func authenticationError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func authorizationError(message string) *DomainError {
	if message == "" {
		message = "You do not have permission to perform this action"
	}
	return domainError(http.StatusForbidden, CodeForbidden, message, nil)
}

func notFoundError(entity string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, entity+" not found", nil)
}

func conflictError(message string, details any) *DomainError {
	return domainError(http.StatusConflict, CodeConflict, message, details)
}

func retryError() *DomainError {
	return domainError(http.StatusConflict, CodeRetry, "The request collided with a concurrent change, please retry", nil)
}

func pdfUnavailableError(cause error) *DomainError {
	err := domainError(http.StatusServiceUnavailable, CodePDFUnavailable, "PDF generation is temporarily unavailable, please retry", nil)
	err.cause = cause
	return err
}
