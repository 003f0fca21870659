package app

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a DomainError. The HTTP boundary picks the status code from
// the kind; workflows never choose status codes themselves.
type Kind string

const (
	KindOwnerNotFound      Kind = "OWNER_NOT_FOUND"
	KindNotFound           Kind = "NOT_FOUND"
	KindDuplicateIdentity  Kind = "DUPLICATE_IDENTITY"
	KindMalformedTimestamp Kind = "MALFORMED_TIMESTAMP"
	KindValidation         Kind = "VALIDATION_ERROR"
	KindMethodNotAllowed   Kind = "METHOD_NOT_ALLOWED"
	KindUnavailable        Kind = "UNAVAILABLE"
)

type DomainError struct {
	Kind    Kind
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

func domainError(kind Kind, code, message string, details any) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// ErrorKind returns the kind carried by err, or "" for unclassified errors.
func ErrorKind(err error) Kind {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Kind
	}
	return ""
}

func errOwnerNotFound() *DomainError {
	return domainError(KindOwnerNotFound, "OWNER_NOT_FOUND", "Unknown identity", nil)
}

// errNotFound reports a failed lookup of entity, e.g. PROJECT_NOT_FOUND.
func errNotFound(entity string) *DomainError {
	return domainError(
		KindNotFound,
		strings.ToUpper(entity)+"_NOT_FOUND",
		strings.ToUpper(entity[:1])+entity[1:]+" not found",
		map[string]any{"entity": entity},
	)
}

func errDuplicateIdentity() *DomainError {
	return domainError(KindDuplicateIdentity, "DUPLICATE_IDENTITY", "Identity is already registered", map[string][]string{
		"identity": {"user with this identity already exists."},
	})
}

func errMalformedTimestamp(field string) *DomainError {
	return domainError(KindMalformedTimestamp, "MALFORMED_TIMESTAMP", "Timestamp must use YYYY-MM-DD HH:MM:SS", map[string]any{
		"field": field,
	})
}

func errMethodNotAllowed(message string) *DomainError {
	return domainError(KindMethodNotAllowed, "METHOD_NOT_ALLOWED", message, nil)
}

func errUnavailable(code, message string) *DomainError {
	return domainError(KindUnavailable, code, message, nil)
}

const msgRequired = "This field is required."

// fieldErrors collects per-field validation messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, message string) {
	f[field] = append(f[field], message)
}

func (f fieldErrors) require(field, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, msgRequired)
	}
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return domainError(KindValidation, "VALIDATION_ERROR", "Invalid input", map[string][]string(f))
}
