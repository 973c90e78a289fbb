// Package apperr is the closed set of failures a courier can be shown.
// Errors are built where they are detected (transport, validation,
// permission checks) and travel up unchanged.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindValidation
	KindNetwork
	KindTimeout
	KindUnauthorized
	KindServer
	KindFileInvalid
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindValidation:
		return "validation"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindUnauthorized:
		return "unauthorized"
	case KindServer:
		return "server"
	case KindFileInvalid:
		return "file_invalid"
	default:
		return "unknown"
	}
}

// Permission names the capability a PermissionDenied error is about.
type Permission string

const (
	PermissionForeground Permission = "foreground"
	PermissionBackground Permission = "background"
	PermissionCamera     Permission = "camera"
	PermissionGallery    Permission = "gallery"
)

const (
	StatusNetwork      = 0
	StatusTimeout      = 408
	StatusUnauthorized = 401
)

type Error struct {
	Kind    Kind
	Status  int
	Message string

	// Field is set for KindValidation.
	Field string
	// Permission is set for KindPermissionDenied.
	Permission Permission
	// Index is the 1-based photo ordinal for KindFileInvalid.
	Index int
	// Body is the parsed response body, if any.
	Body any

	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func PermissionDenied(p Permission, message string) *Error {
	return &Error{Kind: KindPermissionDenied, Permission: p, Message: message}
}

func Validation(field, message string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: message}
}

func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Status: StatusNetwork, Message: "Network error", Err: err}
}

func Timeout(message string) *Error {
	if message == "" {
		message = "Request timeout"
	}
	return &Error{Kind: KindTimeout, Status: StatusTimeout, Message: message}
}

func Unauthorized(body any) *Error {
	return &Error{
		Kind:    KindUnauthorized,
		Status:  StatusUnauthorized,
		Message: "Session expired. Please login again.",
		Body:    body,
	}
}

func Server(status int, message string, body any) *Error {
	if message == "" {
		message = "Request failed"
	}
	return &Error{Kind: KindServer, Status: status, Message: message, Body: body}
}

func FileInvalid(index int, err error) *Error {
	return &Error{
		Kind:    KindFileInvalid,
		Index:   index,
		Message: fmt.Sprintf("File foto ke-%d tidak valid. Coba ambil ulang foto.", index),
		Err:     err,
	}
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, k Kind) bool {
	return KindOf(err) == k
}

// UserMessage is the text shown to the courier for err.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if e, ok := As(err); ok && e.Message != "" {
		return e.Message
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}
