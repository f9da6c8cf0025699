package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvoiceNotFound      = errors.New("invoice_not_found")
	ErrInvalidInvoiceID     = errors.New("invalid_invoice_id")
	ErrInvalidUID           = errors.New("invalid_uid")
	ErrInvalidAction        = errors.New("invalid_finalize_action")
	ErrInvalidInfoKind      = errors.New("invalid_info_kind")
	ErrInvalidPageToken     = errors.New("invalid_page_token")
	ErrTerminalState        = errors.New("terminal_state")
	ErrPersistence          = errors.New("persistence_failure")
	ErrReconciliationTask   = errors.New("reconciliation_task_not_found")
	ErrValidation           = errors.New("validation_failure")
	ErrNotConfirmed         = errors.New("invoice_not_confirmed")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrRemoteValidation     = errors.New("remote_validation")
	ErrTransport            = errors.New("transport")
	ErrRemoteUnknown        = errors.New("remote_unknown")
	ErrGatewayNotConfigured = errors.New("gateway_not_configured")
	// ErrMissingSecurityElements marks a confirm answer without fiscal code
	// or QR payload. The invoice may be confirmed remotely all the same.
	ErrMissingSecurityElements = errors.New("missing_security_elements")
)

// Violation is one field-scoped validation failure.
type Violation struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationErrors enumerates every violation found in a request.
type ValidationErrors struct {
	Violations []Violation `json:"errors"`
}

func (v *ValidationErrors) Error() string {
	if v == nil || len(v.Violations) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(v.Violations))
	for _, violation := range v.Violations {
		parts = append(parts, violation.Field+": "+violation.Code)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (v *ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}

// Add appends a violation.
func (v *ValidationErrors) Add(field, code, message string) {
	v.Violations = append(v.Violations, Violation{Field: field, Code: code, Message: message})
}

// Has reports whether a violation with the given code exists on field.
func (v *ValidationErrors) Has(field, code string) bool {
	if v == nil {
		return false
	}
	for _, violation := range v.Violations {
		if violation.Field == field && violation.Code == code {
			return true
		}
	}
	return false
}

// ErrOrNil returns v when it holds at least one violation.
func (v *ValidationErrors) ErrOrNil() error {
	if v == nil || len(v.Violations) == 0 {
		return nil
	}
	return v
}

// RemoteErrorKind classifies a failed call to the fiscal API.
type RemoteErrorKind string

const (
	RemoteUnauthorized RemoteErrorKind = "unauthorized"
	RemoteValidation   RemoteErrorKind = "remote_validation"
	RemoteTransport    RemoteErrorKind = "transport"
	RemoteUnknown      RemoteErrorKind = "unknown"
)

// RemoteError is the normalized failure of a fiscal API call.
type RemoteError struct {
	Kind       RemoteErrorKind `json:"kind"`
	Operation  string          `json:"operation"`
	HTTPStatus int             `json:"http_status,omitempty"`
	// Code is the remote numeric error code; zero when none was returned.
	Code        int    `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	// Message is the catalog message for Code, or a generic description.
	Message string `json:"message"`
	// Indeterminate is set when the request may have been processed remotely
	// although no answer was received.
	Indeterminate bool  `json:"indeterminate,omitempty"`
	Err           error `json:"-"`
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("emecf ")
	if e.Operation != "" {
		b.WriteString(e.Operation)
		b.WriteString(" ")
	}
	b.WriteString(string(e.Kind))
	if e.HTTPStatus != 0 {
		fmt.Fprintf(&b, " (http %d)", e.HTTPStatus)
	}
	if e.Code != 0 {
		fmt.Fprintf(&b, " code=%d", e.Code)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUnauthorized:
		return e.Kind == RemoteUnauthorized
	case ErrRemoteValidation:
		return e.Kind == RemoteValidation
	case ErrTransport:
		return e.Kind == RemoteTransport
	case ErrRemoteUnknown:
		return e.Kind == RemoteUnknown
	default:
		return false
	}
}

// StoredCode is the error code persisted on an errored invoice.
func (e *RemoteError) StoredCode() string {
	if e == nil {
		return ""
	}
	if e.Code != 0 {
		return fmt.Sprintf("%d", e.Code)
	}
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("http_%d", e.HTTPStatus)
	}
	return string(e.Kind)
}

// StoredDescription is the error description persisted on an errored invoice.
func (e *RemoteError) StoredDescription() string {
	if e == nil {
		return ""
	}
	if e.Description != "" && e.Description != e.Message {
		return e.Message + " - " + e.Description
	}
	return e.Message
}

// AsRemoteError extracts a RemoteError from err.
func AsRemoteError(err error) (*RemoteError, bool) {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) && remoteErr != nil {
		return remoteErr, true
	}
	return nil, false
}
