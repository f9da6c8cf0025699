package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/smallbiznis/sygmef/internal/emecf/catalog"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

// isConnectFailure reports errors raised before any byte reached the
// remote: dial and name resolution failures. They are safe to retry for
// every method.
func isConnectFailure(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}

func isIdempotent(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

// transportError builds the error for a call that produced no HTTP response.
// Unsafe methods that may have reached the remote are indeterminate.
func transportError(operation, method string, err error) *domain.RemoteError {
	indeterminate := !isIdempotent(method) && !isConnectFailure(err)
	message := "e-MECeF injoignable"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		message = "délai d'attente e-MECeF dépassé"
	case errors.Is(err, context.Canceled):
		message = "appel e-MECeF interrompu"
	}
	if indeterminate {
		message += ", la requête a pu être traitée"
	}
	return &domain.RemoteError{
		Kind:          domain.RemoteTransport,
		Operation:     operation,
		Message:       message,
		Indeterminate: indeterminate,
		Err:           err,
	}
}

// responseError classifies a received HTTP answer that is not a success.
func responseError(operation string, status int, raw []byte) *domain.RemoteError {
	body, _ := decodeErrorBody(raw)
	remoteErr := &domain.RemoteError{
		Operation:   operation,
		HTTPStatus:  status,
		Code:        body.ErrorCode.Value,
		Description: strings.TrimSpace(body.ErrorDesc),
	}
	if remoteErr.Description == "" {
		remoteErr.Description = strings.TrimSpace(body.Message)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		remoteErr.Kind = domain.RemoteUnauthorized
		remoteErr.Message = "jeton e-MECeF invalide ou expiré"
	case status >= 400 && status < 500:
		remoteErr.Kind = domain.RemoteValidation
		remoteErr.Message = validationMessage(remoteErr.Code, remoteErr.Description, status)
	default:
		remoteErr.Kind = domain.RemoteUnknown
		remoteErr.Message = fmt.Sprintf("réponse inattendue d'e-MECeF (http %d)", status)
		if remoteErr.Code != 0 {
			remoteErr.Message = catalog.Message(remoteErr.Code)
		}
	}
	return remoteErr
}

// embeddedError detects a success status whose body still carries an
// errorCode, which e-MECeF does for some rejected invoices.
func embeddedError(operation string, status int, raw []byte) *domain.RemoteError {
	body, ok := decodeErrorBody(raw)
	if !ok || !body.ErrorCode.Set {
		return nil
	}
	if body.ErrorCode.Value == 0 && strings.TrimSpace(body.ErrorDesc) == "" {
		return nil
	}
	description := strings.TrimSpace(body.ErrorDesc)
	return &domain.RemoteError{
		Kind:        domain.RemoteValidation,
		Operation:   operation,
		HTTPStatus:  status,
		Code:        body.ErrorCode.Value,
		Description: description,
		Message:     validationMessage(body.ErrorCode.Value, description, status),
	}
}

func validationMessage(code int, description string, status int) string {
	if code != 0 {
		return catalog.Message(code)
	}
	if description != "" {
		return description
	}
	return fmt.Sprintf("requête rejetée par e-MECeF (http %d)", status)
}

func malformedResponse(operation string, status int, err error) *domain.RemoteError {
	return &domain.RemoteError{
		Kind:       domain.RemoteUnknown,
		Operation:  operation,
		HTTPStatus: status,
		Message:    "réponse e-MECeF illisible",
		Err:        err,
	}
}

func unauthorized(operation, message string, err error) *domain.RemoteError {
	return &domain.RemoteError{
		Kind:      domain.RemoteUnauthorized,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
