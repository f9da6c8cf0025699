package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

type ValidationError = domain.Violation

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`

	// Remote failure details.
	Code          int    `json:"code,omitempty"`
	Description   string `json:"description,omitempty"`
	Indeterminate bool   `json:"indeterminate,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	errs := &domain.ValidationErrors{}
	errs.Add(field, code, message)
	return requestError{errs}
}

// requestError is a malformed request, as opposed to an invoice that breaks
// a fiscal rule.
type requestError struct {
	*domain.ValidationErrors
}

func (e requestError) Unwrap() error { return e.ValidationErrors }

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var reqErr requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  reqErr.Violations,
		}
	}

	var vErr *domain.ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Violations,
		}
	}

	if remoteErr, ok := domain.AsRemoteError(err); ok {
		return mapRemoteError(remoteErr)
	}

	if field, ok := invalidParamField(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{{
				Field:   field,
				Code:    err.Error(),
				Message: "invalid value",
			}},
		}
	}

	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, domain.ErrTerminalState):
		return http.StatusConflict, errorPayload{
			Type:    "terminal_state",
			Message: err.Error(),
		}
	case errors.Is(err, domain.ErrNotConfirmed):
		return http.StatusConflict, errorPayload{
			Type:    "invoice_not_confirmed",
			Message: "receipt is only available for confirmed invoices",
		}
	case errors.Is(err, ErrNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrReconciliationTask):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func mapRemoteError(err *domain.RemoteError) (int, errorPayload) {
	payload := errorPayload{
		Type:          string(err.Kind),
		Message:       err.Message,
		Code:          err.Code,
		Description:   err.Description,
		Indeterminate: err.Indeterminate,
	}
	switch err.Kind {
	case domain.RemoteUnauthorized:
		return http.StatusUnauthorized, payload
	case domain.RemoteValidation:
		return http.StatusUnprocessableEntity, payload
	case domain.RemoteTransport:
		return http.StatusServiceUnavailable, payload
	default:
		return http.StatusBadGateway, payload
	}
}

func invalidParamField(err error) (string, bool) {
	switch {
	case errors.Is(err, domain.ErrInvalidUID):
		return "uid", true
	case errors.Is(err, domain.ErrInvalidAction):
		return "action", true
	case errors.Is(err, domain.ErrInvalidInvoiceID):
		return "id", true
	case errors.Is(err, domain.ErrInvalidInfoKind):
		return "kind", true
	case errors.Is(err, domain.ErrInvalidPageToken):
		return "page_token", true
	case errors.Is(err, ErrInvalidRequest):
		return "request", true
	default:
		return "", false
	}
}

// classifyErrorForLog feeds the access log with the same type the client
// sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if remoteErr, ok := domain.AsRemoteError(err); ok && remoteErr.Code != 0 {
		code = remoteErr.StoredCode()
	}
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal_error", err.Error()
	}
	return payload.Type, code
}
