package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/floradistro/pos-checkout/internal/domain"
	"github.com/floradistro/pos-checkout/pkg/logger"
	"github.com/floradistro/pos-checkout/pkg/validator"
)

// Response is the standard JSON response envelope used by the register API.
type Response struct {
	Data  any            `json:"data,omitempty"`
	Error *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse represents an error in the standard response format.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Retryable bool              `json:"retryable"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
// If encoding fails, the error is logged but headers are already sent so nothing can be done.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// StatusClientClosedRequest is the nginx convention for requests the client
// abandoned. Used when a commit was cancelled from the register.
const StatusClientClosedRequest = 499

// kindStatus maps each commit error kind to an HTTP status code.
var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:             http.StatusBadRequest,
	domain.KindAlreadyInProgress:      http.StatusConflict,
	domain.KindAuthenticationRequired: http.StatusUnauthorized,
	domain.KindTimeout:                http.StatusGatewayTimeout,
	domain.KindCancelled:              StatusClientClosedRequest,
	domain.KindNetwork:                http.StatusBadGateway,
	domain.KindDeclined:               http.StatusUnprocessableEntity,
	domain.KindInvalidTransition:      http.StatusInternalServerError,
}

// kindCode maps each commit error kind to a stable wire code. The register UI
// switches on these, so they must not change between releases.
var kindCode = map[domain.ErrorKind]string{
	domain.KindValidation:             "VALIDATION_ERROR",
	domain.KindAlreadyInProgress:      "COMMIT_IN_PROGRESS",
	domain.KindAuthenticationRequired: "AUTHENTICATION_REQUIRED",
	domain.KindTimeout:                "COMMIT_TIMEOUT",
	domain.KindCancelled:              "COMMIT_CANCELLED",
	domain.KindNetwork:                "NETWORK_ERROR",
	domain.KindDeclined:               "PAYMENT_DECLINED",
	domain.KindInvalidTransition:      "INVALID_TRANSITION",
}

// WriteError writes a standardized error response based on the error type.
// Commit errors carry their own kind and map to a stable status and code;
// anything else becomes a logged 500. It prefers the request-scoped logger
// from context (set by the RequestLogger middleware) over the fallback logger.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	// Prefer the request-scoped logger (enriched with correlation_id,
	// trace_id, span_id) if the RequestLogger middleware has been mounted.
	l := logger.FromContext(r.Context())
	if l == slog.Default() {
		l = fallback
	}

	requestID := logger.CorrelationIDFromContext(r.Context())

	var commitErr *domain.CommitError
	if errors.As(err, &commitErr) {
		status, ok := kindStatus[commitErr.Kind]
		if !ok {
			status = http.StatusBadGateway
		}
		code, ok := kindCode[commitErr.Kind]
		if !ok {
			code = "NETWORK_ERROR"
		}
		WriteJSON(w, status, Response{
			Error: &ErrorResponse{
				Code:      code,
				Message:   commitErr.Message,
				Retryable: commitErr.Kind.Retryable(),
				RequestID: requestID,
			},
		})
		return
	}

	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	WriteJSON(w, http.StatusInternalServerError, Response{
		Error: &ErrorResponse{Code: "INTERNAL_ERROR", Message: "an internal error occurred", RequestID: requestID},
	})
}

// WriteValidationError writes a standardized validation error response.
// It handles ValidationError from the validator package and returns field-level errors.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "request validation failed",
				Fields:  valErr.Fields(),
			},
		})
		return
	}

	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()},
	})
}
