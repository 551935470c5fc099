package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/utafrali/proflens/pkg/errors"
	"github.com/utafrali/proflens/pkg/logger"
	"github.com/utafrali/proflens/pkg/validator"
)

// Response is the JSON envelope returned by every endpoint.
type Response struct {
	Data    any            `json:"data,omitempty"`
	Message string         `json:"message,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// ErrorResponse is the error half of the envelope.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing meaningful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the error envelope. AppErrors are rendered as-is;
// anything unrecognised becomes a generic 500 and is logged with full detail
// through the request-scoped logger when one is available.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		l = fallback
	}
	requestID := logger.CorrelationIDFromContext(r.Context())

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		if appErr.Status >= http.StatusInternalServerError {
			logInternal(l, r, err)
		}
		WriteJSON(w, appErr.Status, Response{
			Error: &ErrorResponse{
				Code:      appErr.Code,
				Message:   appErr.Message,
				Fields:    appErr.Fields,
				RequestID: requestID,
			},
		})
		return
	}

	internal := apperrors.Internal(err)
	status := apperrors.HTTPStatus(err)
	code, message := internal.Code, internal.Message

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		code, message = "NOT_FOUND", "resource not found"
	case errors.Is(err, apperrors.ErrAlreadyExists):
		code, message = "ALREADY_EXISTS", "resource already exists"
	case errors.Is(err, apperrors.ErrConflict):
		code, message = "CONFLICT", "request conflicts with current state"
	case errors.Is(err, apperrors.ErrForbidden):
		code, message = "FORBIDDEN", "you are not allowed to perform this action"
	case errors.Is(err, apperrors.ErrUnauthorized):
		code, message = "UNAUTHORIZED", "authentication required"
	case errors.Is(err, apperrors.ErrInvalidInput):
		code, message = "INVALID_INPUT", "invalid input"
	case errors.Is(err, apperrors.ErrServiceUnavail):
		code, message = "SERVICE_UNAVAILABLE", "service temporarily unavailable"
	default:
		status = internal.Status
	}

	if status >= http.StatusInternalServerError {
		logInternal(l, r, err)
	}

	WriteJSON(w, status, Response{
		Error: &ErrorResponse{Code: code, Message: message, RequestID: requestID},
	})
}

func logInternal(l *slog.Logger, r *http.Request, err error) {
	l.ErrorContext(r.Context(), "internal error",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}

// WriteValidationError renders a request body failure. Validator failures
// become VALIDATION_ERROR with field-level messages; a value of the wrong JSON
// type is reported against its field. Anything else becomes INVALID_INPUT with
// a fixed message, and the raw error is only logged.
func WriteValidationError(w http.ResponseWriter, r *http.Request, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeFieldErrors(w, valErr.Fields())
		return
	}

	logger.FromContext(r.Context()).InfoContext(r.Context(), "rejected request body",
		slog.String("error", err.Error()),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	var decErr *validator.DecodeError
	if errors.As(err, &decErr) && decErr.Field != "" {
		writeFieldErrors(w, map[string]string{decErr.Field: "has the wrong type"})
		return
	}

	message := "request body is not valid JSON"
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		message = "request body is too large"
	}
	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{
			Code:      "INVALID_INPUT",
			Message:   message,
			RequestID: logger.CorrelationIDFromContext(r.Context()),
		},
	})
}

func writeFieldErrors(w http.ResponseWriter, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, Response{
		Error: &ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  fields,
		},
	})
}

// ParseUUID validates a path parameter as a UUID. On failure it writes a 400
// INVALID_PARAMETER response and returns false.
func ParseUUID(w http.ResponseWriter, param string) (string, bool) {
	id, err := uuid.Parse(param)
	if err != nil {
		WriteJSON(w, http.StatusBadRequest, Response{
			Error: &ErrorResponse{
				Code:    "INVALID_PARAMETER",
				Message: "invalid id: " + param,
			},
		})
		return "", false
	}
	return id.String(), true
}
