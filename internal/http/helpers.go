package http

import (
	"context"
	"errors"
	"net/http"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/middleware/trace"
)

// errorStatus maps the domain error taxonomy onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case core.IsValidation(err):
		return http.StatusBadRequest
	case core.IsNotFound(err):
		return http.StatusNotFound
	case core.IsIntegrity(err):
		return http.StatusConflict
	case core.IsTransient(err):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON sends v with the given status, logging encoding failures.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := NewJSONResponse().Status(status).Body(v).Write(w); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Failed to encode response", log.FieldError, err)
	}
}

// writeError renders err as an errorResponse. Server-side failures are
// logged with their cause and reported to the client without it.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	status := errorStatus(err)
	body := errorResponse{
		Error:     err.Error(),
		RequestID: trace.GetRequestID(ctx),
	}

	var verr *core.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}

	logger := log.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Failure(ctx, "Request failed", op, err)
		body.Error = http.StatusText(status)
	case status == http.StatusConflict:
		logger.WarnContext(ctx, "Request conflicts with stored data", log.FieldOperation, op, log.FieldError, err)
	default:
		logger.DebugContext(ctx, "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, r, status, body)
}
