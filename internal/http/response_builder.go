package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"facturation/internal/billing"
	"facturation/internal/crm"
	"facturation/internal/log"
	"facturation/internal/services"
	"facturation/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	var validation *services.ValidationError
	var param *paramError
	switch {
	case errors.As(err, &param):
		return http.StatusBadRequest
	case errors.As(err, &validation), errors.Is(err, billing.ErrStepOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrPlanNotFound),
		errors.Is(err, services.ErrMonthNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, crm.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrCRMUnavailable),
		errors.Is(err, crm.ErrUnauthorized),
		errors.Is(err, crm.ErrNotConfigured):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeError logs err and writes the mapped JSON error. A request the
// client already abandoned gets no body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		s.logger.DebugContext(r.Context(), "Request canceled", log.FieldOperation, op)
		return
	}
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	fields := log.NewFields().WithOperation(op).WithError(err).ToSlice()
	msg := err.Error()
	if status >= 500 {
		logger.ErrorContext(r.Context(), "Request failed", fields...)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	} else {
		logger.DebugContext(r.Context(), "Request rejected", fields...)
	}
	writeJSONError(w, status, msg)
}
