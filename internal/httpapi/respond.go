package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

type errorResponse struct {
	RequestID string        `json:"request_id,omitempty"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error:     responseError{Code: code, Message: message},
	})
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrTicketNotFound),
		errors.Is(err, store.ErrTimeEntryNotFound),
		errors.Is(err, store.ErrCustomerNotFound),
		errors.Is(err, store.ErrDeviceNotFound),
		errors.Is(err, store.ErrAppointmentNotFound),
		errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrServiceNotFound),
		errors.Is(err, store.ErrMediaNotFound):
		return http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, store.ErrInvalidState):
		return http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, store.ErrTimerRunning), errors.Is(err, store.ErrTimerNotRunning):
		return http.StatusConflict, "timer_conflict", err.Error()
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", err.Error()
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", err.Error()
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", err.Error()
	}
	return http.StatusInternalServerError, "internal_error", "internal server error"
}

func isValidUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}
