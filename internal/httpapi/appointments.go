package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

type createAppointmentRequest struct {
	RequestID       string   `json:"request_id"`
	CustomerID      string   `json:"customer_id"`
	DeviceID        string   `json:"device_id"`
	ScheduledDate   string   `json:"scheduled_date"`
	ScheduledTime   string   `json:"scheduled_time"`
	DurationMinutes int      `json:"duration_minutes"`
	Issues          []string `json:"issues"`
	Notes           string   `json:"notes"`
}

type updateAppointmentRequest struct {
	Status          *string `json:"status"`
	ScheduledDate   *string `json:"scheduled_date"`
	ScheduledTime   *string `json:"scheduled_time"`
	DurationMinutes *int    `json:"duration_minutes"`
	Notes           *string `json:"notes"`
}

func (h *Handler) handleAppointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.AppointmentFilter{
			Status:        strings.TrimSpace(r.URL.Query().Get("status")),
			CustomerID:    strings.TrimSpace(r.URL.Query().Get("customer_id")),
			ScheduledDate: strings.TrimSpace(r.URL.Query().Get("scheduled_date")),
			Limit:         queryInt(r, "limit"),
		}
		appointments, err := h.store.ListAppointments(r.Context(), filter)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, appointments)
	case http.MethodPost:
		var req createAppointmentRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.RequestID = strings.TrimSpace(req.RequestID)
		req.CustomerID = strings.TrimSpace(req.CustomerID)
		if req.RequestID == "" || req.CustomerID == "" || req.ScheduledDate == "" || req.ScheduledTime == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id, customer_id, scheduled_date, and scheduled_time are required")
			return
		}
		if !isValidUUID(req.RequestID) || !isValidUUID(req.CustomerID) {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and customer_id must be UUIDs")
			return
		}
		if _, err := time.Parse("2006-01-02", req.ScheduledDate); err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "scheduled_date must be YYYY-MM-DD")
			return
		}
		if _, err := time.Parse("15:04", req.ScheduledTime); err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "scheduled_time must be HH:MM")
			return
		}
		if req.DurationMinutes <= 0 {
			req.DurationMinutes = 30
		}
		appointment, _, err := h.store.CreateAppointment(r.Context(), store.CreateAppointmentInput{
			RequestID:       req.RequestID,
			CustomerID:      req.CustomerID,
			DeviceID:        strings.TrimSpace(req.DeviceID),
			ScheduledDate:   req.ScheduledDate,
			ScheduledTime:   req.ScheduledTime,
			DurationMinutes: req.DurationMinutes,
			Issues:          req.Issues,
			Notes:           strings.TrimSpace(req.Notes),
			CreatedAt:       time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, req.RequestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, appointment)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAppointmentSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/appointments/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "appointment id must be a UUID")
		return
	}
	appointmentID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleAppointmentByID(w, r, appointmentID)
	case len(parts) == 2 && parts[1] == "checkin":
		h.handleAppointmentCheckIn(w, r, appointmentID)
	case len(parts) == 2 && parts[1] == "convert":
		h.handleAppointmentConvert(w, r, appointmentID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAppointmentByID(w http.ResponseWriter, r *http.Request, appointmentID string) {
	switch r.Method {
	case http.MethodGet:
		appointment, err := h.store.GetAppointment(r.Context(), appointmentID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, appointment)
	case http.MethodPatch:
		var req updateAppointmentRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.Status != nil && !validAppointmentStatus(*req.Status) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "unknown appointment status")
			return
		}
		if req.ScheduledDate != nil {
			if _, err := time.Parse("2006-01-02", *req.ScheduledDate); err != nil {
				writeError(w, "", http.StatusBadRequest, "invalid_request", "scheduled_date must be YYYY-MM-DD")
				return
			}
		}
		if req.ScheduledTime != nil {
			if _, err := time.Parse("15:04", *req.ScheduledTime); err != nil {
				writeError(w, "", http.StatusBadRequest, "invalid_request", "scheduled_time must be HH:MM")
				return
			}
		}
		appointment, err := h.store.UpdateAppointment(r.Context(), store.UpdateAppointmentInput{
			AppointmentID:   appointmentID,
			Status:          req.Status,
			ScheduledDate:   req.ScheduledDate,
			ScheduledTime:   req.ScheduledTime,
			DurationMinutes: req.DurationMinutes,
			Notes:           req.Notes,
			UpdatedAt:       time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, appointment)
	case http.MethodDelete:
		if !requireRole(w, r, "admin", "manager") {
			return
		}
		if err := h.store.DeleteAppointment(r.Context(), appointmentID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleAppointmentCheckIn(w http.ResponseWriter, r *http.Request, appointmentID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	appointment, err := h.store.CheckInAppointment(r.Context(), appointmentID, time.Now().UTC())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

func (h *Handler) handleAppointmentConvert(w http.ResponseWriter, r *http.Request, appointmentID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	appointment, ticket, err := h.store.ConvertAppointment(r.Context(), appointmentID, time.Now().UTC())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"appointment": appointment,
		"ticket":      ticket,
	})
}

func validAppointmentStatus(status string) bool {
	for _, s := range models.AppointmentStatuses {
		if s == status {
			return true
		}
	}
	return false
}
