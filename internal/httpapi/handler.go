package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

type Handler struct {
	store store.Store
}

func NewHandler(store store.Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/tickets", h.handleTickets)
	mux.HandleFunc("/api/tickets/", h.handleTicketSubroutes)
	mux.HandleFunc("/api/time-entries/", h.handleTimeEntryByID)
	mux.HandleFunc("/api/customers", h.handleCustomers)
	mux.HandleFunc("/api/customers/", h.handleCustomerSubroutes)
	mux.HandleFunc("/api/customer-devices/", h.handleCustomerDeviceByID)
	mux.HandleFunc("/api/appointments", h.handleAppointments)
	mux.HandleFunc("/api/appointments/", h.handleAppointmentSubroutes)
	mux.HandleFunc("/api/admin/users", h.handleUsers)
	mux.HandleFunc("/api/admin/users/", h.handleUserByID)
	mux.HandleFunc("/api/admin/devices", h.handleDevices)
	mux.HandleFunc("/api/admin/devices/", h.handleDeviceSubroutes)
	mux.HandleFunc("/api/admin/services", h.handleServices)
	mux.HandleFunc("/api/admin/services/", h.handleServiceByID)
	mux.HandleFunc("/api/admin/media", h.handleMedia)
	mux.HandleFunc("/api/admin/media/", h.handleMediaByID)
	mux.HandleFunc("/api/dashboard/stats", h.handleDashboardStats)
	mux.HandleFunc("/api/events", h.handleEvents)
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}
	session, err := h.store.Login(r.Context(), req.Email, req.Password, time.Now().UTC().Add(24*time.Hour))
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": session.SessionID,
		"user_id":    session.UserID,
		"role":       session.Role,
		"expires_at": session.ExpiresAt,
	})
}

type createTicketRequest struct {
	RequestID   string `json:"request_id"`
	CustomerID  string `json:"customer_id"`
	DeviceID    string `json:"device_id"`
	Description string `json:"description"`
}

type updateTicketRequest struct {
	Status      *string `json:"status"`
	Description *string `json:"description"`
	DeviceID    *string `json:"device_id"`
}

func (h *Handler) handleTickets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		filter := store.TicketFilter{
			Status:     strings.TrimSpace(r.URL.Query().Get("status")),
			CustomerID: strings.TrimSpace(r.URL.Query().Get("customer_id")),
			Limit:      queryInt(r, "limit"),
		}
		if filter.CustomerID != "" && !isValidUUID(filter.CustomerID) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "customer_id must be a UUID")
			return
		}
		tickets, err := h.store.ListTickets(r.Context(), filter)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, tickets)
	case http.MethodPost:
		var req createTicketRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.RequestID = strings.TrimSpace(req.RequestID)
		req.CustomerID = strings.TrimSpace(req.CustomerID)
		req.DeviceID = strings.TrimSpace(req.DeviceID)
		if req.RequestID == "" || req.CustomerID == "" {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and customer_id are required")
			return
		}
		if !isValidUUID(req.RequestID) || !isValidUUID(req.CustomerID) {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "request_id and customer_id must be UUIDs")
			return
		}
		if req.DeviceID != "" && !isValidUUID(req.DeviceID) {
			writeError(w, req.RequestID, http.StatusBadRequest, "invalid_request", "device_id must be a UUID when provided")
			return
		}
		ticket, _, err := h.store.CreateTicket(r.Context(), store.CreateTicketInput{
			RequestID:   req.RequestID,
			CustomerID:  req.CustomerID,
			DeviceID:    req.DeviceID,
			Description: strings.TrimSpace(req.Description),
			CreatedAt:   time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, req.RequestID, status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleTicketSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/tickets/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "ticket id must be a UUID")
		return
	}
	ticketID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleTicketByID(w, r, ticketID)
	case len(parts) == 2 && parts[1] == "entries":
		h.handleTicketEntries(w, r, ticketID)
	case len(parts) == 3 && parts[1] == "timer" && parts[2] == "start":
		h.handleTimerStart(w, r, ticketID)
	case len(parts) == 3 && parts[1] == "timer" && parts[2] == "stop":
		h.handleTimerStop(w, r, ticketID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleTicketByID(w http.ResponseWriter, r *http.Request, ticketID string) {
	switch r.Method {
	case http.MethodGet:
		ticket, err := h.store.GetTicket(r.Context(), ticketID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case http.MethodPatch:
		var req updateTicketRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.Status != nil && !validTicketStatus(*req.Status) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "unknown ticket status")
			return
		}
		ticket, err := h.store.UpdateTicket(r.Context(), store.UpdateTicketInput{
			TicketID:    ticketID,
			Status:      req.Status,
			Description: req.Description,
			DeviceID:    req.DeviceID,
			UpdatedAt:   time.Now().UTC(),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, ticket)
	case http.MethodDelete:
		if !requireRole(w, r, "admin", "manager") {
			return
		}
		if err := h.store.DeleteTicket(r.Context(), ticketID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createTimeEntryRequest struct {
	UserID          string `json:"user_id"`
	DurationMinutes int    `json:"duration_minutes"`
	Description     string `json:"description"`
}

func (h *Handler) handleTicketEntries(w http.ResponseWriter, r *http.Request, ticketID string) {
	switch r.Method {
	case http.MethodGet:
		entries, err := h.store.ListTimeEntries(r.Context(), ticketID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	case http.MethodPost:
		var req createTimeEntryRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.DurationMinutes <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "duration_minutes must be positive")
			return
		}
		now := time.Now().UTC()
		entry, err := h.store.CreateTimeEntry(r.Context(), store.CreateTimeEntryInput{
			TicketID:        ticketID,
			UserID:          strings.TrimSpace(req.UserID),
			DurationMinutes: req.DurationMinutes,
			Description:     strings.TrimSpace(req.Description),
			StartedAt:       now.Add(-time.Duration(req.DurationMinutes) * time.Minute),
			EndedAt:         now,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type timerStopRequest struct {
	Description string `json:"description"`
}

func (h *Handler) handleTimerStart(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	session, _ := authFromContext(r.Context())
	ticket, err := h.store.StartTimer(r.Context(), ticketID, session.UserID, time.Now().UTC())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

func (h *Handler) handleTimerStop(w http.ResponseWriter, r *http.Request, ticketID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req timerStopRequest
	if r.Body != nil && r.ContentLength != 0 {
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
	}
	session, _ := authFromContext(r.Context())
	ticket, entry, err := h.store.StopTimer(r.Context(), ticketID, session.UserID, strings.TrimSpace(req.Description), time.Now().UTC())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket": ticket,
		"entry":  entry,
	})
}

type updateTimeEntryRequest struct {
	DurationMinutes *int    `json:"duration_minutes"`
	Description     *string `json:"description"`
}

func (h *Handler) handleTimeEntryByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/time-entries/")
	if len(parts) != 1 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "entry id must be a UUID")
		return
	}
	entryID := parts[0]

	switch r.Method {
	case http.MethodPatch:
		var req updateTimeEntryRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "duration_minutes must be positive")
			return
		}
		entry, err := h.store.UpdateTimeEntry(r.Context(), store.UpdateTimeEntryInput{
			EntryID:         entryID,
			DurationMinutes: req.DurationMinutes,
			Description:     req.Description,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	case http.MethodDelete:
		if err := h.store.DeleteTimeEntry(r.Context(), entryID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func validTicketStatus(status string) bool {
	for _, s := range models.TicketStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func splitPath(path, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(r *http.Request, key string) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
