package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

type createCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Notes string `json:"notes"`
}

type updateCustomerRequest struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
	Notes *string `json:"notes"`
}

type createCustomerDeviceRequest struct {
	DeviceID     string `json:"device_id"`
	SerialNumber string `json:"serial_number"`
	Color        string `json:"color"`
	StorageSize  string `json:"storage_size"`
	Condition    string `json:"condition"`
	Nickname     string `json:"nickname"`
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		customers, err := h.store.ListCustomers(r.Context(), strings.TrimSpace(r.URL.Query().Get("search")), queryInt(r, "limit"))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, customers)
	case http.MethodPost:
		var req createCustomerRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		customer, err := h.store.CreateCustomer(r.Context(), store.CreateCustomerInput{
			Name:  req.Name,
			Email: strings.TrimSpace(req.Email),
			Phone: strings.TrimSpace(req.Phone),
			Notes: strings.TrimSpace(req.Notes),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCustomerSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/customers/")
	if len(parts) == 0 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "customer id must be a UUID")
		return
	}
	customerID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleCustomerByID(w, r, customerID)
	case len(parts) == 2 && parts[1] == "devices":
		h.handleCustomerDevices(w, r, customerID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleCustomerByID(w http.ResponseWriter, r *http.Request, customerID string) {
	switch r.Method {
	case http.MethodGet:
		customer, err := h.store.GetCustomer(r.Context(), customerID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodPatch:
		var req updateCustomerRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		customer, err := h.store.UpdateCustomer(r.Context(), store.UpdateCustomerInput{
			CustomerID: customerID,
			Name:       req.Name,
			Email:      req.Email,
			Phone:      req.Phone,
			Notes:      req.Notes,
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, customer)
	case http.MethodDelete:
		if !requireRole(w, r, "admin", "manager") {
			return
		}
		if err := h.store.DeleteCustomer(r.Context(), customerID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCustomerDevices(w http.ResponseWriter, r *http.Request, customerID string) {
	switch r.Method {
	case http.MethodGet:
		devices, err := h.store.ListCustomerDevices(r.Context(), customerID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, devices)
	case http.MethodPost:
		var req createCustomerDeviceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.DeviceID = strings.TrimSpace(req.DeviceID)
		if req.DeviceID == "" || !isValidUUID(req.DeviceID) {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "device_id must be a UUID")
			return
		}
		device, err := h.store.CreateCustomerDevice(r.Context(), store.CreateCustomerDeviceInput{
			CustomerID:   customerID,
			DeviceID:     req.DeviceID,
			SerialNumber: strings.TrimSpace(req.SerialNumber),
			Color:        strings.TrimSpace(req.Color),
			StorageSize:  strings.TrimSpace(req.StorageSize),
			Condition:    strings.TrimSpace(req.Condition),
			Nickname:     strings.TrimSpace(req.Nickname),
		})
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, device)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleCustomerDeviceByID(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/customer-devices/")
	if len(parts) != 1 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "customer device id must be a UUID")
		return
	}
	customerDeviceID := parts[0]

	switch r.Method {
	case http.MethodGet:
		device, err := h.store.GetCustomerDevice(r.Context(), customerDeviceID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, device)
	case http.MethodDelete:
		if err := h.store.DeleteCustomerDevice(r.Context(), customerDeviceID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
