package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

type createUserRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Name   *string `json:"name"`
	Role   *string `json:"role"`
	Active *bool   `json:"active"`
}

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "admin") {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := h.store.ListUsers(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		var req createUserRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		req.Name = strings.TrimSpace(req.Name)
		if req.Email == "" || req.Name == "" || req.Password == "" {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "email, name, and password are required")
			return
		}
		if req.Role == "" {
			req.Role = "technician"
		}
		user, err := h.store.CreateUser(r.Context(), req.Email, req.Name, req.Role, req.Password)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, user)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleUserByID(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "admin") {
		return
	}
	parts := splitPath(r.URL.Path, "/api/admin/users/")
	if len(parts) != 1 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "user id must be a UUID")
		return
	}
	userID := parts[0]

	switch r.Method {
	case http.MethodPatch:
		var req updateUserRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		user, err := h.store.UpdateUser(r.Context(), userID, req.Name, req.Role, req.Active)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodDelete:
		if err := h.store.DeleteUser(r.Context(), userID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type deviceRequest struct {
	Manufacturer string `json:"manufacturer"`
	ModelName    string `json:"model_name"`
	ModelNumber  string `json:"model_number"`
	DeviceType   string `json:"device_type"`
	ReleaseYear  int    `json:"release_year"`
	ImageURL     string `json:"image_url"`
	Active       *bool  `json:"active"`
}

type syncDevicesRequest struct {
	Devices []deviceRequest `json:"devices"`
}

func (h *Handler) handleDevices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		devices, err := h.store.ListDevices(r.Context(), r.URL.Query().Get("active") == "true")
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, devices)
	case http.MethodPost:
		if !requireRole(w, r, "admin") {
			return
		}
		var req deviceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		input, ok := deviceInput(req)
		if !ok {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "manufacturer and model_name are required")
			return
		}
		device, err := h.store.CreateDevice(r.Context(), input)
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

func (h *Handler) handleDeviceSubroutes(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path, "/api/admin/devices/")
	if len(parts) == 1 && parts[0] == "sync" {
		h.handleDeviceSync(w, r)
		return
	}
	if len(parts) != 1 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "device id must be a UUID")
		return
	}
	deviceID := parts[0]

	switch r.Method {
	case http.MethodGet:
		device, err := h.store.GetDevice(r.Context(), deviceID)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, device)
	case http.MethodPatch:
		if !requireRole(w, r, "admin") {
			return
		}
		var req deviceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		input, ok := deviceInput(req)
		if !ok {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "manufacturer and model_name are required")
			return
		}
		device, err := h.store.UpdateDevice(r.Context(), deviceID, input, req.Active)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, device)
	case http.MethodDelete:
		if !requireRole(w, r, "admin") {
			return
		}
		if err := h.store.DeleteDevice(r.Context(), deviceID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleDeviceSync upserts a batch of catalog devices keyed by
// manufacturer+model_number, reporting how many were created vs updated.
func (h *Handler) handleDeviceSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !requireRole(w, r, "admin") {
		return
	}
	var req syncDevicesRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if len(req.Devices) == 0 {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "devices must not be empty")
		return
	}
	inputs := make([]store.SyncDeviceInput, 0, len(req.Devices))
	for _, device := range req.Devices {
		input, ok := deviceInput(device)
		if !ok {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "every device needs manufacturer and model_name")
			return
		}
		inputs = append(inputs, input)
	}
	result, err := h.store.SyncDevices(r.Context(), inputs)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func deviceInput(req deviceRequest) (store.SyncDeviceInput, bool) {
	manufacturer := strings.TrimSpace(req.Manufacturer)
	modelName := strings.TrimSpace(req.ModelName)
	if manufacturer == "" || modelName == "" {
		return store.SyncDeviceInput{}, false
	}
	return store.SyncDeviceInput{
		Manufacturer: manufacturer,
		ModelName:    modelName,
		ModelNumber:  strings.TrimSpace(req.ModelNumber),
		DeviceType:   strings.TrimSpace(req.DeviceType),
		ReleaseYear:  req.ReleaseYear,
		ImageURL:     strings.TrimSpace(req.ImageURL),
	}, true
}

type serviceRequest struct {
	Name             *string  `json:"name"`
	Category         *string  `json:"category"`
	BasePrice        *float64 `json:"base_price"`
	EstimatedMinutes *int     `json:"estimated_minutes"`
	Active           *bool    `json:"active"`
}

func (h *Handler) handleServices(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		services, err := h.store.ListServices(r.Context())
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, services)
	case http.MethodPost:
		if !requireRole(w, r, "admin") {
			return
		}
		var req serviceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.Name == nil || strings.TrimSpace(*req.Name) == "" {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		category := ""
		if req.Category != nil {
			category = strings.TrimSpace(*req.Category)
		}
		basePrice := 0.0
		if req.BasePrice != nil {
			basePrice = *req.BasePrice
		}
		estimated := 0
		if req.EstimatedMinutes != nil {
			estimated = *req.EstimatedMinutes
		}
		service, err := h.store.CreateService(r.Context(), strings.TrimSpace(*req.Name), category, basePrice, estimated)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, service)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleServiceByID(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "admin") {
		return
	}
	parts := splitPath(r.URL.Path, "/api/admin/services/")
	if len(parts) != 1 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "service id must be a UUID")
		return
	}
	serviceID := parts[0]

	switch r.Method {
	case http.MethodPatch:
		var req serviceRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		service, err := h.store.UpdateService(r.Context(), serviceID, req.Name, req.Category, req.BasePrice, req.EstimatedMinutes, req.Active)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, service)
	case http.MethodDelete:
		if err := h.store.DeleteService(r.Context(), serviceID); err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type createMediaRequest struct {
	FileName  string `json:"file_name"`
	URL       string `json:"url"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

func (h *Handler) handleMedia(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		assets, err := h.store.ListMedia(r.Context(), queryInt(r, "limit"))
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, assets)
	case http.MethodPost:
		if !requireRole(w, r, "admin") {
			return
		}
		var req createMediaRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.FileName = strings.TrimSpace(req.FileName)
		req.URL = strings.TrimSpace(req.URL)
		if req.FileName == "" || req.URL == "" {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "file_name and url are required")
			return
		}
		asset, err := h.store.CreateMedia(r.Context(), req.FileName, req.URL, strings.TrimSpace(req.MimeType), req.SizeBytes)
		if err != nil {
			status, code, msg := mapError(err)
			writeError(w, "", status, code, msg)
			return
		}
		writeJSON(w, http.StatusOK, asset)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleMediaByID(w http.ResponseWriter, r *http.Request) {
	if !requireRole(w, r, "admin") {
		return
	}
	parts := splitPath(r.URL.Path, "/api/admin/media/")
	if len(parts) != 1 || !isValidUUID(parts[0]) {
		writeError(w, "", http.StatusBadRequest, "invalid_request", "asset id must be a UUID")
		return
	}
	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := h.store.DeleteMedia(r.Context(), parts[0]); err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
