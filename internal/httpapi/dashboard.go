package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

func (h *Handler) handleDashboardStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	stats, err := h.store.GetDashboardStats(r.Context())
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleEvents exposes the change outbox for polling consumers that cannot
// hold a realtime connection. Cursor is "after" (RFC3339) plus "after_id"
// to break ties within the same timestamp.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var offset store.OutboxOffset
	if after := strings.TrimSpace(r.URL.Query().Get("after")); after != "" {
		parsed, err := time.Parse(time.RFC3339, after)
		if err != nil {
			writeError(w, "", http.StatusBadRequest, "invalid_request", "after must be RFC3339")
			return
		}
		offset.LastEventTime = parsed
		offset.LastEventID = strings.TrimSpace(r.URL.Query().Get("after_id"))
	}
	limit := queryInt(r, "limit")
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := h.store.ListOutboxEvents(r.Context(), offset, limit)
	if err != nil {
		status, code, msg := mapError(err)
		writeError(w, "", status, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
