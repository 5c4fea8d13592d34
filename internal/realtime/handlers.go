package realtime

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
)

func (m *Manager) handleTicket(ev ChangeEvent) {
	switch ev.Type {
	case EventInsert:
		row := m.projection(ev)
		if !m.cache.PrependIfAbsent("repair_tickets", row) {
			return
		}
		m.cache.AdjustStat("tickets_total", 1)
		if status := rowString(row, "status"); status != "" {
			m.cache.AdjustStat("tickets_"+status, 1)
		}
	case EventUpdate:
		oldStatus := rowString(ev.Old, "status")
		newStatus := rowString(ev.New, "status")
		if oldStatus != "" && newStatus != "" && oldStatus != newStatus {
			m.cache.MoveStat("tickets_"+oldStatus, "tickets_"+newStatus)
		}
		id := ev.RowID()
		patch := ev.New
		m.debounce.Do("repair_tickets:"+id, func() {
			m.cache.MergeRow("repair_tickets", id, patch)
		})
	case EventDelete:
		id := ev.RowID()
		m.cache.RemoveRow("repair_tickets", id)
		m.cache.AdjustStat("tickets_total", -1)
		if status := rowString(ev.Old, "status"); status != "" {
			m.cache.AdjustStat("tickets_"+status, -1)
		}
	}
}

func (m *Manager) handleTimeEntry(ev ChangeEvent) {
	switch ev.Type {
	case EventInsert:
		row := ev.New
		first := m.cache.PrependIfAbsent("time_entries", row)
		ticketID := rowString(row, "ticket_id")
		entryID := rowString(row, "entry_id")
		// Entries usually live embedded in the parent ticket rather than in a
		// list of their own, so a replayed insert is detected there too. The
		// aggregate delta must only ever land on the first sighting.
		if !first || m.entryEmbedded(ticketID, entryID) {
			return
		}
		duration := rowInt(row, "duration_minutes")
		m.patchTicketMinutes(ticketID, duration, func(entries []any) []any {
			for _, item := range entries {
				if entry, ok := item.(map[string]any); ok && rowString(entry, "entry_id") == entryID {
					return entries
				}
			}
			return append(entries, map[string]any(row))
		})
	case EventUpdate:
		// The aggregate delta is applied per event so consecutive edits sum
		// correctly even though the row merge itself is debounced.
		delta := rowInt(ev.New, "duration_minutes") - rowInt(ev.Old, "duration_minutes")
		id := ev.RowID()
		patch := ev.New
		m.patchTicketMinutes(rowString(ev.New, "ticket_id"), delta, func(entries []any) []any {
			for _, item := range entries {
				if entry, ok := item.(map[string]any); ok && rowString(entry, "entry_id") == id {
					for k, v := range patch {
						entry[k] = v
					}
				}
			}
			return entries
		})
		m.debounce.Do("time_entries:"+id, func() {
			m.cache.MergeRow("time_entries", id, patch)
		})
	case EventDelete:
		id := ev.RowID()
		m.cache.RemoveRow("time_entries", id)
		duration := rowInt(ev.Old, "duration_minutes")
		m.patchTicketMinutes(rowString(ev.Old, "ticket_id"), -duration, func(entries []any) []any {
			next := entries[:0]
			for _, item := range entries {
				if entry, ok := item.(map[string]any); ok && rowString(entry, "entry_id") == id {
					continue
				}
				next = append(next, item)
			}
			return next
		})
	}
}

// entryEmbedded reports whether the ticket detail already carries the entry in
// its embedded array.
func (m *Manager) entryEmbedded(ticketID, entryID string) bool {
	if ticketID == "" || entryID == "" {
		return false
	}
	detail, ok := m.cache.Detail("repair_tickets", ticketID)
	if !ok {
		return false
	}
	entries, ok := detail["time_entries"].([]any)
	if !ok {
		return false
	}
	for _, item := range entries {
		if entry, ok := item.(map[string]any); ok && rowString(entry, "entry_id") == entryID {
			return true
		}
	}
	return false
}

// patchTicketMinutes adjusts the parent ticket's minute aggregates by delta
// and rewrites its embedded entries array in the same serialized cache pass.
// Totals are floored at zero.
func (m *Manager) patchTicketMinutes(ticketID string, delta int, entries func([]any) []any) {
	if ticketID == "" {
		return
	}
	m.cache.PatchRow("repair_tickets", ticketID, func(row cache.Row) {
		for _, field := range []string{"timer_total_minutes", "total_time_minutes"} {
			next := rowInt(row, field) + delta
			if next < 0 {
				next = 0
			}
			row[field] = next
		}
		if entries == nil {
			return
		}
		if current, ok := row["time_entries"].([]any); ok {
			row["time_entries"] = entries(current)
		}
	})
}

func (m *Manager) handleCustomer(ev ChangeEvent) {
	switch ev.Type {
	case EventInsert:
		row := m.projection(ev)
		if !m.cache.PrependIfAbsent("customers", row) {
			return
		}
		m.cache.AdjustStat("customers_total", 1)
	case EventUpdate:
		id := ev.RowID()
		patch := ev.New
		m.debounce.Do("customers:"+id, func() {
			m.cache.MergeRow("customers", id, patch)
		})
	case EventDelete:
		m.cache.RemoveRow("customers", ev.RowID())
		m.cache.AdjustStat("customers_total", -1)
	}
}

func (m *Manager) handleCustomerDevice(ev ChangeEvent) {
	switch ev.Type {
	case EventInsert:
		row := m.projection(ev)
		if !m.cache.PrependIfAbsent("customer_devices", row) {
			return
		}
		m.patchDeviceCount(rowString(row, "customer_id"), 1)
	case EventUpdate:
		id := ev.RowID()
		patch := ev.New
		m.debounce.Do("customer_devices:"+id, func() {
			m.cache.MergeRow("customer_devices", id, patch)
		})
	case EventDelete:
		m.cache.RemoveRow("customer_devices", ev.RowID())
		m.patchDeviceCount(rowString(ev.Old, "customer_id"), -1)
	}
}

func (m *Manager) patchDeviceCount(customerID string, delta int) {
	if customerID == "" {
		return
	}
	m.cache.PatchRow("customers", customerID, func(row cache.Row) {
		next := rowInt(row, "device_count") + delta
		if next < 0 {
			next = 0
		}
		row["device_count"] = next
	})
}

func (m *Manager) handleAppointment(ev ChangeEvent) {
	switch ev.Type {
	case EventInsert:
		row := m.projection(ev)
		if !m.cache.PrependIfAbsent("appointments", row) {
			return
		}
		m.cache.AdjustStat("appointments_total", 1)
		if status := rowString(row, "status"); status != "" {
			m.cache.AdjustStat("appointments_"+status, 1)
		}
	case EventUpdate:
		oldStatus := rowString(ev.Old, "status")
		newStatus := rowString(ev.New, "status")
		if oldStatus != "" && newStatus != "" && oldStatus != newStatus {
			m.cache.MoveStat("appointments_"+oldStatus, "appointments_"+newStatus)
		}
		// Merge, never replace: the authoritative row does not carry the
		// joined display strings fetched on insert.
		id := ev.RowID()
		patch := ev.New
		m.debounce.Do("appointments:"+id, func() {
			m.cache.MergeRow("appointments", id, patch)
		})
	case EventDelete:
		id := ev.RowID()
		m.cache.RemoveRow("appointments", id)
		m.cache.AdjustStat("appointments_total", -1)
		if status := rowString(ev.Old, "status"); status != "" {
			m.cache.AdjustStat("appointments_"+status, -1)
		}
	}
}

func (m *Manager) handleCatalog(ev ChangeEvent) {
	switch ev.Type {
	case EventInsert:
		m.cache.PrependIfAbsent(ev.Table, ev.New)
	case EventUpdate:
		id := ev.RowID()
		patch := ev.New
		table := ev.Table
		m.debounce.Do(table+":"+id, func() {
			m.cache.MergeRow(table, id, patch)
		})
	case EventDelete:
		m.cache.RemoveRow(ev.Table, ev.RowID())
	}
}

func (m *Manager) handleCatalogDevice(ev ChangeEvent) {
	if ev.Type == EventInsert {
		if m.cache.PrependIfAbsent(ev.Table, ev.New) {
			m.cache.AdjustStat("devices_total", 1)
		}
		return
	}
	m.handleCatalog(ev)
	if ev.Type == EventDelete {
		m.cache.AdjustStat("devices_total", -1)
	}
}

func rowString(row cache.Row, field string) string {
	if row == nil {
		return ""
	}
	value, ok := row[field]
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}

func rowInt(row cache.Row, field string) int {
	if row == nil {
		return 0
	}
	switch value := row[field].(type) {
	case int:
		return value
	case int64:
		return int(value)
	case float64:
		return int(value)
	case json.Number:
		n, _ := value.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(value)
		return n
	}
	return 0
}
