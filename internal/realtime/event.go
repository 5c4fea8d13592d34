package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/cache"
)

const (
	EventInsert = "insert"
	EventUpdate = "update"
	EventDelete = "delete"
)

type Topic string

const (
	TopicTickets      Topic = "tickets"
	TopicCustomers    Topic = "customers"
	TopicAppointments Topic = "appointments"
	TopicAdmin        Topic = "admin"
)

// topicTables is configuration, not logic: which backing tables each
// subscription topic covers.
var topicTables = map[Topic][]string{
	TopicTickets:      {"repair_tickets", "time_entries"},
	TopicCustomers:    {"customers", "customer_devices"},
	TopicAppointments: {"appointments"},
	TopicAdmin:        {"users", "devices", "services", "media_library"},
}

func TopicForTable(table string) (Topic, bool) {
	for topic, tables := range topicTables {
		for _, t := range tables {
			if t == table {
				return topic, true
			}
		}
	}
	return "", false
}

func TablesForTopic(topic Topic) []string {
	return topicTables[topic]
}

// IDField names the identity column of a table's rows.
func IDField(table string) string {
	switch table {
	case "repair_tickets":
		return "ticket_id"
	case "time_entries":
		return "entry_id"
	case "customers":
		return "customer_id"
	case "customer_devices":
		return "customer_device_id"
	case "appointments":
		return "appointment_id"
	case "users":
		return "user_id"
	case "devices":
		return "device_id"
	case "services":
		return "service_id"
	case "media_library":
		return "asset_id"
	}
	return "id"
}

type ChangeEvent struct {
	Table     string
	Type      string
	New       cache.Row
	Old       cache.Row
	CreatedAt time.Time
}

func (e ChangeEvent) RowID() string {
	row := e.New
	if e.Type == EventDelete {
		row = e.Old
	}
	if row == nil {
		return ""
	}
	value, ok := row[IDField(e.Table)]
	if !ok {
		return ""
	}
	return fmt.Sprint(value)
}

// Envelope is the wire form of a change event as broadcast by the server.
type Envelope struct {
	Table     string          `json:"table"`
	EventType string          `json:"event_type"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (env Envelope) ChangeEvent() (ChangeEvent, error) {
	// Outbox rows carry SQL-style uppercase event types.
	ev := ChangeEvent{Table: env.Table, Type: strings.ToLower(env.EventType), CreatedAt: env.CreatedAt}
	if len(env.New) > 0 {
		if err := json.Unmarshal(env.New, &ev.New); err != nil {
			return ChangeEvent{}, err
		}
	}
	if len(env.Old) > 0 {
		if err := json.Unmarshal(env.Old, &ev.Old); err != nil {
			return ChangeEvent{}, err
		}
	}
	return ev, nil
}
