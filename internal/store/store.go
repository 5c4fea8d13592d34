package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
)

type CreateTicketInput struct {
	RequestID   string
	CustomerID  string
	DeviceID    string
	Description string
	CreatedAt   time.Time
}

type UpdateTicketInput struct {
	TicketID    string
	Status      *string
	Description *string
	DeviceID    *string
	UpdatedAt   time.Time
}

type CreateTimeEntryInput struct {
	TicketID        string
	UserID          string
	DurationMinutes int
	Description     string
	StartedAt       time.Time
	EndedAt         time.Time
}

type UpdateTimeEntryInput struct {
	EntryID         string
	DurationMinutes *int
	Description     *string
}

type CreateCustomerInput struct {
	Name  string
	Email string
	Phone string
	Notes string
}

type UpdateCustomerInput struct {
	CustomerID string
	Name       *string
	Email      *string
	Phone      *string
	Notes      *string
}

type CreateCustomerDeviceInput struct {
	CustomerID   string
	DeviceID     string
	SerialNumber string
	Color        string
	StorageSize  string
	Condition    string
	Nickname     string
}

type CreateAppointmentInput struct {
	RequestID       string
	CustomerID      string
	DeviceID        string
	ScheduledDate   string
	ScheduledTime   string
	DurationMinutes int
	Issues          []string
	Notes           string
	CreatedAt       time.Time
}

type UpdateAppointmentInput struct {
	AppointmentID   string
	Status          *string
	ScheduledDate   *string
	ScheduledTime   *string
	DurationMinutes *int
	Notes           *string
	UpdatedAt       time.Time
}

type SyncDeviceInput struct {
	Manufacturer string
	ModelName    string
	ModelNumber  string
	DeviceType   string
	ReleaseYear  int
	ImageURL     string
}

type SyncDevicesResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

type TicketFilter struct {
	Status     string
	CustomerID string
	Limit      int
}

type AppointmentFilter struct {
	Status        string
	CustomerID    string
	ScheduledDate string
	Limit         int
}

type OutboxEvent struct {
	EventID   string          `json:"event_id"`
	Table     string          `json:"table"`
	EventType string          `json:"event_type"`
	New       json.RawMessage `json:"new,omitempty"`
	Old       json.RawMessage `json:"old,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

type OutboxOffset struct {
	LastEventTime time.Time
	LastEventID   string
}

type Session struct {
	SessionID string
	UserID    string
	Role      string
	ExpiresAt time.Time
}

type TicketStore interface {
	CreateTicket(ctx context.Context, input CreateTicketInput) (models.Ticket, bool, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter) ([]models.Ticket, error)
	UpdateTicket(ctx context.Context, input UpdateTicketInput) (models.Ticket, error)
	DeleteTicket(ctx context.Context, ticketID string) error
	StartTimer(ctx context.Context, ticketID, userID string, at time.Time) (models.Ticket, error)
	StopTimer(ctx context.Context, ticketID, userID, description string, at time.Time) (models.Ticket, models.TimeEntry, error)
	CreateTimeEntry(ctx context.Context, input CreateTimeEntryInput) (models.TimeEntry, error)
	UpdateTimeEntry(ctx context.Context, input UpdateTimeEntryInput) (models.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, entryID string) error
	ListTimeEntries(ctx context.Context, ticketID string) ([]models.TimeEntry, error)
}

type CustomerStore interface {
	CreateCustomer(ctx context.Context, input CreateCustomerInput) (models.Customer, error)
	GetCustomer(ctx context.Context, customerID string) (models.Customer, error)
	ListCustomers(ctx context.Context, search string, limit int) ([]models.Customer, error)
	UpdateCustomer(ctx context.Context, input UpdateCustomerInput) (models.Customer, error)
	DeleteCustomer(ctx context.Context, customerID string) error
	CreateCustomerDevice(ctx context.Context, input CreateCustomerDeviceInput) (models.CustomerDevice, error)
	GetCustomerDevice(ctx context.Context, customerDeviceID string) (models.CustomerDevice, error)
	ListCustomerDevices(ctx context.Context, customerID string) ([]models.CustomerDevice, error)
	DeleteCustomerDevice(ctx context.Context, customerDeviceID string) error
}

type AppointmentStore interface {
	CreateAppointment(ctx context.Context, input CreateAppointmentInput) (models.Appointment, bool, error)
	GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
	UpdateAppointment(ctx context.Context, input UpdateAppointmentInput) (models.Appointment, error)
	DeleteAppointment(ctx context.Context, appointmentID string) error
	CheckInAppointment(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, error)
	ConvertAppointment(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, models.Ticket, error)
	SweepNoShows(ctx context.Context, before time.Time, grace time.Duration) (int, error)
}

type AdminStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	CreateUser(ctx context.Context, email, name, role, password string) (models.User, error)
	UpdateUser(ctx context.Context, userID string, name, role *string, active *bool) (models.User, error)
	DeleteUser(ctx context.Context, userID string) error
	ListDevices(ctx context.Context, activeOnly bool) ([]models.Device, error)
	GetDevice(ctx context.Context, deviceID string) (models.Device, error)
	CreateDevice(ctx context.Context, input SyncDeviceInput) (models.Device, error)
	UpdateDevice(ctx context.Context, deviceID string, input SyncDeviceInput, active *bool) (models.Device, error)
	DeleteDevice(ctx context.Context, deviceID string) error
	SyncDevices(ctx context.Context, inputs []SyncDeviceInput) (SyncDevicesResult, error)
	ListServices(ctx context.Context) ([]models.Service, error)
	CreateService(ctx context.Context, name, category string, basePrice float64, estimatedMinutes int) (models.Service, error)
	UpdateService(ctx context.Context, serviceID string, name, category *string, basePrice *float64, estimatedMinutes *int, active *bool) (models.Service, error)
	DeleteService(ctx context.Context, serviceID string) error
	ListMedia(ctx context.Context, limit int) ([]models.MediaAsset, error)
	CreateMedia(ctx context.Context, fileName, url, mimeType string, sizeBytes int64) (models.MediaAsset, error)
	DeleteMedia(ctx context.Context, assetID string) error
}

type DashboardStore interface {
	GetDashboardStats(ctx context.Context) (models.DashboardStats, error)
}

type OutboxStore interface {
	ListOutboxEvents(ctx context.Context, offset OutboxOffset, limit int) ([]OutboxEvent, error)
	GetOffset(ctx context.Context) (OutboxOffset, error)
	UpdateOffset(ctx context.Context, offset OutboxOffset) error
	CleanupOutbox(ctx context.Context, before time.Time) error
}

type SessionStore interface {
	GetSession(ctx context.Context, sessionID string) (Session, error)
	Login(ctx context.Context, email, password string, expiresAt time.Time) (Session, error)
}

type Store interface {
	TicketStore
	CustomerStore
	AppointmentStore
	AdminStore
	DashboardStore
	OutboxStore
	SessionStore
}
