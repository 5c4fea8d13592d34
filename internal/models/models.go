package models

import "time"

type Ticket struct {
	TicketID          string      `json:"ticket_id"`
	TicketNumber      string      `json:"ticket_number"`
	CustomerID        string      `json:"customer_id"`
	DeviceID          string      `json:"device_id,omitempty"`
	Status            string      `json:"status"`
	Description       string      `json:"description,omitempty"`
	TimerTotalMinutes int         `json:"timer_total_minutes"`
	TotalTimeMinutes  int         `json:"total_time_minutes"`
	CustomerName      string      `json:"customer_name,omitempty"`
	DeviceName        string      `json:"device_name,omitempty"`
	TimerStartedAt    *time.Time  `json:"timer_started_at,omitempty"`
	TimeEntries       []TimeEntry `json:"time_entries,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
	RequestID         string      `json:"request_id,omitempty"`
}

const (
	TicketStatusNew        = "new"
	TicketStatusInProgress = "in_progress"
	TicketStatusOnHold     = "on_hold"
	TicketStatusCompleted  = "completed"
	TicketStatusCancelled  = "cancelled"
)

var TicketStatuses = []string{
	TicketStatusNew,
	TicketStatusInProgress,
	TicketStatusOnHold,
	TicketStatusCompleted,
	TicketStatusCancelled,
}

type TimeEntry struct {
	EntryID         string     `json:"entry_id"`
	TicketID        string     `json:"ticket_id"`
	UserID          string     `json:"user_id,omitempty"`
	DurationMinutes int        `json:"duration_minutes"`
	Description     string     `json:"description,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

type Customer struct {
	CustomerID  string    `json:"customer_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	DeviceCount int       `json:"device_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CustomerDevice struct {
	CustomerDeviceID string    `json:"customer_device_id"`
	CustomerID       string    `json:"customer_id"`
	DeviceID         string    `json:"device_id"`
	SerialNumber     string    `json:"serial_number,omitempty"`
	Color            string    `json:"color,omitempty"`
	StorageSize      string    `json:"storage_size,omitempty"`
	Condition        string    `json:"condition,omitempty"`
	Nickname         string    `json:"nickname,omitempty"`
	DeviceName       string    `json:"device_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Appointment struct {
	AppointmentID     string    `json:"appointment_id"`
	AppointmentNumber string    `json:"appointment_number"`
	CustomerID        string    `json:"customer_id"`
	DeviceID          string    `json:"device_id,omitempty"`
	ScheduledDate     string    `json:"scheduled_date"`
	ScheduledTime     string    `json:"scheduled_time"`
	DurationMinutes   int       `json:"duration_minutes"`
	Status            string    `json:"status"`
	Issues            []string  `json:"issues,omitempty"`
	Notes             string    `json:"notes,omitempty"`
	CustomerName      string    `json:"customer_name,omitempty"`
	DeviceName        string    `json:"device_name,omitempty"`
	ConvertedTicketID string    `json:"converted_ticket_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	RequestID         string    `json:"request_id,omitempty"`
}

const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusConfirmed = "confirmed"
	AppointmentStatusArrived   = "arrived"
	AppointmentStatusNoShow    = "no_show"
	AppointmentStatusConverted = "converted"
	AppointmentStatusCancelled = "cancelled"
)

var AppointmentStatuses = []string{
	AppointmentStatusScheduled,
	AppointmentStatusConfirmed,
	AppointmentStatusArrived,
	AppointmentStatusNoShow,
	AppointmentStatusConverted,
	AppointmentStatusCancelled,
}

type User struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Device struct {
	DeviceID     string `json:"device_id"`
	Manufacturer string `json:"manufacturer"`
	ModelName    string `json:"model_name"`
	ModelNumber  string `json:"model_number,omitempty"`
	DeviceType   string `json:"device_type,omitempty"`
	ReleaseYear  int    `json:"release_year,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Active       bool   `json:"active"`
}

type Service struct {
	ServiceID        string  `json:"service_id"`
	Name             string  `json:"name"`
	Category         string  `json:"category,omitempty"`
	BasePrice        float64 `json:"base_price"`
	EstimatedMinutes int     `json:"estimated_minutes"`
	Active           bool    `json:"active"`
}

type MediaAsset struct {
	AssetID   string    `json:"asset_id"`
	FileName  string    `json:"file_name"`
	URL       string    `json:"url"`
	MimeType  string    `json:"mime_type,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type DashboardStats struct {
	TicketsTotal       int            `json:"tickets_total"`
	TicketBuckets      map[string]int `json:"ticket_buckets"`
	AppointmentsTotal  int            `json:"appointments_total"`
	AppointmentBuckets map[string]int `json:"appointment_buckets"`
	CustomersTotal     int            `json:"customers_total"`
	DevicesTotal       int            `json:"devices_total"`
}
