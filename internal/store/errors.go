package store

import "errors"

var (
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTimeEntryNotFound   = errors.New("time entry not found")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrDeviceNotFound      = errors.New("device not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrServiceNotFound     = errors.New("service not found")
	ErrMediaNotFound       = errors.New("media asset not found")
	ErrSessionNotFound     = errors.New("session not found")
	ErrInvalidState        = errors.New("invalid status transition")
	ErrTimerRunning        = errors.New("timer already running")
	ErrTimerNotRunning     = errors.New("timer not running")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDuplicateEmail      = errors.New("email already in use")
)
