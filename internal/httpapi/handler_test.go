package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

// fakeStore implements store.Store with per-method function fields so each
// test only wires the calls it expects. Unwired calls fail the test via panic.
type fakeStore struct {
	createTicket    func(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error)
	getTicket       func(ctx context.Context, ticketID string) (models.Ticket, error)
	listTickets     func(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error)
	updateTicket    func(ctx context.Context, input store.UpdateTicketInput) (models.Ticket, error)
	deleteTicket    func(ctx context.Context, ticketID string) error
	startTimer      func(ctx context.Context, ticketID, userID string, at time.Time) (models.Ticket, error)
	stopTimer       func(ctx context.Context, ticketID, userID, description string, at time.Time) (models.Ticket, models.TimeEntry, error)
	createTimeEntry func(ctx context.Context, input store.CreateTimeEntryInput) (models.TimeEntry, error)
	updateTimeEntry func(ctx context.Context, input store.UpdateTimeEntryInput) (models.TimeEntry, error)
	deleteTimeEntry func(ctx context.Context, entryID string) error
	listTimeEntries func(ctx context.Context, ticketID string) ([]models.TimeEntry, error)

	createCustomer       func(ctx context.Context, input store.CreateCustomerInput) (models.Customer, error)
	getCustomer          func(ctx context.Context, customerID string) (models.Customer, error)
	listCustomers        func(ctx context.Context, search string, limit int) ([]models.Customer, error)
	updateCustomer       func(ctx context.Context, input store.UpdateCustomerInput) (models.Customer, error)
	deleteCustomer       func(ctx context.Context, customerID string) error
	createCustomerDevice func(ctx context.Context, input store.CreateCustomerDeviceInput) (models.CustomerDevice, error)
	getCustomerDevice    func(ctx context.Context, customerDeviceID string) (models.CustomerDevice, error)
	listCustomerDevices  func(ctx context.Context, customerID string) ([]models.CustomerDevice, error)
	deleteCustomerDevice func(ctx context.Context, customerDeviceID string) error

	createAppointment  func(ctx context.Context, input store.CreateAppointmentInput) (models.Appointment, bool, error)
	getAppointment     func(ctx context.Context, appointmentID string) (models.Appointment, error)
	listAppointments   func(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error)
	updateAppointment  func(ctx context.Context, input store.UpdateAppointmentInput) (models.Appointment, error)
	deleteAppointment  func(ctx context.Context, appointmentID string) error
	checkInAppointment func(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, error)
	convertAppointment func(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, models.Ticket, error)
	sweepNoShows       func(ctx context.Context, before time.Time, grace time.Duration) (int, error)

	listUsers     func(ctx context.Context) ([]models.User, error)
	createUser    func(ctx context.Context, email, name, role, password string) (models.User, error)
	updateUser    func(ctx context.Context, userID string, name, role *string, active *bool) (models.User, error)
	deleteUser    func(ctx context.Context, userID string) error
	listDevices   func(ctx context.Context, activeOnly bool) ([]models.Device, error)
	getDevice     func(ctx context.Context, deviceID string) (models.Device, error)
	createDevice  func(ctx context.Context, input store.SyncDeviceInput) (models.Device, error)
	updateDevice  func(ctx context.Context, deviceID string, input store.SyncDeviceInput, active *bool) (models.Device, error)
	deleteDevice  func(ctx context.Context, deviceID string) error
	syncDevices   func(ctx context.Context, inputs []store.SyncDeviceInput) (store.SyncDevicesResult, error)
	listServices  func(ctx context.Context) ([]models.Service, error)
	createService func(ctx context.Context, name, category string, basePrice float64, estimatedMinutes int) (models.Service, error)
	updateService func(ctx context.Context, serviceID string, name, category *string, basePrice *float64, estimatedMinutes *int, active *bool) (models.Service, error)
	deleteService func(ctx context.Context, serviceID string) error
	listMedia     func(ctx context.Context, limit int) ([]models.MediaAsset, error)
	createMedia   func(ctx context.Context, fileName, url, mimeType string, sizeBytes int64) (models.MediaAsset, error)
	deleteMedia   func(ctx context.Context, assetID string) error

	getDashboardStats func(ctx context.Context) (models.DashboardStats, error)

	listOutboxEvents func(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error)
	getOffset        func(ctx context.Context) (store.OutboxOffset, error)
	updateOffset     func(ctx context.Context, offset store.OutboxOffset) error
	cleanupOutbox    func(ctx context.Context, before time.Time) error

	getSession func(ctx context.Context, sessionID string) (store.Session, error)
	login      func(ctx context.Context, email, password string, expiresAt time.Time) (store.Session, error)
}

func (f *fakeStore) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	if f.createTicket == nil {
		panic("unexpected CreateTicket")
	}
	return f.createTicket(ctx, input)
}

func (f *fakeStore) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	if f.getTicket == nil {
		panic("unexpected GetTicket")
	}
	return f.getTicket(ctx, ticketID)
}

func (f *fakeStore) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	if f.listTickets == nil {
		panic("unexpected ListTickets")
	}
	return f.listTickets(ctx, filter)
}

func (f *fakeStore) UpdateTicket(ctx context.Context, input store.UpdateTicketInput) (models.Ticket, error) {
	if f.updateTicket == nil {
		panic("unexpected UpdateTicket")
	}
	return f.updateTicket(ctx, input)
}

func (f *fakeStore) DeleteTicket(ctx context.Context, ticketID string) error {
	if f.deleteTicket == nil {
		panic("unexpected DeleteTicket")
	}
	return f.deleteTicket(ctx, ticketID)
}

func (f *fakeStore) StartTimer(ctx context.Context, ticketID, userID string, at time.Time) (models.Ticket, error) {
	if f.startTimer == nil {
		panic("unexpected StartTimer")
	}
	return f.startTimer(ctx, ticketID, userID, at)
}

func (f *fakeStore) StopTimer(ctx context.Context, ticketID, userID, description string, at time.Time) (models.Ticket, models.TimeEntry, error) {
	if f.stopTimer == nil {
		panic("unexpected StopTimer")
	}
	return f.stopTimer(ctx, ticketID, userID, description, at)
}

func (f *fakeStore) CreateTimeEntry(ctx context.Context, input store.CreateTimeEntryInput) (models.TimeEntry, error) {
	if f.createTimeEntry == nil {
		panic("unexpected CreateTimeEntry")
	}
	return f.createTimeEntry(ctx, input)
}

func (f *fakeStore) UpdateTimeEntry(ctx context.Context, input store.UpdateTimeEntryInput) (models.TimeEntry, error) {
	if f.updateTimeEntry == nil {
		panic("unexpected UpdateTimeEntry")
	}
	return f.updateTimeEntry(ctx, input)
}

func (f *fakeStore) DeleteTimeEntry(ctx context.Context, entryID string) error {
	if f.deleteTimeEntry == nil {
		panic("unexpected DeleteTimeEntry")
	}
	return f.deleteTimeEntry(ctx, entryID)
}

func (f *fakeStore) ListTimeEntries(ctx context.Context, ticketID string) ([]models.TimeEntry, error) {
	if f.listTimeEntries == nil {
		panic("unexpected ListTimeEntries")
	}
	return f.listTimeEntries(ctx, ticketID)
}

func (f *fakeStore) CreateCustomer(ctx context.Context, input store.CreateCustomerInput) (models.Customer, error) {
	if f.createCustomer == nil {
		panic("unexpected CreateCustomer")
	}
	return f.createCustomer(ctx, input)
}

func (f *fakeStore) GetCustomer(ctx context.Context, customerID string) (models.Customer, error) {
	if f.getCustomer == nil {
		panic("unexpected GetCustomer")
	}
	return f.getCustomer(ctx, customerID)
}

func (f *fakeStore) ListCustomers(ctx context.Context, search string, limit int) ([]models.Customer, error) {
	if f.listCustomers == nil {
		panic("unexpected ListCustomers")
	}
	return f.listCustomers(ctx, search, limit)
}

func (f *fakeStore) UpdateCustomer(ctx context.Context, input store.UpdateCustomerInput) (models.Customer, error) {
	if f.updateCustomer == nil {
		panic("unexpected UpdateCustomer")
	}
	return f.updateCustomer(ctx, input)
}

func (f *fakeStore) DeleteCustomer(ctx context.Context, customerID string) error {
	if f.deleteCustomer == nil {
		panic("unexpected DeleteCustomer")
	}
	return f.deleteCustomer(ctx, customerID)
}

func (f *fakeStore) CreateCustomerDevice(ctx context.Context, input store.CreateCustomerDeviceInput) (models.CustomerDevice, error) {
	if f.createCustomerDevice == nil {
		panic("unexpected CreateCustomerDevice")
	}
	return f.createCustomerDevice(ctx, input)
}

func (f *fakeStore) GetCustomerDevice(ctx context.Context, customerDeviceID string) (models.CustomerDevice, error) {
	if f.getCustomerDevice == nil {
		panic("unexpected GetCustomerDevice")
	}
	return f.getCustomerDevice(ctx, customerDeviceID)
}

func (f *fakeStore) ListCustomerDevices(ctx context.Context, customerID string) ([]models.CustomerDevice, error) {
	if f.listCustomerDevices == nil {
		panic("unexpected ListCustomerDevices")
	}
	return f.listCustomerDevices(ctx, customerID)
}

func (f *fakeStore) DeleteCustomerDevice(ctx context.Context, customerDeviceID string) error {
	if f.deleteCustomerDevice == nil {
		panic("unexpected DeleteCustomerDevice")
	}
	return f.deleteCustomerDevice(ctx, customerDeviceID)
}

func (f *fakeStore) CreateAppointment(ctx context.Context, input store.CreateAppointmentInput) (models.Appointment, bool, error) {
	if f.createAppointment == nil {
		panic("unexpected CreateAppointment")
	}
	return f.createAppointment(ctx, input)
}

func (f *fakeStore) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	if f.getAppointment == nil {
		panic("unexpected GetAppointment")
	}
	return f.getAppointment(ctx, appointmentID)
}

func (f *fakeStore) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	if f.listAppointments == nil {
		panic("unexpected ListAppointments")
	}
	return f.listAppointments(ctx, filter)
}

func (f *fakeStore) UpdateAppointment(ctx context.Context, input store.UpdateAppointmentInput) (models.Appointment, error) {
	if f.updateAppointment == nil {
		panic("unexpected UpdateAppointment")
	}
	return f.updateAppointment(ctx, input)
}

func (f *fakeStore) DeleteAppointment(ctx context.Context, appointmentID string) error {
	if f.deleteAppointment == nil {
		panic("unexpected DeleteAppointment")
	}
	return f.deleteAppointment(ctx, appointmentID)
}

func (f *fakeStore) CheckInAppointment(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, error) {
	if f.checkInAppointment == nil {
		panic("unexpected CheckInAppointment")
	}
	return f.checkInAppointment(ctx, appointmentID, at)
}

func (f *fakeStore) ConvertAppointment(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, models.Ticket, error) {
	if f.convertAppointment == nil {
		panic("unexpected ConvertAppointment")
	}
	return f.convertAppointment(ctx, appointmentID, at)
}

func (f *fakeStore) SweepNoShows(ctx context.Context, before time.Time, grace time.Duration) (int, error) {
	if f.sweepNoShows == nil {
		panic("unexpected SweepNoShows")
	}
	return f.sweepNoShows(ctx, before, grace)
}

func (f *fakeStore) ListUsers(ctx context.Context) ([]models.User, error) {
	if f.listUsers == nil {
		panic("unexpected ListUsers")
	}
	return f.listUsers(ctx)
}

func (f *fakeStore) CreateUser(ctx context.Context, email, name, role, password string) (models.User, error) {
	if f.createUser == nil {
		panic("unexpected CreateUser")
	}
	return f.createUser(ctx, email, name, role, password)
}

func (f *fakeStore) UpdateUser(ctx context.Context, userID string, name, role *string, active *bool) (models.User, error) {
	if f.updateUser == nil {
		panic("unexpected UpdateUser")
	}
	return f.updateUser(ctx, userID, name, role, active)
}

func (f *fakeStore) DeleteUser(ctx context.Context, userID string) error {
	if f.deleteUser == nil {
		panic("unexpected DeleteUser")
	}
	return f.deleteUser(ctx, userID)
}

func (f *fakeStore) ListDevices(ctx context.Context, activeOnly bool) ([]models.Device, error) {
	if f.listDevices == nil {
		panic("unexpected ListDevices")
	}
	return f.listDevices(ctx, activeOnly)
}

func (f *fakeStore) GetDevice(ctx context.Context, deviceID string) (models.Device, error) {
	if f.getDevice == nil {
		panic("unexpected GetDevice")
	}
	return f.getDevice(ctx, deviceID)
}

func (f *fakeStore) CreateDevice(ctx context.Context, input store.SyncDeviceInput) (models.Device, error) {
	if f.createDevice == nil {
		panic("unexpected CreateDevice")
	}
	return f.createDevice(ctx, input)
}

func (f *fakeStore) UpdateDevice(ctx context.Context, deviceID string, input store.SyncDeviceInput, active *bool) (models.Device, error) {
	if f.updateDevice == nil {
		panic("unexpected UpdateDevice")
	}
	return f.updateDevice(ctx, deviceID, input, active)
}

func (f *fakeStore) DeleteDevice(ctx context.Context, deviceID string) error {
	if f.deleteDevice == nil {
		panic("unexpected DeleteDevice")
	}
	return f.deleteDevice(ctx, deviceID)
}

func (f *fakeStore) SyncDevices(ctx context.Context, inputs []store.SyncDeviceInput) (store.SyncDevicesResult, error) {
	if f.syncDevices == nil {
		panic("unexpected SyncDevices")
	}
	return f.syncDevices(ctx, inputs)
}

func (f *fakeStore) ListServices(ctx context.Context) ([]models.Service, error) {
	if f.listServices == nil {
		panic("unexpected ListServices")
	}
	return f.listServices(ctx)
}

func (f *fakeStore) CreateService(ctx context.Context, name, category string, basePrice float64, estimatedMinutes int) (models.Service, error) {
	if f.createService == nil {
		panic("unexpected CreateService")
	}
	return f.createService(ctx, name, category, basePrice, estimatedMinutes)
}

func (f *fakeStore) UpdateService(ctx context.Context, serviceID string, name, category *string, basePrice *float64, estimatedMinutes *int, active *bool) (models.Service, error) {
	if f.updateService == nil {
		panic("unexpected UpdateService")
	}
	return f.updateService(ctx, serviceID, name, category, basePrice, estimatedMinutes, active)
}

func (f *fakeStore) DeleteService(ctx context.Context, serviceID string) error {
	if f.deleteService == nil {
		panic("unexpected DeleteService")
	}
	return f.deleteService(ctx, serviceID)
}

func (f *fakeStore) ListMedia(ctx context.Context, limit int) ([]models.MediaAsset, error) {
	if f.listMedia == nil {
		panic("unexpected ListMedia")
	}
	return f.listMedia(ctx, limit)
}

func (f *fakeStore) CreateMedia(ctx context.Context, fileName, url, mimeType string, sizeBytes int64) (models.MediaAsset, error) {
	if f.createMedia == nil {
		panic("unexpected CreateMedia")
	}
	return f.createMedia(ctx, fileName, url, mimeType, sizeBytes)
}

func (f *fakeStore) DeleteMedia(ctx context.Context, assetID string) error {
	if f.deleteMedia == nil {
		panic("unexpected DeleteMedia")
	}
	return f.deleteMedia(ctx, assetID)
}

func (f *fakeStore) GetDashboardStats(ctx context.Context) (models.DashboardStats, error) {
	if f.getDashboardStats == nil {
		panic("unexpected GetDashboardStats")
	}
	return f.getDashboardStats(ctx)
}

func (f *fakeStore) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if f.listOutboxEvents == nil {
		panic("unexpected ListOutboxEvents")
	}
	return f.listOutboxEvents(ctx, offset, limit)
}

func (f *fakeStore) GetOffset(ctx context.Context) (store.OutboxOffset, error) {
	if f.getOffset == nil {
		panic("unexpected GetOffset")
	}
	return f.getOffset(ctx)
}

func (f *fakeStore) UpdateOffset(ctx context.Context, offset store.OutboxOffset) error {
	if f.updateOffset == nil {
		panic("unexpected UpdateOffset")
	}
	return f.updateOffset(ctx, offset)
}

func (f *fakeStore) CleanupOutbox(ctx context.Context, before time.Time) error {
	if f.cleanupOutbox == nil {
		panic("unexpected CleanupOutbox")
	}
	return f.cleanupOutbox(ctx, before)
}

func (f *fakeStore) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	if f.getSession == nil {
		panic("unexpected GetSession")
	}
	return f.getSession(ctx, sessionID)
}

func (f *fakeStore) Login(ctx context.Context, email, password string, expiresAt time.Time) (store.Session, error) {
	if f.login == nil {
		panic("unexpected Login")
	}
	return f.login(ctx, email, password, expiresAt)
}

const (
	testTicketID   = "5f1f3a0e-8a40-4bd3-9f93-0d6d9cbb34a1"
	testCustomerID = "b0a5c4de-1f2e-4c8b-9f65-6a1b0cf9f2d0"
	testRequestID  = "e2a3dd52-7a77-4f0e-a8b4-9e16d2c4a0b7"
)

func serveAs(h http.Handler, r *http.Request, role string) *httptest.ResponseRecorder {
	ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{
		Session: store.Session{SessionID: "s1", UserID: "u1", Role: role},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r.WithContext(ctx))
	return rec
}

func TestCreateTicketRequiresRequestID(t *testing.T) {
	h := NewHandler(&fakeStore{})
	body := strings.NewReader(`{"customer_id":"` + testCustomerID + `"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", body)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp.Error.Code != "invalid_request" {
		t.Fatalf("error code = %q, want invalid_request", resp.Error.Code)
	}
}

func TestCreateTicketPassesInputThrough(t *testing.T) {
	var got store.CreateTicketInput
	fs := &fakeStore{
		createTicket: func(_ context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
			got = input
			return models.Ticket{TicketID: testTicketID, TicketNumber: "TK-0042"}, true, nil
		},
	}
	h := NewHandler(fs)
	body := strings.NewReader(`{"request_id":"` + testRequestID + `","customer_id":"` + testCustomerID + `","description":"  cracked screen  "}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", body)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if got.RequestID != testRequestID || got.CustomerID != testCustomerID {
		t.Fatalf("input = %+v", got)
	}
	if got.Description != "cracked screen" {
		t.Fatalf("description not trimmed: %q", got.Description)
	}
}

func TestCreateTicketRejectsUnknownFields(t *testing.T) {
	h := NewHandler(&fakeStore{})
	body := strings.NewReader(`{"request_id":"` + testRequestID + `","customer_id":"` + testCustomerID + `","bogus":1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets", body)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateTicketRejectsUnknownStatus(t *testing.T) {
	h := NewHandler(&fakeStore{})
	body := strings.NewReader(`{"status":"misplaced"}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/tickets/"+testTicketID, body)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetTicketNotFound(t *testing.T) {
	fs := &fakeStore{
		getTicket: func(_ context.Context, _ string) (models.Ticket, error) {
			return models.Ticket{}, store.ErrTicketNotFound
		},
	}
	h := NewHandler(fs)
	req := httptest.NewRequest(http.MethodGet, "/api/tickets/"+testTicketID, nil)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestDeleteTicketNeedsElevatedRole(t *testing.T) {
	h := NewHandler(&fakeStore{})
	req := httptest.NewRequest(http.MethodDelete, "/api/tickets/"+testTicketID, nil)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	deleted := false
	fs := &fakeStore{deleteTicket: func(_ context.Context, _ string) error {
		deleted = true
		return nil
	}}
	req = httptest.NewRequest(http.MethodDelete, "/api/tickets/"+testTicketID, nil)
	rec = serveAs(NewHandler(fs).Routes(), req, "manager")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if !deleted {
		t.Fatal("DeleteTicket was not called")
	}
}

func TestTimerStopReturnsTicketAndEntry(t *testing.T) {
	fs := &fakeStore{
		stopTimer: func(_ context.Context, ticketID, userID, description string, _ time.Time) (models.Ticket, models.TimeEntry, error) {
			if ticketID != testTicketID {
				t.Fatalf("ticketID = %q", ticketID)
			}
			if userID != "u1" {
				t.Fatalf("userID = %q", userID)
			}
			return models.Ticket{TicketID: ticketID, TimerTotalMinutes: 25},
				models.TimeEntry{EntryID: "11111111-2222-3333-4444-555555555555", DurationMinutes: 25, Description: description}, nil
		},
	}
	h := NewHandler(fs)
	body := strings.NewReader(`{"description":"replaced battery"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+testTicketID+"/timer/stop", body)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Ticket models.Ticket    `json:"ticket"`
		Entry  models.TimeEntry `json:"entry"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Ticket.TimerTotalMinutes != 25 || resp.Entry.DurationMinutes != 25 {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Entry.Description != "replaced battery" {
		t.Fatalf("description = %q", resp.Entry.Description)
	}
}

func TestTimerStartConflict(t *testing.T) {
	fs := &fakeStore{
		startTimer: func(_ context.Context, _, _ string, _ time.Time) (models.Ticket, error) {
			return models.Ticket{}, store.ErrTimerRunning
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/tickets/"+testTicketID+"/timer/start", nil)
	rec := serveAs(NewHandler(fs).Routes(), req, "technician")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateAppointmentValidatesSchedule(t *testing.T) {
	h := NewHandler(&fakeStore{})
	body := strings.NewReader(`{"request_id":"` + testRequestID + `","customer_id":"` + testCustomerID + `","scheduled_date":"next tuesday","scheduled_time":"10:00"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/appointments", body)
	rec := serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}

	body = strings.NewReader(`{"request_id":"` + testRequestID + `","customer_id":"` + testCustomerID + `","scheduled_date":"2026-09-02","scheduled_time":"25:99"}`)
	req = httptest.NewRequest(http.MethodPost, "/api/appointments", body)
	rec = serveAs(h.Routes(), req, "technician")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateAppointmentDefaultsDuration(t *testing.T) {
	var got store.CreateAppointmentInput
	fs := &fakeStore{
		createAppointment: func(_ context.Context, input store.CreateAppointmentInput) (models.Appointment, bool, error) {
			got = input
			return models.Appointment{AppointmentID: "a1"}, true, nil
		},
	}
	body := strings.NewReader(`{"request_id":"` + testRequestID + `","customer_id":"` + testCustomerID + `","scheduled_date":"2026-09-02","scheduled_time":"10:30"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/appointments", body)
	rec := serveAs(NewHandler(fs).Routes(), req, "technician")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got.DurationMinutes != 30 {
		t.Fatalf("DurationMinutes = %d, want default 30", got.DurationMinutes)
	}
}

func TestAppointmentConvertReturnsBoth(t *testing.T) {
	fs := &fakeStore{
		convertAppointment: func(_ context.Context, appointmentID string, _ time.Time) (models.Appointment, models.Ticket, error) {
			return models.Appointment{AppointmentID: appointmentID, Status: "converted"},
				models.Ticket{TicketID: testTicketID, Status: "new"}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/appointments/"+testRequestID+"/convert", nil)
	rec := serveAs(NewHandler(fs).Routes(), req, "technician")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Appointment models.Appointment `json:"appointment"`
		Ticket      models.Ticket      `json:"ticket"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Appointment.Status != "converted" || resp.Ticket.Status != "new" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestDeviceSyncCountsUpserts(t *testing.T) {
	fs := &fakeStore{
		syncDevices: func(_ context.Context, inputs []store.SyncDeviceInput) (store.SyncDevicesResult, error) {
			if len(inputs) != 2 {
				t.Fatalf("len(inputs) = %d", len(inputs))
			}
			return store.SyncDevicesResult{Created: 1, Updated: 1}, nil
		},
	}
	body := strings.NewReader(`{"devices":[
		{"manufacturer":"Apple","model_name":"iPhone 15","model_number":"A3090"},
		{"manufacturer":"Samsung","model_name":"Galaxy S24","model_number":"SM-S921"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/devices/sync", body)
	rec := serveAs(NewHandler(fs).Routes(), req, "admin")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var result store.SyncDevicesResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Created != 1 || result.Updated != 1 {
		t.Fatalf("result = %+v", result)
	}
}

func TestDeviceSyncRequiresAdmin(t *testing.T) {
	body := strings.NewReader(`{"devices":[{"manufacturer":"Apple","model_name":"iPhone 15"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/admin/devices/sync", body)
	rec := serveAs(NewHandler(&fakeStore{}).Routes(), req, "manager")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestLoginMapsInvalidCredentials(t *testing.T) {
	fs := &fakeStore{
		login: func(_ context.Context, _, _ string, _ time.Time) (store.Session, error) {
			return store.Session{}, store.ErrInvalidCredentials
		},
	}
	body := strings.NewReader(`{"email":"tech@example.com","password":"nope"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", body)
	rec := httptest.NewRecorder()
	NewHandler(fs).Routes().ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestEventsCursorParsing(t *testing.T) {
	var gotOffset store.OutboxOffset
	var gotLimit int
	fs := &fakeStore{
		listOutboxEvents: func(_ context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
			gotOffset, gotLimit = offset, limit
			return []store.OutboxEvent{{EventID: "e1", Table: "repair_tickets", EventType: "UPDATE"}}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/events?after=2026-08-30T12:00:00Z&after_id=e0&limit=7", nil)
	rec := serveAs(NewHandler(fs).Routes(), req, "technician")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if gotOffset.LastEventID != "e0" || gotOffset.LastEventTime.IsZero() {
		t.Fatalf("offset = %+v", gotOffset)
	}
	if gotLimit != 7 {
		t.Fatalf("limit = %d, want 7", gotLimit)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/events?after=yesterday", nil)
	rec = serveAs(NewHandler(fs).Routes(), req, "technician")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestDashboardStats(t *testing.T) {
	fs := &fakeStore{
		getDashboardStats: func(_ context.Context) (models.DashboardStats, error) {
			return models.DashboardStats{TicketsTotal: 12, TicketBuckets: map[string]int{"new": 3}}, nil
		},
	}
	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	rec := serveAs(NewHandler(fs).Routes(), req, "technician")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var stats models.DashboardStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TicketsTotal != 12 || stats.TicketBuckets["new"] != 3 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAuthMiddlewareRejectsMissingSession(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := AuthMiddleware(&fakeStore{}, next)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("public endpoint status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddlewareAttachesSession(t *testing.T) {
	fs := &fakeStore{
		getSession: func(_ context.Context, sessionID string) (store.Session, error) {
			if sessionID != "sess-1" {
				return store.Session{}, store.ErrSessionNotFound
			}
			return store.Session{SessionID: sessionID, UserID: "u9", Role: "admin"}, nil
		},
	}
	var seen store.Session
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = authFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	mw := AuthMiddleware(fs, next)

	req := httptest.NewRequest(http.MethodGet, "/api/tickets", nil)
	req.Header.Set("Authorization", "Bearer sess-1")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen.UserID != "u9" || seen.Role != "admin" {
		t.Fatalf("session = %+v", seen)
	}
}
