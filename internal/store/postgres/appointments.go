package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

const appointmentProjection = `
	SELECT a.appointment_id, a.appointment_number, a.customer_id, a.device_id, a.scheduled_date, a.scheduled_time,
		a.duration_minutes, a.status, a.issues, a.notes, a.converted_ticket_id, a.created_at, a.updated_at, a.request_id,
		c.name, COALESCE(d.manufacturer || ' ' || d.model_name, '')
	FROM appointments a
	JOIN customers c ON c.customer_id = a.customer_id
	LEFT JOIN devices d ON d.device_id = a.device_id
`

func scanAppointment(row ticketScanner) (models.Appointment, error) {
	var appointment models.Appointment
	var deviceIDNull, notesNull, convertedNull, requestIDNull sql.NullString
	if err := row.Scan(&appointment.AppointmentID, &appointment.AppointmentNumber, &appointment.CustomerID, &deviceIDNull,
		&appointment.ScheduledDate, &appointment.ScheduledTime, &appointment.DurationMinutes, &appointment.Status,
		&appointment.Issues, &notesNull, &convertedNull, &appointment.CreatedAt, &appointment.UpdatedAt, &requestIDNull,
		&appointment.CustomerName, &appointment.DeviceName); err != nil {
		return models.Appointment{}, err
	}
	appointment.DeviceID = nullStringVal(deviceIDNull)
	appointment.Notes = nullStringVal(notesNull)
	appointment.ConvertedTicketID = nullStringVal(convertedNull)
	appointment.RequestID = nullStringVal(requestIDNull)
	return appointment, nil
}

func appointmentPayload(appointment models.Appointment) map[string]interface{} {
	return map[string]interface{}{
		"appointment_id":      appointment.AppointmentID,
		"appointment_number":  appointment.AppointmentNumber,
		"customer_id":         appointment.CustomerID,
		"device_id":           appointment.DeviceID,
		"scheduled_date":      appointment.ScheduledDate,
		"scheduled_time":      appointment.ScheduledTime,
		"duration_minutes":    appointment.DurationMinutes,
		"status":              appointment.Status,
		"issues":              appointment.Issues,
		"notes":               appointment.Notes,
		"converted_ticket_id": appointment.ConvertedTicketID,
		"created_at":          appointment.CreatedAt,
		"updated_at":          appointment.UpdatedAt,
		"request_id":          appointment.RequestID,
	}
}

func (s *Store) CreateAppointment(ctx context.Context, input store.CreateAppointmentInput) (models.Appointment, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, err := scanAppointment(tx.QueryRow(ctx, appointmentProjection+` WHERE a.request_id = $1`, input.RequestID))
	if err == nil {
		if err = tx.Commit(ctx); err != nil {
			return models.Appointment{}, false, err
		}
		return existing, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Appointment{}, false, err
	}
	err = nil

	if err = ensureCustomerExists(ctx, tx, input.CustomerID); err != nil {
		return models.Appointment{}, false, err
	}
	if input.DeviceID != "" {
		if err = ensureDeviceExists(ctx, tx, input.DeviceID); err != nil {
			return models.Appointment{}, false, err
		}
	}

	seq, err := nextNumber(ctx, tx, "appointments")
	if err != nil {
		return models.Appointment{}, false, err
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	appointmentID := uuid.NewString()
	issues := input.Issues
	if issues == nil {
		issues = []string{}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			appointment_id, appointment_number, customer_id, device_id, scheduled_date, scheduled_time,
			duration_minutes, status, issues, notes, created_at, updated_at, request_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11,$12)
		ON CONFLICT (request_id) DO NOTHING
	`, appointmentID, fmt.Sprintf("AP-%0*d", appointmentNumberPad, seq), input.CustomerID, nullIfEmpty(input.DeviceID),
		input.ScheduledDate, input.ScheduledTime, input.DurationMinutes, models.AppointmentStatusScheduled,
		issues, nullIfEmpty(input.Notes), createdAt, input.RequestID)
	if err != nil {
		return models.Appointment{}, false, err
	}

	appointment, err := scanAppointment(tx.QueryRow(ctx, appointmentProjection+` WHERE a.request_id = $1`, input.RequestID))
	if err != nil {
		return models.Appointment{}, false, err
	}
	created := appointment.AppointmentID == appointmentID
	if created {
		if err = insertOutboxEvent(ctx, tx, "appointments", "INSERT", appointmentPayload(appointment), nil); err != nil {
			return models.Appointment{}, false, err
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, false, err
	}
	return appointment, created, nil
}

func (s *Store) GetAppointment(ctx context.Context, appointmentID string) (models.Appointment, error) {
	appointment, err := scanAppointment(s.pool.QueryRow(ctx, appointmentProjection+` WHERE a.appointment_id = $1`, appointmentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, store.ErrAppointmentNotFound
		}
		return models.Appointment{}, err
	}
	return appointment, nil
}

func (s *Store) ListAppointments(ctx context.Context, filter store.AppointmentFilter) ([]models.Appointment, error) {
	query := appointmentProjection + ` WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND a.status = $%d", len(args))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND a.customer_id = $%d", len(args))
	}
	if filter.ScheduledDate != "" {
		args = append(args, filter.ScheduledDate)
		query += fmt.Sprintf(" AND a.scheduled_date = $%d", len(args))
	}
	query += " ORDER BY a.scheduled_date ASC, a.scheduled_time ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []models.Appointment
	for rows.Next() {
		appointment, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, appointment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return appointments, nil
}

func lockAppointment(ctx context.Context, tx pgx.Tx, appointmentID string) (models.Appointment, error) {
	var appointment models.Appointment
	var deviceIDNull, notesNull, convertedNull, requestIDNull sql.NullString
	row := tx.QueryRow(ctx, `
		SELECT appointment_id, appointment_number, customer_id, device_id, scheduled_date, scheduled_time,
			duration_minutes, status, issues, notes, converted_ticket_id, created_at, updated_at, request_id
		FROM appointments
		WHERE appointment_id = $1
		FOR UPDATE
	`, appointmentID)
	if err := row.Scan(&appointment.AppointmentID, &appointment.AppointmentNumber, &appointment.CustomerID, &deviceIDNull,
		&appointment.ScheduledDate, &appointment.ScheduledTime, &appointment.DurationMinutes, &appointment.Status,
		&appointment.Issues, &notesNull, &convertedNull, &appointment.CreatedAt, &appointment.UpdatedAt, &requestIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Appointment{}, store.ErrAppointmentNotFound
		}
		return models.Appointment{}, err
	}
	appointment.DeviceID = nullStringVal(deviceIDNull)
	appointment.Notes = nullStringVal(notesNull)
	appointment.ConvertedTicketID = nullStringVal(convertedNull)
	appointment.RequestID = nullStringVal(requestIDNull)
	return appointment, nil
}

func (s *Store) UpdateAppointment(ctx context.Context, input store.UpdateAppointmentInput) (models.Appointment, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockAppointment(ctx, tx, input.AppointmentID)
	if err != nil {
		return models.Appointment{}, err
	}

	appointment := old
	if input.Status != nil {
		if !store.ValidAppointmentTransition(old.Status, *input.Status) {
			err = store.ErrInvalidState
			return models.Appointment{}, err
		}
		appointment.Status = *input.Status
	}
	if input.ScheduledDate != nil {
		appointment.ScheduledDate = *input.ScheduledDate
	}
	if input.ScheduledTime != nil {
		appointment.ScheduledTime = *input.ScheduledTime
	}
	if input.DurationMinutes != nil {
		appointment.DurationMinutes = *input.DurationMinutes
	}
	if input.Notes != nil {
		appointment.Notes = *input.Notes
	}
	appointment.UpdatedAt = input.UpdatedAt
	if appointment.UpdatedAt.IsZero() {
		appointment.UpdatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2, scheduled_date = $3, scheduled_time = $4, duration_minutes = $5, notes = $6, updated_at = $7
		WHERE appointment_id = $1
	`, appointment.AppointmentID, appointment.Status, appointment.ScheduledDate, appointment.ScheduledTime,
		appointment.DurationMinutes, nullIfEmpty(appointment.Notes), appointment.UpdatedAt)
	if err != nil {
		return models.Appointment{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "appointments", "UPDATE", appointmentPayload(appointment), appointmentPayload(old)); err != nil {
		return models.Appointment{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, err
	}
	return s.GetAppointment(ctx, appointment.AppointmentID)
}

func (s *Store) DeleteAppointment(ctx context.Context, appointmentID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockAppointment(ctx, tx, appointmentID)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM appointments WHERE appointment_id = $1`, appointmentID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "appointments", "DELETE", nil, appointmentPayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) CheckInAppointment(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockAppointment(ctx, tx, appointmentID)
	if err != nil {
		return models.Appointment{}, err
	}
	if !store.ValidAppointmentTransition(old.Status, models.AppointmentStatusArrived) {
		err = store.ErrInvalidState
		return models.Appointment{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	appointment := old
	appointment.Status = models.AppointmentStatusArrived
	appointment.UpdatedAt = at
	_, err = tx.Exec(ctx, `
		UPDATE appointments SET status = $2, updated_at = $3 WHERE appointment_id = $1
	`, appointmentID, appointment.Status, at)
	if err != nil {
		return models.Appointment{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "appointments", "UPDATE", appointmentPayload(appointment), appointmentPayload(old)); err != nil {
		return models.Appointment{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, err
	}
	return s.GetAppointment(ctx, appointmentID)
}

// ConvertAppointment flips an arrived appointment into a new repair ticket in
// one transaction; both rows land in the outbox so caches see the move atomically.
func (s *Store) ConvertAppointment(ctx context.Context, appointmentID string, at time.Time) (models.Appointment, models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockAppointment(ctx, tx, appointmentID)
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	if !store.ValidAppointmentTransition(old.Status, models.AppointmentStatusConverted) {
		err = store.ErrInvalidState
		return models.Appointment{}, models.Ticket{}, err
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	seq, err := nextNumber(ctx, tx, "repair_tickets")
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	description := old.Notes
	if len(old.Issues) > 0 {
		description = strings.Join(old.Issues, ", ")
		if old.Notes != "" {
			description += " - " + old.Notes
		}
	}

	ticketID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO repair_tickets (
			ticket_id, ticket_number, customer_id, device_id, status, description,
			timer_total_minutes, total_time_minutes, created_at, updated_at, request_id
		) VALUES ($1,$2,$3,$4,$5,$6,0,0,$7,$7,$8)
	`, ticketID, fmt.Sprintf("TK-%0*d", ticketNumberPad, seq), old.CustomerID, nullIfEmpty(old.DeviceID),
		models.TicketStatusNew, nullIfEmpty(description), at, uuid.NewString())
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}

	appointment := old
	appointment.Status = models.AppointmentStatusConverted
	appointment.ConvertedTicketID = ticketID
	appointment.UpdatedAt = at
	_, err = tx.Exec(ctx, `
		UPDATE appointments SET status = $2, converted_ticket_id = $3, updated_at = $4 WHERE appointment_id = $1
	`, appointmentID, appointment.Status, ticketID, at)
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.ticket_id = $1`, ticketID))
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "repair_tickets", "INSERT", ticketPayload(ticket), nil); err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "appointments", "UPDATE", appointmentPayload(appointment), appointmentPayload(old)); err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}

	converted, err := s.GetAppointment(ctx, appointmentID)
	if err != nil {
		return models.Appointment{}, models.Ticket{}, err
	}
	return converted, ticket, nil
}

// SweepNoShows marks scheduled or confirmed appointments whose slot passed the
// grace window as no_show. Batched with SKIP LOCKED so concurrent sweeps
// never double-process a row.
func (s *Store) SweepNoShows(ctx context.Context, before time.Time, grace time.Duration) (int, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	cutoff := before.Add(-grace)
	rows, err := tx.Query(ctx, `
		SELECT appointment_id
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed')
			AND (scheduled_date || ' ' || scheduled_time)::timestamp <= $1
		ORDER BY scheduled_date ASC, scheduled_time ASC
		FOR UPDATE SKIP LOCKED
		LIMIT 100
	`, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return 0, err
	}

	processed := 0
	for _, id := range ids {
		var old models.Appointment
		old, err = lockAppointment(ctx, tx, id)
		if err != nil {
			return 0, err
		}
		appointment := old
		appointment.Status = models.AppointmentStatusNoShow
		appointment.UpdatedAt = before
		if _, err = tx.Exec(ctx, `
			UPDATE appointments SET status = $2, updated_at = $3 WHERE appointment_id = $1
		`, id, appointment.Status, before); err != nil {
			return 0, err
		}
		if err = insertOutboxEvent(ctx, tx, "appointments", "UPDATE", appointmentPayload(appointment), appointmentPayload(old)); err != nil {
			return 0, err
		}
		processed++
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, err
	}
	return processed, nil
}
