package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/models"
	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

const ticketProjection = `
	SELECT t.ticket_id, t.ticket_number, t.customer_id, t.device_id, t.status, t.description,
		t.timer_total_minutes, t.total_time_minutes, t.timer_started_at, t.created_at, t.updated_at, t.request_id,
		c.name, COALESCE(d.manufacturer || ' ' || d.model_name, '')
	FROM repair_tickets t
	JOIN customers c ON c.customer_id = t.customer_id
	LEFT JOIN devices d ON d.device_id = t.device_id
`

type ticketScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row ticketScanner) (models.Ticket, error) {
	var ticket models.Ticket
	var deviceIDNull sql.NullString
	var descriptionNull sql.NullString
	var timerStartedNull sql.NullTime
	var requestIDNull sql.NullString
	if err := row.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.CustomerID, &deviceIDNull, &ticket.Status, &descriptionNull,
		&ticket.TimerTotalMinutes, &ticket.TotalTimeMinutes, &timerStartedNull, &ticket.CreatedAt, &ticket.UpdatedAt, &requestIDNull,
		&ticket.CustomerName, &ticket.DeviceName); err != nil {
		return models.Ticket{}, err
	}
	ticket.DeviceID = nullStringVal(deviceIDNull)
	ticket.Description = nullStringVal(descriptionNull)
	ticket.TimerStartedAt = nullTimePtr(timerStartedNull)
	ticket.RequestID = nullStringVal(requestIDNull)
	return ticket, nil
}

func ticketPayload(ticket models.Ticket) map[string]interface{} {
	return map[string]interface{}{
		"ticket_id":           ticket.TicketID,
		"ticket_number":       ticket.TicketNumber,
		"customer_id":         ticket.CustomerID,
		"device_id":           ticket.DeviceID,
		"status":              ticket.Status,
		"description":         ticket.Description,
		"timer_total_minutes": ticket.TimerTotalMinutes,
		"total_time_minutes":  ticket.TotalTimeMinutes,
		"timer_started_at":    ticket.TimerStartedAt,
		"created_at":          ticket.CreatedAt,
		"updated_at":          ticket.UpdatedAt,
		"request_id":          ticket.RequestID,
	}
}

func entryPayload(entry models.TimeEntry) map[string]interface{} {
	return map[string]interface{}{
		"entry_id":         entry.EntryID,
		"ticket_id":        entry.TicketID,
		"user_id":          entry.UserID,
		"duration_minutes": entry.DurationMinutes,
		"description":      entry.Description,
		"started_at":       entry.StartedAt,
		"ended_at":         entry.EndedAt,
	}
}

func (s *Store) CreateTicket(ctx context.Context, input store.CreateTicketInput) (models.Ticket, bool, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	existing, found, err := findTicketByRequestID(ctx, tx, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}
	if found {
		if err = tx.Commit(ctx); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	if err = ensureCustomerExists(ctx, tx, input.CustomerID); err != nil {
		return models.Ticket{}, false, err
	}
	if input.DeviceID != "" {
		if err = ensureDeviceExists(ctx, tx, input.DeviceID); err != nil {
			return models.Ticket{}, false, err
		}
	}

	seq, err := nextNumber(ctx, tx, "repair_tickets")
	if err != nil {
		return models.Ticket{}, false, err
	}
	createdAt := input.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	ticketID := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO repair_tickets (
			ticket_id, ticket_number, customer_id, device_id, status, description,
			timer_total_minutes, total_time_minutes, created_at, updated_at, request_id
		) VALUES ($1,$2,$3,$4,$5,$6,0,0,$7,$7,$8)
		ON CONFLICT (request_id) DO NOTHING
	`, ticketID, fmt.Sprintf("TK-%0*d", ticketNumberPad, seq), input.CustomerID, nullIfEmpty(input.DeviceID),
		models.TicketStatusNew, nullIfEmpty(input.Description), createdAt, input.RequestID)
	if err != nil {
		return models.Ticket{}, false, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.request_id = $1`, input.RequestID))
	if err != nil {
		return models.Ticket{}, false, err
	}
	created := ticket.TicketID == ticketID
	if created {
		if err = insertOutboxEvent(ctx, tx, "repair_tickets", "INSERT", ticketPayload(ticket), nil); err != nil {
			return models.Ticket{}, false, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, false, err
	}
	return ticket, created, nil
}

func findTicketByRequestID(ctx context.Context, tx pgx.Tx, requestID string) (models.Ticket, bool, error) {
	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.request_id = $1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, false, nil
		}
		return models.Ticket{}, false, err
	}
	return ticket, true, nil
}

func ensureCustomerExists(ctx context.Context, tx pgx.Tx, customerID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT customer_id FROM customers WHERE customer_id = $1`, customerID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrCustomerNotFound
		}
		return err
	}
	return nil
}

func ensureDeviceExists(ctx context.Context, tx pgx.Tx, deviceID string) error {
	var id string
	if err := tx.QueryRow(ctx, `SELECT device_id FROM devices WHERE device_id = $1`, deviceID).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrDeviceNotFound
		}
		return err
	}
	return nil
}

func (s *Store) GetTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	ticket, err := scanTicket(s.pool.QueryRow(ctx, ticketProjection+` WHERE t.ticket_id = $1`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	entries, err := s.ListTimeEntries(ctx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	ticket.TimeEntries = entries
	return ticket, nil
}

func (s *Store) ListTickets(ctx context.Context, filter store.TicketFilter) ([]models.Ticket, error) {
	query := ticketProjection + ` WHERE 1=1`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND t.status = $%d", len(args))
	}
	if filter.CustomerID != "" {
		args = append(args, filter.CustomerID)
		query += fmt.Sprintf(" AND t.customer_id = $%d", len(args))
	}
	query += " ORDER BY t.created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []models.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tickets, nil
}

func (s *Store) UpdateTicket(ctx context.Context, input store.UpdateTicketInput) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockTicket(ctx, tx, input.TicketID)
	if err != nil {
		return models.Ticket{}, err
	}

	status := current.Status
	if input.Status != nil {
		if !store.ValidTicketTransition(current.Status, *input.Status) {
			err = store.ErrInvalidState
			return models.Ticket{}, err
		}
		status = *input.Status
	}
	description := current.Description
	if input.Description != nil {
		description = *input.Description
	}
	deviceID := current.DeviceID
	if input.DeviceID != nil {
		deviceID = *input.DeviceID
		if deviceID != "" {
			if err = ensureDeviceExists(ctx, tx, deviceID); err != nil {
				return models.Ticket{}, err
			}
		}
	}
	updatedAt := input.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = tx.Exec(ctx, `
		UPDATE repair_tickets
		SET status = $2, description = $3, device_id = $4, updated_at = $5
		WHERE ticket_id = $1
	`, input.TicketID, status, nullIfEmpty(description), nullIfEmpty(deviceID), updatedAt)
	if err != nil {
		return models.Ticket{}, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.ticket_id = $1`, input.TicketID))
	if err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "repair_tickets", "UPDATE", ticketPayload(ticket), ticketPayload(current)); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func lockTicket(ctx context.Context, tx pgx.Tx, ticketID string) (models.Ticket, error) {
	var ticket models.Ticket
	var deviceIDNull, descriptionNull, requestIDNull sql.NullString
	var timerStartedNull sql.NullTime
	row := tx.QueryRow(ctx, `
		SELECT ticket_id, ticket_number, customer_id, device_id, status, description,
			timer_total_minutes, total_time_minutes, timer_started_at, created_at, updated_at, request_id
		FROM repair_tickets
		WHERE ticket_id = $1
		FOR UPDATE
	`, ticketID)
	if err := row.Scan(&ticket.TicketID, &ticket.TicketNumber, &ticket.CustomerID, &deviceIDNull, &ticket.Status, &descriptionNull,
		&ticket.TimerTotalMinutes, &ticket.TotalTimeMinutes, &timerStartedNull, &ticket.CreatedAt, &ticket.UpdatedAt, &requestIDNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Ticket{}, store.ErrTicketNotFound
		}
		return models.Ticket{}, err
	}
	ticket.DeviceID = nullStringVal(deviceIDNull)
	ticket.Description = nullStringVal(descriptionNull)
	ticket.TimerStartedAt = nullTimePtr(timerStartedNull)
	ticket.RequestID = nullStringVal(requestIDNull)
	return ticket, nil
}

func (s *Store) DeleteTicket(ctx context.Context, ticketID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockTicket(ctx, tx, ticketID)
	if err != nil {
		return err
	}

	// Time entries go with the ticket (ON DELETE CASCADE); a single ticket
	// delete event is enough for cache consumers to drop the whole row.
	if _, err = tx.Exec(ctx, `DELETE FROM repair_tickets WHERE ticket_id = $1`, ticketID); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "repair_tickets", "DELETE", nil, ticketPayload(current)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) StartTimer(ctx context.Context, ticketID, userID string, at time.Time) (models.Ticket, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockTicket(ctx, tx, ticketID)
	if err != nil {
		return models.Ticket{}, err
	}
	if current.TimerStartedAt != nil {
		err = store.ErrTimerRunning
		return models.Ticket{}, err
	}
	if current.Status == models.TicketStatusCompleted || current.Status == models.TicketStatusCancelled {
		err = store.ErrInvalidState
		return models.Ticket{}, err
	}

	status := current.Status
	if status == models.TicketStatusNew || status == models.TicketStatusOnHold {
		status = models.TicketStatusInProgress
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = tx.Exec(ctx, `
		UPDATE repair_tickets
		SET timer_started_at = $2, status = $3, updated_at = $2
		WHERE ticket_id = $1
	`, ticketID, at, status)
	if err != nil {
		return models.Ticket{}, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.ticket_id = $1`, ticketID))
	if err != nil {
		return models.Ticket{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "repair_tickets", "UPDATE", ticketPayload(ticket), ticketPayload(current)); err != nil {
		return models.Ticket{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) StopTimer(ctx context.Context, ticketID, userID, description string, at time.Time) (models.Ticket, models.TimeEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockTicket(ctx, tx, ticketID)
	if err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}
	if current.TimerStartedAt == nil {
		err = store.ErrTimerNotRunning
		return models.Ticket{}, models.TimeEntry{}, err
	}

	if at.IsZero() {
		at = time.Now().UTC()
	}
	minutes := int(at.Sub(*current.TimerStartedAt) / time.Minute)
	if minutes < 1 {
		minutes = 1
	}

	entry := models.TimeEntry{
		EntryID:         uuid.NewString(),
		TicketID:        ticketID,
		UserID:          userID,
		DurationMinutes: minutes,
		Description:     description,
		StartedAt:       *current.TimerStartedAt,
		EndedAt:         &at,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO time_entries (entry_id, ticket_id, user_id, duration_minutes, description, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.EntryID, entry.TicketID, nullIfEmpty(entry.UserID), entry.DurationMinutes, nullIfEmpty(entry.Description), entry.StartedAt, entry.EndedAt)
	if err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE repair_tickets
		SET timer_started_at = NULL,
			timer_total_minutes = timer_total_minutes + $2,
			total_time_minutes = total_time_minutes + $2,
			updated_at = $3
		WHERE ticket_id = $1
	`, ticketID, minutes, at)
	if err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}

	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.ticket_id = $1`, ticketID))
	if err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "time_entries", "INSERT", entryPayload(entry), nil); err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "repair_tickets", "UPDATE", ticketPayload(ticket), ticketPayload(current)); err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Ticket{}, models.TimeEntry{}, err
	}
	return ticket, entry, nil
}

func (s *Store) CreateTimeEntry(ctx context.Context, input store.CreateTimeEntryInput) (models.TimeEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	current, err := lockTicket(ctx, tx, input.TicketID)
	if err != nil {
		return models.TimeEntry{}, err
	}

	endedAt := input.EndedAt
	entry := models.TimeEntry{
		EntryID:         uuid.NewString(),
		TicketID:        input.TicketID,
		UserID:          input.UserID,
		DurationMinutes: input.DurationMinutes,
		Description:     input.Description,
		StartedAt:       input.StartedAt,
		EndedAt:         &endedAt,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO time_entries (entry_id, ticket_id, user_id, duration_minutes, description, started_at, ended_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, entry.EntryID, entry.TicketID, nullIfEmpty(entry.UserID), entry.DurationMinutes, nullIfEmpty(entry.Description), entry.StartedAt, entry.EndedAt)
	if err != nil {
		return models.TimeEntry{}, err
	}

	if err = s.applyTicketMinutes(ctx, tx, current, input.DurationMinutes); err != nil {
		return models.TimeEntry{}, err
	}
	if err = insertOutboxEvent(ctx, tx, "time_entries", "INSERT", entryPayload(entry), nil); err != nil {
		return models.TimeEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

// applyTicketMinutes shifts both minute aggregates by delta, clamping at zero,
// and emits the corresponding ticket update event.
func (s *Store) applyTicketMinutes(ctx context.Context, tx pgx.Tx, current models.Ticket, delta int) error {
	now := time.Now().UTC()
	_, err := tx.Exec(ctx, `
		UPDATE repair_tickets
		SET timer_total_minutes = GREATEST(0, timer_total_minutes + $2),
			total_time_minutes = GREATEST(0, total_time_minutes + $2),
			updated_at = $3
		WHERE ticket_id = $1
	`, current.TicketID, delta, now)
	if err != nil {
		return err
	}
	ticket, err := scanTicket(tx.QueryRow(ctx, ticketProjection+` WHERE t.ticket_id = $1`, current.TicketID))
	if err != nil {
		return err
	}
	return insertOutboxEvent(ctx, tx, "repair_tickets", "UPDATE", ticketPayload(ticket), ticketPayload(current))
}

func (s *Store) UpdateTimeEntry(ctx context.Context, input store.UpdateTimeEntryInput) (models.TimeEntry, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.TimeEntry{}, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockTimeEntry(ctx, tx, input.EntryID)
	if err != nil {
		return models.TimeEntry{}, err
	}

	entry := old
	if input.DurationMinutes != nil {
		entry.DurationMinutes = *input.DurationMinutes
	}
	if input.Description != nil {
		entry.Description = *input.Description
	}
	_, err = tx.Exec(ctx, `
		UPDATE time_entries
		SET duration_minutes = $2, description = $3
		WHERE entry_id = $1
	`, entry.EntryID, entry.DurationMinutes, nullIfEmpty(entry.Description))
	if err != nil {
		return models.TimeEntry{}, err
	}

	if delta := entry.DurationMinutes - old.DurationMinutes; delta != 0 {
		var ticket models.Ticket
		ticket, err = lockTicket(ctx, tx, entry.TicketID)
		if err != nil {
			return models.TimeEntry{}, err
		}
		if err = s.applyTicketMinutes(ctx, tx, ticket, delta); err != nil {
			return models.TimeEntry{}, err
		}
	}
	if err = insertOutboxEvent(ctx, tx, "time_entries", "UPDATE", entryPayload(entry), entryPayload(old)); err != nil {
		return models.TimeEntry{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.TimeEntry{}, err
	}
	return entry, nil
}

func (s *Store) DeleteTimeEntry(ctx context.Context, entryID string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	old, err := lockTimeEntry(ctx, tx, entryID)
	if err != nil {
		return err
	}
	if _, err = tx.Exec(ctx, `DELETE FROM time_entries WHERE entry_id = $1`, entryID); err != nil {
		return err
	}

	ticket, err := lockTicket(ctx, tx, old.TicketID)
	if err != nil {
		return err
	}
	if err = s.applyTicketMinutes(ctx, tx, ticket, -old.DurationMinutes); err != nil {
		return err
	}
	if err = insertOutboxEvent(ctx, tx, "time_entries", "DELETE", nil, entryPayload(old)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func lockTimeEntry(ctx context.Context, tx pgx.Tx, entryID string) (models.TimeEntry, error) {
	var entry models.TimeEntry
	var userIDNull, descriptionNull sql.NullString
	var endedAtNull sql.NullTime
	row := tx.QueryRow(ctx, `
		SELECT entry_id, ticket_id, user_id, duration_minutes, description, started_at, ended_at
		FROM time_entries
		WHERE entry_id = $1
		FOR UPDATE
	`, entryID)
	if err := row.Scan(&entry.EntryID, &entry.TicketID, &userIDNull, &entry.DurationMinutes, &descriptionNull, &entry.StartedAt, &endedAtNull); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.TimeEntry{}, store.ErrTimeEntryNotFound
		}
		return models.TimeEntry{}, err
	}
	entry.UserID = nullStringVal(userIDNull)
	entry.Description = nullStringVal(descriptionNull)
	entry.EndedAt = nullTimePtr(endedAtNull)
	return entry, nil
}

func (s *Store) ListTimeEntries(ctx context.Context, ticketID string) ([]models.TimeEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT entry_id, ticket_id, user_id, duration_minutes, description, started_at, ended_at
		FROM time_entries
		WHERE ticket_id = $1
		ORDER BY started_at ASC
	`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.TimeEntry
	for rows.Next() {
		var entry models.TimeEntry
		var userIDNull, descriptionNull sql.NullString
		var endedAtNull sql.NullTime
		if err := rows.Scan(&entry.EntryID, &entry.TicketID, &userIDNull, &entry.DurationMinutes, &descriptionNull, &entry.StartedAt, &endedAtNull); err != nil {
			return nil, err
		}
		entry.UserID = nullStringVal(userIDNull)
		entry.Description = nullStringVal(descriptionNull)
		entry.EndedAt = nullTimePtr(endedAtNull)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
