package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

// ListOutboxEvents pages forward from the offset, ordering by created_at then
// event_id so two events sharing a timestamp are never skipped or replayed.
func (s *Store) ListOutboxEvents(ctx context.Context, offset store.OutboxOffset, limit int) ([]store.OutboxEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT event_id, table_name, event_type, new_json, old_json, created_at
		FROM outbox_events
	`
	args := []interface{}{}
	if !offset.LastEventTime.IsZero() {
		query += ` WHERE (created_at, event_id) > ($1, $2)`
		args = append(args, offset.LastEventTime, offset.LastEventID)
		query += ` ORDER BY created_at ASC, event_id ASC LIMIT $3`
		args = append(args, limit)
	} else {
		query += ` ORDER BY created_at ASC, event_id ASC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []store.OutboxEvent
	for rows.Next() {
		var event store.OutboxEvent
		var newJSON, oldJSON []byte
		if err := rows.Scan(&event.EventID, &event.Table, &event.EventType, &newJSON, &oldJSON, &event.CreatedAt); err != nil {
			return nil, err
		}
		event.New = newJSON
		event.Old = oldJSON
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Store) GetOffset(ctx context.Context) (store.OutboxOffset, error) {
	var offset store.OutboxOffset
	var lastTime sql.NullTime
	var lastID sql.NullString
	row := s.pool.QueryRow(ctx, `
		SELECT last_event_time, last_event_id FROM outbox_offsets WHERE consumer = 'broadcast'
	`)
	if err := row.Scan(&lastTime, &lastID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.OutboxOffset{}, nil
		}
		return store.OutboxOffset{}, err
	}
	if lastTime.Valid {
		offset.LastEventTime = lastTime.Time
	}
	offset.LastEventID = nullStringVal(lastID)
	return offset, nil
}

func (s *Store) UpdateOffset(ctx context.Context, offset store.OutboxOffset) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO outbox_offsets (consumer, last_event_time, last_event_id)
		VALUES ('broadcast', $1, $2)
		ON CONFLICT (consumer)
		DO UPDATE SET last_event_time = EXCLUDED.last_event_time, last_event_id = EXCLUDED.last_event_id
	`, offset.LastEventTime, offset.LastEventID)
	return err
}

func (s *Store) CleanupOutbox(ctx context.Context, before time.Time) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM outbox_events WHERE created_at < $1`, before)
	return err
}
