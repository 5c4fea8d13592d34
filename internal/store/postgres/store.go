package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	ticketNumberPad      = 4
	appointmentNumberPad = 4
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}

func nullStringVal(value sql.NullString) string {
	if value.Valid {
		return value.String
	}
	return ""
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if value.Valid {
		t := value.Time
		return &t
	}
	return nil
}

func jsonBytes(payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox payload: %w", err)
	}
	return data, nil
}

// insertOutboxEvent records a change row for the realtime broadcast loop.
// newRow/oldRow hold raw table columns, never joined projections, so cache
// consumers treat inserts as backfill triggers.
func insertOutboxEvent(ctx context.Context, tx pgx.Tx, table, eventType string, newRow, oldRow map[string]interface{}) error {
	var newJSON, oldJSON []byte
	var err error
	if newRow != nil {
		if newJSON, err = jsonBytes(newRow); err != nil {
			return err
		}
	}
	if oldRow != nil {
		if oldJSON, err = jsonBytes(oldRow); err != nil {
			return err
		}
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO outbox_events (event_id, table_name, event_type, new_json, old_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.NewString(), table, eventType, newJSON, oldJSON, time.Now().UTC())
	return err
}

func nextNumber(ctx context.Context, tx pgx.Tx, kind string) (int64, error) {
	var next int64
	row := tx.QueryRow(ctx, `
		INSERT INTO number_sequences (kind, next_number)
		VALUES ($1, 1)
		ON CONFLICT (kind)
		DO UPDATE SET next_number = number_sequences.next_number + 1
		RETURNING next_number
	`, kind)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}
	return next, nil
}
