package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/southwellmedia-dev/phoneguys-crm-sub003/internal/store"
)

func (s *Store) GetSession(ctx context.Context, sessionID string) (store.Session, error) {
	var session store.Session
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, u.role, s.expires_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW() AND u.active = TRUE
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrSessionNotFound
		}
		return store.Session{}, err
	}
	return session, nil
}

func (s *Store) Login(ctx context.Context, email, password string, expiresAt time.Time) (store.Session, error) {
	var userID, role, passwordHash string
	var active bool
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, role, password_hash, active FROM users WHERE email = $1
	`, email)
	if err := row.Scan(&userID, &role, &passwordHash, &active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Session{}, store.ErrInvalidCredentials
		}
		return store.Session{}, err
	}
	if !active {
		return store.Session{}, store.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(password)); err != nil {
		return store.Session{}, store.ErrInvalidCredentials
	}

	session := store.Session{
		SessionID: uuid.NewString(),
		UserID:    userID,
		Role:      role,
		ExpiresAt: expiresAt,
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, created_at, expires_at)
		VALUES ($1, $2, NOW(), $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return store.Session{}, err
	}
	return session, nil
}
