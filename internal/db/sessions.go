package db

import (
	"context"
	"time"

	"github.com/barterhub/backend/internal/model"
)

func (db *Postgres) EnsureSessionSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			refresh_token_hash TEXT,
			device_id TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			user_agent TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ NOT NULL,
			active BOOLEAN NOT NULL DEFAULT TRUE
		)
		`,
		`CREATE INDEX IF NOT EXISTS sessions_user_id_idx ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS sessions_user_active_idx ON sessions(user_id) WHERE active`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const sessionColumns = `id, user_id, refresh_token_hash, device_id, ip, user_agent,
	created_at, expires_at, active`

func scanSession(row interface{ Scan(...any) error }) (*model.Session, error) {
	var s model.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshTokenHash,
		&s.DeviceID,
		&s.IP,
		&s.UserAgent,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.Active,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (db *Postgres) CreateSession(ctx context.Context, s *model.Session) (*model.Session, error) {
	query := `
		INSERT INTO sessions (user_id, refresh_token_hash, device_id, ip, user_agent, created_at, expires_at, active)
		VALUES ($1, $2, $3, $4, $5, NOW(), $6, $7)
		RETURNING ` + sessionColumns + `
	`
	return scanSession(db.Pool.QueryRow(ctx, query,
		s.UserID,
		s.RefreshTokenHash,
		s.DeviceID,
		s.IP,
		s.UserAgent,
		s.ExpiresAt,
		s.Active,
	))
}

func (db *Postgres) GetSessionByID(ctx context.Context, sessionID string) (*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1
	`
	return scanSession(db.Pool.QueryRow(ctx, query, sessionID))
}

// GetActiveSessionForRefresh loads a session eligible for a refresh:
// active with a stored refresh hash. Expiry is checked lazily by the caller.
func (db *Postgres) GetActiveSessionForRefresh(ctx context.Context, sessionID string) (*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE id = $1 AND active AND refresh_token_hash IS NOT NULL
	`
	return scanSession(db.Pool.QueryRow(ctx, query, sessionID))
}

// FindActiveSessionByDevice implements the login reuse heuristic:
// same user, same device id, same user agent, still active.
func (db *Postgres) FindActiveSessionByDevice(ctx context.Context, userID, deviceID, userAgent string) (*model.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE user_id = $1 AND device_id = $2 AND user_agent = $3 AND active
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanSession(db.Pool.QueryRow(ctx, query, userID, deviceID, userAgent))
}

func (db *Postgres) CountActiveSessions(ctx context.Context, userID string) (int, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE user_id = $1 AND active AND expires_at > NOW()
	`, userID).Scan(&count)
	return count, err
}

func (db *Postgres) ListActiveSessionsWithHash(ctx context.Context, userID string) ([]*model.Session, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND active AND refresh_token_hash IS NOT NULL
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// RenewSession extends expiry and swaps in a fresh refresh hash when a
// login reuses an existing device session.
func (db *Postgres) RenewSession(ctx context.Context, sessionID, refreshHash string, expiresAt time.Time) error {
	query := `
		UPDATE sessions
		SET refresh_token_hash = $2, expires_at = $3
		WHERE id = $1 AND active
	`
	_, err := db.Pool.Exec(ctx, query, sessionID, refreshHash, expiresAt)
	return err
}

// RotateRefreshHash performs the compare-then-rotate step as one atomic
// statement. A zero row count means the stored hash no longer matches the
// presented token: either a concurrent refresh won the race or the token
// was already superseded. Callers treat both as reuse.
func (db *Postgres) RotateRefreshHash(ctx context.Context, sessionID, oldHash, newHash string) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `
		UPDATE sessions
		SET refresh_token_hash = $3
		WHERE id = $1 AND active AND refresh_token_hash = $2
	`, sessionID, oldHash, newHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// DeactivateSession marks the session revoked and clears the refresh hash.
func (db *Postgres) DeactivateSession(ctx context.Context, sessionID string) error {
	query := `
		UPDATE sessions
		SET active = FALSE, refresh_token_hash = NULL
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, sessionID)
	return err
}
