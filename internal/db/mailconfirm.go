package db

import (
	"context"
	"time"
)

func (db *Postgres) EnsureMailConfirmSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS email_confirmations (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			token_hash TEXT NOT NULL UNIQUE,
			expires_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS email_confirmations_user_id_idx ON email_confirmations(user_id)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// InsertConfirmationToken replaces any earlier token for the user so only
// the latest confirmation link works.
func (db *Postgres) InsertConfirmationToken(ctx context.Context, userID, tokenHash string, expiresAt time.Time) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err = tx.Exec(ctx, `DELETE FROM email_confirmations WHERE user_id = $1`, userID); err != nil {
		return err
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO email_confirmations (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
	`, userID, tokenHash, expiresAt); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ConsumeConfirmationToken looks up an unexpired token by hash and deletes
// it, returning the owning user id. A miss returns pgx.ErrNoRows.
func (db *Postgres) ConsumeConfirmationToken(ctx context.Context, tokenHash string) (string, error) {
	var userID string
	err := db.Pool.QueryRow(ctx, `
		DELETE FROM email_confirmations
		WHERE token_hash = $1 AND expires_at > NOW()
		RETURNING user_id
	`, tokenHash).Scan(&userID)
	if err != nil {
		return "", err
	}
	return userID, nil
}
