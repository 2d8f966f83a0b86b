package db

import (
	"context"
	"time"

	"github.com/barterhub/backend/internal/model"
)

func (db *Postgres) EnsureUserSchema(ctx context.Context) error {
	queries := []string{
		`
		CREATE TABLE IF NOT EXISTS countries (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			code TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL
		)
		`,
		`
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			email TEXT NOT NULL UNIQUE,
			login TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'user',
			active BOOLEAN NOT NULL DEFAULT TRUE,
			email_confirmed BOOLEAN NOT NULL DEFAULT FALSE,
			phone TEXT,
			country_id UUID REFERENCES countries(id),
			language TEXT NOT NULL DEFAULT 'en',
			theme TEXT NOT NULL DEFAULT 'light',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
		`,
		`CREATE INDEX IF NOT EXISTS users_login_idx ON users(login)`,
	}

	for _, query := range queries {
		if _, err := db.Pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

const userColumns = `id, email, login, name, password_hash, role, active, email_confirmed,
	phone, country_id, language, theme, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Login,
		&user.Name,
		&user.PasswordHash,
		&user.Role,
		&user.Active,
		&user.EmailConfirmed,
		&user.Phone,
		&user.CountryID,
		&user.Language,
		&user.Theme,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByIdentifier matches either login or email; login lookup and email
// lookup are not distinguished to keep the credential path uniform.
func (db *Postgres) GetUserByIdentifier(ctx context.Context, loginOrEmail string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE login = $1 OR email = $1
	`
	return scanUser(db.Pool.QueryRow(ctx, query, loginOrEmail))
}

func (db *Postgres) GetUserByID(ctx context.Context, userID string) (*model.User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1
	`
	return scanUser(db.Pool.QueryRow(ctx, query, userID))
}

func (db *Postgres) CreateUser(ctx context.Context, user *model.User) (*model.User, error) {
	query := `
		INSERT INTO users (email, login, name, password_hash, role, active, email_confirmed,
			phone, country_id, language, theme, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		RETURNING ` + userColumns + `
	`
	return scanUser(db.Pool.QueryRow(ctx, query,
		user.Email,
		user.Login,
		user.Name,
		user.PasswordHash,
		user.Role,
		user.Active,
		user.EmailConfirmed,
		user.Phone,
		user.CountryID,
		user.Language,
		user.Theme,
	))
}

func (db *Postgres) UpdateUserProfile(ctx context.Context, user *model.User) (*model.User, error) {
	query := `
		UPDATE users
		SET name = $2, phone = $3, language = $4, theme = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns + `
	`
	return scanUser(db.Pool.QueryRow(ctx, query,
		user.ID,
		user.Name,
		user.Phone,
		user.Language,
		user.Theme,
	))
}

func (db *Postgres) ConfirmUserEmail(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET email_confirmed = TRUE, updated_at = NOW()
		WHERE id = $1
	`
	_, err := db.Pool.Exec(ctx, query, userID)
	return err
}

// ListUserUpdatedAt feeds the bulk freshness-key seed at startup.
func (db *Postgres) ListUserUpdatedAt(ctx context.Context) (map[string]time.Time, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, updated_at FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var id string
		var updatedAt time.Time
		if err := rows.Scan(&id, &updatedAt); err != nil {
			return nil, err
		}
		out[id] = updatedAt
	}
	return out, rows.Err()
}
