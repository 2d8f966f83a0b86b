package db

import (
	"context"

	"github.com/barterhub/backend/internal/model"
)

func (db *Postgres) ListCountries(ctx context.Context) ([]*model.Country, error) {
	rows, err := db.Pool.Query(ctx, `SELECT id, code, name FROM countries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var countries []*model.Country
	for rows.Next() {
		var c model.Country
		if err := rows.Scan(&c.ID, &c.Code, &c.Name); err != nil {
			return nil, err
		}
		countries = append(countries, &c)
	}
	return countries, rows.Err()
}

func (db *Postgres) GetCountryByID(ctx context.Context, id string) (*model.Country, error) {
	var c model.Country
	err := db.Pool.QueryRow(ctx, `SELECT id, code, name FROM countries WHERE id = $1`, id).
		Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// SeedCountries inserts the catalog once; reruns are no-ops.
func (db *Postgres) SeedCountries(ctx context.Context, countries map[string]string) error {
	for code, name := range countries {
		_, err := db.Pool.Exec(ctx, `
			INSERT INTO countries (code, name)
			VALUES ($1, $2)
			ON CONFLICT (code) DO NOTHING
		`, code, name)
		if err != nil {
			return err
		}
	}
	return nil
}
