package postgres

import (
	"context"
	"database/sql"

	"photofeed/internal/model"
	"photofeed/internal/repository"
)

// ProfilePostgres is a PostgreSQL implementation of repository.ProfileRepository.
type ProfilePostgres struct {
	db *sql.DB
}

// NewProfilePostgres creates a new ProfilePostgres repository.
func NewProfilePostgres(db *sql.DB) *ProfilePostgres {
	return &ProfilePostgres{db: db}
}

var _ repository.ProfileRepository = (*ProfilePostgres)(nil)

// Upsert inserts or refreshes a profile row. Called on authenticated
// requests so the feed join has a display name to resolve.
func (r *ProfilePostgres) Upsert(ctx context.Context, p *model.Profile) error {
	const q = `
		INSERT INTO profiles (user_id, display_name)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name
	`
	_, err := r.db.ExecContext(ctx, q, p.UserID, p.DisplayName)
	return err
}
