package postgres

import (
	"context"
	"database/sql"

	"photofeed/internal/model"
	"photofeed/internal/repository"
)

// MediaPostgres is a PostgreSQL implementation of repository.MediaRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type MediaPostgres struct {
	db *sql.DB
}

// NewMediaPostgres creates a new MediaPostgres repository.
func NewMediaPostgres(db *sql.DB) *MediaPostgres {
	return &MediaPostgres{db: db}
}

var _ repository.MediaRepository = (*MediaPostgres)(nil)

// Create inserts a new media row. id and created_at come back from the
// database so feed ordering is always server-assigned.
func (r *MediaPostgres) Create(ctx context.Context, item *model.MediaItem) (*model.MediaItem, error) {
	const q = `
		INSERT INTO images (owner_id, storage_key, display_name, caption)
		VALUES ($1, $2, $3, $4)
		RETURNING id, owner_id, storage_key, display_name, caption, created_at
	`
	row := r.db.QueryRowContext(ctx, q,
		item.OwnerID,
		item.StorageKey,
		item.DisplayName,
		item.Caption,
	)
	var out model.MediaItem
	if err := row.Scan(
		&out.ID,
		&out.OwnerID,
		&out.StorageKey,
		&out.DisplayName,
		&out.Caption,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &out, nil
}

// List returns a feed page for the scope. Owner display names are joined
// from profiles; a missing profile row degrades to "Unknown" rather than
// dropping the item.
func (r *MediaPostgres) List(ctx context.Context, scope model.Scope, pq repository.PageQuery) (*repository.PageResult[model.MediaItem], error) {
	var (
		total int
		rows  *sql.Rows
		err   error
	)

	if scope.IsGlobal() {
		const qCount = `SELECT COUNT(*) FROM images`
		if err := r.db.QueryRowContext(ctx, qCount).Scan(&total); err != nil {
			return nil, err
		}
		const qList = `
			SELECT i.id, i.owner_id, i.storage_key, i.display_name, i.caption, i.created_at,
			       COALESCE(p.display_name, 'Unknown')
			FROM images i
			LEFT JOIN profiles p ON p.user_id = i.owner_id
			ORDER BY i.created_at DESC, i.id DESC
			LIMIT $1 OFFSET $2
		`
		rows, err = r.db.QueryContext(ctx, qList, pq.Limit, pq.Offset)
	} else {
		const qCount = `SELECT COUNT(*) FROM images WHERE owner_id = $1`
		if err := r.db.QueryRowContext(ctx, qCount, scope.OwnerID).Scan(&total); err != nil {
			return nil, err
		}
		const qList = `
			SELECT i.id, i.owner_id, i.storage_key, i.display_name, i.caption, i.created_at,
			       COALESCE(p.display_name, 'Unknown')
			FROM images i
			LEFT JOIN profiles p ON p.user_id = i.owner_id
			WHERE i.owner_id = $1
			ORDER BY i.created_at DESC, i.id DESC
			LIMIT $2 OFFSET $3
		`
		rows, err = r.db.QueryContext(ctx, qList, scope.OwnerID, pq.Limit, pq.Offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.MediaItem, 0)
	for rows.Next() {
		var it model.MediaItem
		if err := rows.Scan(
			&it.ID,
			&it.OwnerID,
			&it.StorageKey,
			&it.DisplayName,
			&it.Caption,
			&it.CreatedAt,
			&it.OwnerDisplayName,
		); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.MediaItem]{
		Items: items,
		Total: total,
	}, nil
}

// StorageKeys lists every referenced blob key.
func (r *MediaPostgres) StorageKeys(ctx context.Context) ([]string, error) {
	const q = `SELECT storage_key FROM images`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
