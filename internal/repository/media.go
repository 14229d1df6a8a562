package repository

import (
	"context"

	"photofeed/internal/model"
)

// MediaRepository defines data access for published media items using SQL
// queries only. No business logic here — strictly persistence operations.
// Media items are append-only: there is no update and no delete.
type MediaRepository interface {
	// Create inserts a new media record. ID and CreatedAt are assigned by
	// the database; the returned item carries them.
	Create(ctx context.Context, item *model.MediaItem) (*model.MediaItem, error)

	// List returns media items matching the scope, newest first (created_at
	// DESC, id DESC), together with the total row count for the scope.
	List(ctx context.Context, scope model.Scope, pq PageQuery) (*PageResult[model.MediaItem], error)

	// StorageKeys returns every storage key referenced by a media record.
	// Used by the orphan sweep to diff against the bucket contents.
	StorageKeys(ctx context.Context) ([]string, error)
}

// ProfileRepository persists the denormalized owner identities joined into
// feed rows.
type ProfileRepository interface {
	// Upsert inserts or refreshes a profile row keyed by user id.
	Upsert(ctx context.Context, p *model.Profile) error
}

// PageQuery holds limit/offset pagination parameters.
type PageQuery struct {
	Limit  int
	Offset int
}

// PageResult is a generic pagination result wrapper.
// T is typically a model type.
type PageResult[T any] struct {
	Items []T
	Total int
}
