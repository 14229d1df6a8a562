package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"photofeed/internal/model"
	"photofeed/internal/repository"
	"photofeed/internal/storage"
)

var (
	// ErrStorageWrite marks a phase-1 failure: the blob never made it into
	// object storage and no metadata record was written.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrMetadataWrite marks a phase-2 failure: the blob exists but no record
	// references it. The orphan is logged, never rolled back.
	ErrMetadataWrite = errors.New("metadata write failed")
	// ErrFetch marks a failed feed query.
	ErrFetch = errors.New("feed fetch failed")

	ErrOwnerRequired = errors.New("owner id is required")
	ErrReaderNil     = errors.New("reader is nil")
)

// PublishInput carries everything needed to publish one image.
type PublishInput struct {
	OwnerID     string
	DisplayName string
	Caption     string
	ContentType string
	Size        int64
}

// FeedPage is the service-level DTO for a scoped feed query.
type FeedPage struct {
	Items []model.MediaItem `json:"data"`
	Total int               `json:"total"`
}

// MediaService defines the use cases for publishing and listing media.
type MediaService interface {
	// Publish runs the two-phase write: blob to object storage first, then
	// the metadata record. The record is only ever created after the blob
	// exists. A phase-2 failure leaves the blob behind as an orphan; it is
	// reported, not rolled back, and a retry uses a fresh storage key.
	Publish(ctx context.Context, r io.Reader, in PublishInput) (*model.MediaItem, error)

	// List returns a feed page for the scope, newest first, with public
	// read URLs filled in.
	List(ctx context.Context, scope model.Scope, limit, offset int) (*FeedPage, error)
}

// mediaService is a concrete implementation of MediaService.
type mediaService struct {
	store storage.Storage
	repo  repository.MediaRepository
	log   zerolog.Logger
}

// NewMediaService constructs a new MediaService.
func NewMediaService(store storage.Storage, repo repository.MediaRepository, log zerolog.Logger) MediaService {
	return &mediaService{store: store, repo: repo, log: log}
}

func (s *mediaService) Publish(ctx context.Context, r io.Reader, in PublishInput) (*model.MediaItem, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if in.OwnerID == "" {
		return nil, ErrOwnerRequired
	}

	// A uuid suffix keeps keys collision-free under concurrent uploads from
	// the same owner; a timestamp alone cannot guarantee that.
	key := StorageKey(in.OwnerID, in.DisplayName)

	// Phase 1: blob first. The record must never exist without its blob.
	objInfo, err := s.store.Put(ctx, key, r, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: in.ContentType,
		Metadata: map[string]string{
			"original-filename": in.DisplayName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: put %s: %v", ErrStorageWrite, key, err)
	}

	// Phase 2: metadata record.
	item := &model.MediaItem{
		OwnerID:     in.OwnerID,
		StorageKey:  objInfo.Key,
		DisplayName: in.DisplayName,
		Caption:     TruncateCaption(in.Caption),
	}
	stored, err := s.repo.Create(ctx, item)
	if err != nil {
		// The blob stays behind as an orphan. It is invisible to feeds and
		// cheap to leave; a retry must use a fresh key, never re-link here.
		s.log.Warn().
			Str("storage_key", key).
			Str("owner_id", in.OwnerID).
			Err(err).
			Msg("orphan blob left after metadata write failure")
		return nil, fmt.Errorf("%w: %v", ErrMetadataWrite, err)
	}

	// OwnerDisplayName is resolved by the feed query's profiles join; the
	// publish response only confirms the stored record.
	stored.URL = s.store.PublicURL(stored.StorageKey)
	return stored, nil
}

// List returns scoped feed items without exposing repository types.
func (s *mediaService) List(ctx context.Context, scope model.Scope, limit, offset int) (*FeedPage, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.repo.List(ctx, scope, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	for i := range res.Items {
		res.Items[i].URL = s.store.PublicURL(res.Items[i].StorageKey)
	}
	return &FeedPage{Items: res.Items, Total: res.Total}, nil
}

// StorageKey builds {ownerID}/{uuid}{ext}. Every call yields a new key, so a
// retried publish can never silently re-link an orphaned blob.
func StorageKey(ownerID, originalFilename string) string {
	ext := filepath.Ext(originalFilename)
	return ownerID + "/" + uuid.New().String() + ext
}

// TruncateCaption enforces the caption limit at the core boundary by
// truncating to model.CaptionMaxLen runes.
func TruncateCaption(caption string) string {
	runes := []rune(caption)
	if len(runes) <= model.CaptionMaxLen {
		return caption
	}
	return string(runes[:model.CaptionMaxLen])
}
