package model

import "time"

// CaptionMaxLen is the maximum caption length in runes. Enforced at the
// service boundary regardless of what the metadata store validates.
const CaptionMaxLen = 300

// MediaItem is a published image record. The blob it references always
// exists in object storage before the record does; the record itself is
// immutable after creation.
type MediaItem struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	StorageKey       string    `json:"storage_key"`
	DisplayName      string    `json:"display_name"`
	Caption          string    `json:"caption,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	OwnerDisplayName string    `json:"owner_display_name"`
	URL              string    `json:"url,omitempty"`
}

// Profile holds the denormalized owner identity joined into feed rows.
type Profile struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}
