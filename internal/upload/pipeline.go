package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"

	// Preview decoding for the common web image formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"photofeed/internal/model"
	"photofeed/internal/service"
)

var (
	// ErrUnsupportedType means the selected file is not an image.
	ErrUnsupportedType = errors.New("unsupported file type")
	// ErrAlreadyInProgress means a publish for the current draft is still
	// in flight; the call is rejected, never queued.
	ErrAlreadyInProgress = errors.New("publish already in progress")
	// ErrNoDraft means no file has been selected.
	ErrNoDraft = errors.New("no draft selected")
)

// Preview is the decoded, displayable summary of a selected file.
type Preview struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// Draft is the ephemeral pre-publish state: raw bytes, a decoded preview
// and a caption. It lives only in memory and is destroyed on publish or
// cancel.
type Draft struct {
	Name        string  `json:"name"`
	ContentType string  `json:"content_type"`
	Data        []byte  `json:"-"`
	Caption     string  `json:"caption"`
	Preview     Preview `json:"preview"`
}

// Pipeline is the upload-and-publish state machine for one client: a
// single draft slot plus the two-phase publish delegated to the media
// service. At most one draft exists at a time and at most one publish runs
// at a time. The pipeline performs no automatic retries; every failure is
// returned to the caller, who may retry with the draft still in place.
type Pipeline struct {
	svc service.MediaService
	log zerolog.Logger

	mu       sync.Mutex
	draft    *Draft
	gen      uint64
	inFlight bool
}

// NewPipeline builds a pipeline on top of the media service.
func NewPipeline(svc service.MediaService, log zerolog.Logger) *Pipeline {
	return &Pipeline{svc: svc, log: log}
}

// SelectFile validates the declared content type, decodes a preview and
// installs the draft, replacing any existing one. No network I/O happens
// here. Selecting while a publish is in flight is rejected.
func (p *Pipeline) SelectFile(name, contentType string, data []byte) (Draft, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return Draft{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Draft{}, fmt.Errorf("%w: decode preview: %v", ErrUnsupportedType, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight {
		return Draft{}, ErrAlreadyInProgress
	}
	p.gen++
	p.draft = &Draft{
		Name:        name,
		ContentType: contentType,
		Data:        data,
		Preview:     Preview{Width: cfg.Width, Height: cfg.Height, Format: format},
	}
	return *p.draft, nil
}

// UpdateCaption sets the draft caption, truncating past the limit.
func (p *Pipeline) UpdateCaption(text string) (Draft, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draft == nil {
		return Draft{}, ErrNoDraft
	}
	p.draft.Caption = service.TruncateCaption(text)
	return *p.draft, nil
}

// Draft returns the current draft, if any.
func (p *Pipeline) Draft() (Draft, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.draft == nil {
		return Draft{}, false
	}
	return *p.draft, true
}

// Cancel discards the draft and its preview. Idempotent; makes no network
// calls. Cancelling while a publish is in flight empties the slot; the
// completing publish will not resurrect it.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.draft = nil
	p.gen++
}

// Publish runs the two-phase write for the current draft on behalf of the
// session owner. Exactly one publish runs at a time; concurrent calls get
// ErrAlreadyInProgress. On failure the draft stays in place so the caller
// can retry (each retry writes under a fresh storage key); on success the
// slot is cleared.
func (p *Pipeline) Publish(ctx context.Context, session model.Session) (*model.MediaItem, error) {
	p.mu.Lock()
	if p.draft == nil {
		p.mu.Unlock()
		return nil, ErrNoDraft
	}
	if p.inFlight {
		p.mu.Unlock()
		return nil, ErrAlreadyInProgress
	}
	d := *p.draft
	gen := p.gen
	p.inFlight = true
	p.mu.Unlock()

	item, err := p.svc.Publish(ctx, bytes.NewReader(d.Data), service.PublishInput{
		OwnerID:     session.UserID,
		DisplayName: d.Name,
		Caption:     d.Caption,
		ContentType: d.ContentType,
		Size:        int64(len(d.Data)),
	})

	p.mu.Lock()
	p.inFlight = false
	// Clear the slot only on success and only if this is still the same
	// draft; a cancel or re-select that raced the publish wins.
	if err == nil && p.gen == gen {
		p.draft = nil
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return item, nil
}
