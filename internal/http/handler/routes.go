package handler

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"photofeed/internal/http/middleware"
	"photofeed/internal/model"
	"photofeed/internal/repository"
	"photofeed/internal/service"
	"photofeed/internal/ws"
)

// Deps bundles everything the route table needs.
type Deps struct {
	DB        *sql.DB
	Media     service.MediaService
	Profiles  repository.ProfileRepository
	WSManager *ws.Manager
	WSHub     *ws.Hub
	JWTSecret string
	Log       zerolog.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin; publish and feed logic live in their own packages.
func RegisterRoutes(app *fiber.App, d Deps) {
	auth := middleware.Auth(d.JWTSecret)

	app.Get("/health", HealthCheck(d.DB))
	app.Get("/healthz", LivenessProbe())

	app.Get("/images", ListImages(d.Media))
	app.Post("/images", auth, UploadImage(d.Media, d.Profiles, d.Log))

	app.Get("/feed", ws.Upgrade(), ws.FeedHandler(d.WSManager, d.WSHub))
}

// HealthCheck verifies DB connectivity.
func HealthCheck(db *sql.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe is a plain liveness endpoint.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// ListImages serves a feed page. An owner_id query parameter narrows the
// scope to one uploader; otherwise the global feed is returned.
func ListImages(svc service.MediaService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		offset, err := strconv.Atoi(c.Query("offset", "0"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_OFFSET", "invalid offset")
		}

		scope := model.GlobalScope()
		if owner := c.Query("owner_id"); owner != "" {
			scope = model.ByOwner(owner)
		}

		res, err := svc.List(c.UserContext(), scope, limit, offset)
		if err != nil {
			return writeError(c, fiber.StatusInternalServerError, "FETCH_FAILED", "feed fetch failed")
		}
		return c.JSON(res)
	}
}

// UploadImage publishes a new image for the authenticated session
// (multipart/form-data; field "file" plus an optional "caption"). The
// two-phase failure modes map to distinct error codes so the client can
// offer a retry without re-selecting the file.
func UploadImage(svc service.MediaService, profiles repository.ProfileRepository, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		session, ok := middleware.SessionFromCtx(c)
		if !ok {
			return fiber.ErrUnauthorized
		}

		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		ct := fh.Header.Get("Content-Type")
		if !strings.HasPrefix(ct, "image/") {
			return writeError(c, fiber.StatusUnsupportedMediaType, "UNSUPPORTED_TYPE", "only image uploads are accepted")
		}

		// Keep the profiles join resolvable; a failed upsert only degrades
		// the display name, never the upload.
		if session.DisplayName != "" {
			if err := profiles.Upsert(c.UserContext(), &model.Profile{
				UserID:      session.UserID,
				DisplayName: session.DisplayName,
			}); err != nil {
				log.Warn().Str("user_id", session.UserID).Err(err).Msg("profile upsert failed")
			}
		}

		item, err := svc.Publish(c.UserContext(), f, service.PublishInput{
			OwnerID:     session.UserID,
			DisplayName: fh.Filename,
			Caption:     c.FormValue("caption"),
			ContentType: ct,
			Size:        fh.Size,
		})
		if err != nil {
			switch {
			case errors.Is(err, service.ErrStorageWrite):
				return writeError(c, fiber.StatusBadGateway, "STORAGE_WRITE_FAILED", "could not store file")
			case errors.Is(err, service.ErrMetadataWrite):
				return writeError(c, fiber.StatusBadGateway, "METADATA_WRITE_FAILED", "could not record upload")
			default:
				return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	}
}
