package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"photofeed/internal/http/middleware"
	"photofeed/internal/model"
	repoMocks "photofeed/internal/repository/mocks"
	"photofeed/internal/service"
	serviceMocks "photofeed/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "SERVICE_UNAVAILABLE", body.Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListImages(t *testing.T) {
	mockSvc := new(serviceMocks.MockMediaService)
	app := fiber.New()
	app.Get("/images", ListImages(mockSvc))

	t.Run("global feed", func(t *testing.T) {
		expectedRes := &service.FeedPage{
			Items: []model.MediaItem{{ID: "id-1", DisplayName: "cat.png", OwnerDisplayName: "alice"}},
			Total: 1,
		}
		mockSvc.On("List", mock.Anything, model.GlobalScope(), 10, 0).Return(expectedRes, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/images?limit=10&offset=0", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var result service.FeedPage
		json.NewDecoder(resp.Body).Decode(&result)
		assert.Len(t, result.Items, 1)
		assert.Equal(t, 1, result.Total)
		mockSvc.AssertExpectations(t)
	})

	t.Run("owner feed", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, model.ByOwner("u1"), 10, 0).
			Return(&service.FeedPage{Items: []model.MediaItem{}, Total: 0}, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/images?owner_id=u1", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		mockSvc.AssertExpectations(t)
	})

	t.Run("invalid limit", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/images?limit=abc", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "INVALID_LIMIT", body.Error.Code)
	})

	t.Run("service error", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, model.GlobalScope(), 10, 0).
			Return(nil, service.ErrFetch).Once()

		req := httptest.NewRequest(http.MethodGet, "/images", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "FETCH_FAILED", body.Error.Code)
		mockSvc.AssertExpectations(t)
	})
}

// withSession injects a session the way middleware.Auth would.
func withSession(s model.Session) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.SessionLocalKey, s)
		return c.Next()
	}
}

func multipartBody(t *testing.T, caption, contentType string) (*bytes.Buffer, string) {
	t.Helper()
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)

	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", `form-data; name="file"; filename="cat.png"`)
	h.Set("Content-Type", contentType)
	fw, err := w.CreatePart(h)
	require.NoError(t, err)
	fw.Write([]byte("fake png bytes"))

	if caption != "" {
		require.NoError(t, w.WriteField("caption", caption))
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	session := model.Session{UserID: "u1", DisplayName: "alice"}

	newApp := func(svc service.MediaService, authed bool) (*fiber.App, *repoMocks.MockProfileRepository) {
		profiles := new(repoMocks.MockProfileRepository)
		app := fiber.New()
		if authed {
			app.Post("/images", withSession(session), UploadImage(svc, profiles, zerolog.Nop()))
		} else {
			app.Post("/images", UploadImage(svc, profiles, zerolog.Nop()))
		}
		return app, profiles
	}

	t.Run("success", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, profiles := newApp(mockSvc, true)

		profiles.On("Upsert", mock.Anything, &model.Profile{UserID: "u1", DisplayName: "alice"}).Return(nil)
		mockSvc.On("Publish", mock.Anything, mock.Anything, mock.MatchedBy(func(in service.PublishInput) bool {
			return in.OwnerID == "u1" && in.DisplayName == "cat.png" && in.Caption == "hi"
		})).Return(&model.MediaItem{ID: "gen-id", OwnerID: "u1"}, nil)

		body, contentType := multipartBody(t, "hi", "image/png")
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)

		var item model.MediaItem
		json.NewDecoder(resp.Body).Decode(&item)
		assert.Equal(t, "gen-id", item.ID)
		mockSvc.AssertExpectations(t)
		profiles.AssertExpectations(t)
	})

	t.Run("no session", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, _ := newApp(mockSvc, false)

		body, contentType := multipartBody(t, "", "image/png")
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		mockSvc.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("file missing", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, _ := newApp(mockSvc, true)

		req := httptest.NewRequest(http.MethodPost, "/images", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		var body errorPayload
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "FILE_REQUIRED", body.Error.Code)
	})

	t.Run("non-image content type rejected", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, _ := newApp(mockSvc, true)

		body, contentType := multipartBody(t, "", "application/pdf")
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
		var payload errorPayload
		json.NewDecoder(resp.Body).Decode(&payload)
		assert.Equal(t, "UNSUPPORTED_TYPE", payload.Error.Code)
		mockSvc.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("storage write failure", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, profiles := newApp(mockSvc, true)

		profiles.On("Upsert", mock.Anything, mock.Anything).Return(nil)
		mockSvc.On("Publish", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, service.ErrStorageWrite)

		body, contentType := multipartBody(t, "", "image/png")
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var payload errorPayload
		json.NewDecoder(resp.Body).Decode(&payload)
		assert.Equal(t, "STORAGE_WRITE_FAILED", payload.Error.Code)
	})

	t.Run("metadata write failure", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, profiles := newApp(mockSvc, true)

		profiles.On("Upsert", mock.Anything, mock.Anything).Return(nil)
		mockSvc.On("Publish", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, service.ErrMetadataWrite)

		body, contentType := multipartBody(t, "", "image/png")
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		var payload errorPayload
		json.NewDecoder(resp.Body).Decode(&payload)
		assert.Equal(t, "METADATA_WRITE_FAILED", payload.Error.Code)
	})

	t.Run("profile upsert failure does not block upload", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockMediaService)
		app, profiles := newApp(mockSvc, true)

		profiles.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db fail"))
		mockSvc.On("Publish", mock.Anything, mock.Anything, mock.Anything).
			Return(&model.MediaItem{ID: "gen-id"}, nil)

		body, contentType := multipartBody(t, "", "image/png")
		req := httptest.NewRequest(http.MethodPost, "/images", body)
		req.Header.Set("Content-Type", contentType)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})
}
