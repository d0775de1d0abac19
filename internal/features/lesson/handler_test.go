package lesson

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/internal/features/updates"
	"github.com/courseflow/video-server-go/pkg/cache"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/types"
)

func newUploadHandler(t *testing.T, db *gorm.DB, client *mux.Client) *Handler {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := mux.NewURLSigner("", "", "https://stream.test", "https://image.test", 3600)
	require.NoError(t, err)

	cacheClient, err := cache.NewRedisClient("", "", 0)
	require.NoError(t, err)

	return NewHandler(db, logger, client, signer, cacheClient, updates.NewBroadcaster(8), "https://app.test")
}

func newUploadRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/lessons/:lessonId/upload-url", handler.UploadURL)
	return router
}

func postUploadURL(router *gin.Engine, lessonID string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/lessons/"+lessonID+"/upload-url", nil)
	router.ServeHTTP(rec, req)
	return rec
}

func TestUploadURLAttachesSession(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"upload-1","url":"https://storage.test/upload-1","status":"waiting"}}`))
	}))
	defer provider.Close()

	handler := newUploadHandler(t, db, mux.NewClient("token-id", "token-secret", provider.URL))
	router := newUploadRouter(handler)

	rec := postUploadURL(router, lesson.ID.String())
	require.Equal(t, http.StatusOK, rec.Code)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			UploadURL string `json:"uploadUrl"`
			UploadID  string `json:"uploadId"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "https://storage.test/upload-1", envelope.Data.UploadURL)
	assert.Equal(t, "upload-1", envelope.Data.UploadID)

	stored, err := Get(db, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AssetStatusPending, stored.Status)
	require.NotNil(t, stored.ProviderUploadID)
	assert.Equal(t, "upload-1", *stored.ProviderUploadID)
}

func TestUploadURLWithoutProviderCredentials(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	handler := newUploadHandler(t, db, mux.NewClient("", "", ""))
	router := newUploadRouter(handler)

	rec := postUploadURL(router, lesson.ID.String())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")

	stored, err := Get(db, lesson.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ProviderUploadID)
}

func TestUploadURLProviderFailure(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"messages":["upstream exploded"]}}`))
	}))
	defer provider.Close()

	handler := newUploadHandler(t, db, mux.NewClient("token-id", "token-secret", provider.URL))
	router := newUploadRouter(handler)

	rec := postUploadURL(router, lesson.ID.String())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "unavailable")

	// The failed request must not leave a half-attached session behind.
	stored, err := Get(db, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AssetStatusPending, stored.Status)
	assert.Nil(t, stored.ProviderUploadID)
}

func TestUploadURLUnknownLesson(t *testing.T) {
	db := newTestDB(t)

	handler := newUploadHandler(t, db, mux.NewClient("", "", ""))
	router := newUploadRouter(handler)

	rec := postUploadURL(router, "5cf6f18e-9056-4f0c-8a6f-8d3f15aaf2b1")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = postUploadURL(router, "not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
