package lesson

import (
	"bytes"
	"encoding/json"
	"fmt"
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

func newTestHandler(t *testing.T, db *gorm.DB) (*Handler, *updates.Broadcaster) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	signer, err := mux.NewURLSigner("", "", "https://stream.test", "https://image.test", 3600)
	require.NoError(t, err)

	cacheClient, err := cache.NewRedisClient("", "", 0)
	require.NoError(t, err)

	broadcaster := updates.NewBroadcaster(8)

	handler := NewHandler(db, logger, mux.NewClient("", "", ""), signer, cacheClient, broadcaster, "*")

	return handler, broadcaster
}

func newWebhookRouter(handler *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/video", handler.Webhook)
	router.GET("/lessons/:lessonId/status", handler.Status)
	return router
}

func postWebhook(t *testing.T, router *gin.Engine, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body []byte
	switch v := payload.(type) {
	case string:
		body = []byte(v)
	default:
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/video", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)

	return rec
}

func readyPayload(passthrough, assetID, playbackID string, duration float64) map[string]interface{} {
	return map[string]interface{}{
		"type": mux.EventAssetReady,
		"data": map[string]interface{}{
			"id":          assetID,
			"status":      "ready",
			"passthrough": passthrough,
			"duration":    duration,
			"playback_ids": []map[string]string{
				{"id": playbackID, "policy": "signed"},
			},
		},
	}
}

func TestWebhookReadyFlow(t *testing.T) {
	db := newTestDB(t)
	handler, broadcaster := newTestHandler(t, db)
	router := newWebhookRouter(handler)

	lesson := createTestLesson(t, db)
	_, err := StartUpload(db, lesson.ID, "upload-1")
	require.NoError(t, err)

	events, unsubscribe := broadcaster.Subscribe(lesson.CourseID)
	defer unsubscribe()

	rec := postWebhook(t, router, readyPayload(lesson.ID.String(), "asset-1", "pb123", 600))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	statusRec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/lessons/%s/status", lesson.ID), nil)
	router.ServeHTTP(statusRec, req)
	require.Equal(t, http.StatusOK, statusRec.Code)

	var envelope struct {
		Success bool          `json:"success"`
		Data    statusPayload `json:"data"`
	}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &envelope))

	assert.True(t, envelope.Success)
	assert.Equal(t, types.AssetStatusReady, envelope.Data.Status)
	require.NotNil(t, envelope.Data.PlaybackID)
	assert.Equal(t, "pb123", *envelope.Data.PlaybackID)
	assert.Equal(t, 600, envelope.Data.DurationSeconds)

	select {
	case event := <-events:
		assert.Equal(t, lesson.ID, event.LessonID)
		assert.Equal(t, types.AssetStatusReady, event.Status)
		assert.Equal(t, "pb123", event.PlaybackID)
		assert.Equal(t, 600, event.DurationSeconds)
	default:
		t.Fatal("expected a broadcast event")
	}
}

func TestWebhookDuplicateDeliveryIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	handler, broadcaster := newTestHandler(t, db)
	router := newWebhookRouter(handler)

	lesson := createTestLesson(t, db)
	_, err := StartUpload(db, lesson.ID, "upload-1")
	require.NoError(t, err)

	events, unsubscribe := broadcaster.Subscribe(lesson.CourseID)
	defer unsubscribe()

	payload := readyPayload(lesson.ID.String(), "asset-1", "pb123", 600)

	rec := postWebhook(t, router, payload)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = postWebhook(t, router, payload)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := Get(db, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AssetStatusReady, stored.Status)
	assert.Equal(t, 600, stored.Duration)

	// A repeated broadcast is allowed, but no further state change happened.
	received := 0
	for {
		select {
		case <-events:
			received++
			continue
		default:
		}
		break
	}
	assert.LessOrEqual(t, received, 2)
	assert.GreaterOrEqual(t, received, 1)
}

func TestWebhookMalformedPayloads(t *testing.T) {
	db := newTestDB(t)
	handler, _ := newTestHandler(t, db)
	router := newWebhookRouter(handler)

	lesson := createTestLesson(t, db)

	rec := postWebhook(t, router, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postWebhook(t, router, "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postWebhook(t, router, map[string]interface{}{"type": "", "data": map[string]string{"id": "x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postWebhook(t, router, map[string]interface{}{"type": mux.EventAssetReady})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Ready without a playback id must not transition state.
	rec = postWebhook(t, router, map[string]interface{}{
		"type": mux.EventAssetReady,
		"data": map[string]interface{}{
			"id":          "asset-1",
			"status":      "ready",
			"passthrough": lesson.ID.String(),
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	stored, err := Get(db, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AssetStatusPending, stored.Status)
}

func TestWebhookUncorrelatedIsDiscardedSilently(t *testing.T) {
	db := newTestDB(t)
	handler, _ := newTestHandler(t, db)
	router := newWebhookRouter(handler)

	rec := postWebhook(t, router, readyPayload("5cf6f18e-9056-4f0c-8a6f-8d3f15aaf2b1", "asset-x", "pb-x", 10))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = postWebhook(t, router, map[string]interface{}{
		"type": "video.asset.created",
		"data": map[string]interface{}{"id": "asset-x"},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebhookErrorEventBroadcasts(t *testing.T) {
	db := newTestDB(t)
	handler, broadcaster := newTestHandler(t, db)
	router := newWebhookRouter(handler)

	lesson := createTestLesson(t, db)
	_, err := StartUpload(db, lesson.ID, "upload-1")
	require.NoError(t, err)

	events, unsubscribe := broadcaster.Subscribe(lesson.CourseID)
	defer unsubscribe()

	payload := map[string]interface{}{
		"type": mux.EventAssetErrored,
		"data": map[string]interface{}{
			"id":          "asset-1",
			"status":      "errored",
			"passthrough": lesson.ID.String(),
			"errors": map[string]interface{}{
				"type":     "invalid_input",
				"messages": []string{"unsupported codec"},
			},
		},
	}

	rec := postWebhook(t, router, payload)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	select {
	case event := <-events:
		assert.Equal(t, types.AssetStatusError, event.Status)
		assert.Equal(t, "unsupported codec", event.Reason)
	default:
		t.Fatal("expected an error broadcast")
	}

	// Second identical delivery leaves the row untouched.
	rec = postWebhook(t, router, payload)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	stored, err := Get(db, lesson.ID)
	require.NoError(t, err)
	assert.Equal(t, types.AssetStatusError, stored.Status)
}
