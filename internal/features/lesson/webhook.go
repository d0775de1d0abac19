package lesson

import (
	"errors"
	"io"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/courseflow/video-server-go/internal/features/updates"
	"github.com/courseflow/video-server-go/pkg/metrics"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/response"
)

// Webhook ingests provider callbacks and drives the lesson lifecycle.
// The provider delivers at least once, so the handler must tolerate
// duplicate and out-of-order deliveries. Malformed payloads get a 400 so
// the provider can flag them; everything else gets 204, including events
// we cannot correlate to a lesson.
func (h *Handler) Webhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "malformed")
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "failed to read webhook body", err)
		return
	}

	event, err := mux.ParseEvent(body)
	if err != nil {
		metrics.RecordWebhookEvent("unknown", "malformed")
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "malformed webhook payload", err)
		return
	}

	switch event.Type {
	case mux.EventAssetReady:
		h.handleAssetReady(c, event)
	case mux.EventAssetErrored, mux.EventUploadErrored:
		h.handleAssetErrored(c, event)
	default:
		// Not every provider event type is relevant. Acknowledge and move on.
		metrics.RecordWebhookEvent(event.Type, "ignored")
		c.Status(http.StatusNoContent)
	}
}

func (h *Handler) handleAssetReady(c *gin.Context, event *mux.Event) {
	asset := event.Data

	playbackID := asset.FirstPlaybackID()
	if playbackID == "" {
		metrics.RecordWebhookEvent(event.Type, "malformed")
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "ready event without playback id", mux.ErrMalformedEvent)
		return
	}

	lesson, err := FindByCorrelation(h.db, asset.Passthrough, asset.ID, asset.UploadID)
	if err != nil {
		if errors.Is(err, ErrNoCorrelation) {
			metrics.RecordWebhookEvent(event.Type, "uncorrelated")
			c.Status(http.StatusNoContent)
			return
		}
		metrics.RecordWebhookEvent(event.Type, "error")
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to correlate webhook", err)
		return
	}

	duration := int(math.Round(asset.Duration))

	outcome, updated, err := MarkReady(h.db, lesson.ID, asset.ID, playbackID, duration)
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to transition lesson", err)
		return
	}

	switch outcome {
	case TransitionApplied:
		metrics.RecordWebhookEvent(event.Type, "applied")
		h.logger.Info("lesson video ready",
			"lessonId", updated.ID,
			"assetId", asset.ID,
			"playbackId", playbackID,
			"duration", duration)
	case TransitionDuplicate:
		metrics.RecordWebhookEvent(event.Type, "duplicate")
	case TransitionIgnored:
		metrics.RecordWebhookEvent(event.Type, "ignored")
		c.Status(http.StatusNoContent)
		return
	}

	h.invalidateStatus(c.Request.Context(), updated.ID)
	h.broadcast(updated, "")

	c.Status(http.StatusNoContent)
}

func (h *Handler) handleAssetErrored(c *gin.Context, event *mux.Event) {
	asset := event.Data

	// Upload events carry the upload id in Data.ID, not an asset id.
	assetID, uploadID := asset.ID, asset.UploadID
	if event.Type == mux.EventUploadErrored {
		assetID, uploadID = "", asset.ID
	}

	lesson, err := FindByCorrelation(h.db, asset.Passthrough, assetID, uploadID)
	if err != nil {
		if errors.Is(err, ErrNoCorrelation) {
			metrics.RecordWebhookEvent(event.Type, "uncorrelated")
			c.Status(http.StatusNoContent)
			return
		}
		metrics.RecordWebhookEvent(event.Type, "error")
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to correlate webhook", err)
		return
	}

	outcome, updated, err := MarkFailed(h.db, lesson.ID, assetID)
	if err != nil {
		metrics.RecordWebhookEvent(event.Type, "error")
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to transition lesson", err)
		return
	}

	switch outcome {
	case TransitionApplied:
		metrics.RecordWebhookEvent(event.Type, "applied")
		h.logger.Warn("lesson video processing failed",
			"lessonId", updated.ID,
			"assetId", asset.ID,
			"reason", asset.ErrorReason())
	case TransitionDuplicate:
		metrics.RecordWebhookEvent(event.Type, "duplicate")
	case TransitionIgnored:
		metrics.RecordWebhookEvent(event.Type, "ignored")
		c.Status(http.StatusNoContent)
		return
	}

	h.invalidateStatus(c.Request.Context(), updated.ID)
	h.broadcast(updated, asset.ErrorReason())

	c.Status(http.StatusNoContent)
}

func (h *Handler) broadcast(lesson Lesson, reason string) {
	event := updates.LessonUpdate{
		LessonID:        lesson.ID,
		Status:          lesson.Status,
		DurationSeconds: lesson.Duration,
		Reason:          reason,
	}

	if lesson.ProviderPlaybackID != nil {
		event.PlaybackID = *lesson.ProviderPlaybackID

		if thumb, err := h.signer.ThumbnailURL(*lesson.ProviderPlaybackID, mux.ThumbnailOptions{}); err == nil {
			event.ThumbnailURL = thumb.URL
		}
	}

	h.broadcaster.Publish(lesson.CourseID, event)
}
