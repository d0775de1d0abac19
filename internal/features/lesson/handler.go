package lesson

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	coursefeature "github.com/courseflow/video-server-go/internal/features/course"
	"github.com/courseflow/video-server-go/internal/features/updates"
	"github.com/courseflow/video-server-go/pkg/cache"
	"github.com/courseflow/video-server-go/pkg/metrics"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/pagination"
	"github.com/courseflow/video-server-go/pkg/request"
	"github.com/courseflow/video-server-go/pkg/response"
	"github.com/courseflow/video-server-go/pkg/types"
)

const statusCacheTTL = 30 * time.Second

// Handler processes lesson HTTP requests.
type Handler struct {
	db          *gorm.DB
	logger      *slog.Logger
	muxClient   *mux.Client
	signer      *mux.URLSigner
	cache       cache.Client
	broadcaster *updates.Broadcaster
	corsOrigin  string
}

// NewHandler constructs a lesson handler instance.
func NewHandler(db *gorm.DB, logger *slog.Logger, muxClient *mux.Client, signer *mux.URLSigner, cacheClient cache.Client, broadcaster *updates.Broadcaster, corsOrigin string) *Handler {
	return &Handler{
		db:          db,
		logger:      logger,
		muxClient:   muxClient,
		signer:      signer,
		cache:       cacheClient,
		broadcaster: broadcaster,
		corsOrigin:  corsOrigin,
	}
}

// List returns paginated lessons for a course.
func (h *Handler) List(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	if _, err := coursefeature.Get(h.db, courseID); err != nil {
		h.respondError(c, h.courseError(err), "failed to load course")
		return
	}

	params := pagination.Extract(c)
	keyword := c.Query("filterKeyword")
	activeOnly := c.Query("activeOnly") == "true"

	filters := ListFilters{
		CourseID:   courseID,
		Keyword:    keyword,
		ActiveOnly: activeOnly,
	}
	if raw := c.Query("status"); raw != "" {
		status := types.AssetStatus(raw)
		if !status.Valid() {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid status filter", nil)
			return
		}
		filters.Status = status
	}

	lessons, total, err := List(h.db, filters, params)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list lessons", err)
		return
	}

	response.Success(c, http.StatusOK, lessons, "", pagination.MetadataFrom(total, params))
}

// Create inserts a new lesson in pending state.
func (h *Handler) Create(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	if _, err := coursefeature.Get(h.db, courseID); err != nil {
		h.respondError(c, h.courseError(err), "failed to load course")
		return
	}

	var req struct {
		Name        string  `json:"name" binding:"required"`
		Description *string `json:"description"`
		ViewLimit   *int    `json:"viewLimit"`
		Order       *int    `json:"order"`
		Active      *bool   `json:"isActive"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson payload", err)
		return
	}

	lesson, err := Create(h.db, CreateInput{
		CourseID:    courseID,
		Name:        req.Name,
		Description: req.Description,
		ViewLimit:   req.ViewLimit,
		Order:       req.Order,
		Active:      req.Active,
	})

	if err != nil {
		h.respondError(c, err, "failed to create lesson")
		return
	}

	response.Created(c, lesson, "")
}

// GetByID fetches a single lesson.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	lesson, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	response.Success(c, http.StatusOK, lesson, "", nil)
}

// Update modifies an existing lesson.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	body := map[string]interface{}{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson payload", err)
		return
	}

	input := UpdateInput{}

	if value, ok := body["name"]; ok {
		str, err := request.ReadString(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "name must be a string", err)
			return
		}
		input.Name = &str
	}

	if value, ok := body["description"]; ok {
		input.DescProvided = true
		if value != nil {
			str, err := request.ReadString(value)
			if err != nil {
				response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "description must be a string", err)
				return
			}
			input.Description = &str
		}
	}

	if value, ok := body["viewLimit"]; ok {
		if value != nil {
			val, err := request.ReadInt(value)
			if err != nil {
				response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "viewLimit must be an integer", err)
				return
			}
			input.ViewLimit = &val
		}
	}

	if value, ok := body["order"]; ok {
		input.OrderProvided = true
		if value != nil {
			val, err := request.ReadInt(value)
			if err != nil {
				response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "order must be an integer", err)
				return
			}
			input.Order = &val
		}
	}

	if value, ok := body["isActive"]; ok {
		val, err := request.ReadBool(value)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "isActive must be boolean", err)
			return
		}
		input.Active = &val
	}

	lesson, err := Update(h.db, id, input)
	if err != nil {
		h.respondError(c, err, "failed to update lesson")
		return
	}

	response.Success(c, http.StatusOK, lesson, "", nil)
}

// Delete removes a lesson and best-effort deletes its provider asset.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	lesson, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	if err := Delete(h.db, id); err != nil {
		h.respondError(c, err, "failed to delete lesson")
		return
	}

	h.invalidateStatus(c.Request.Context(), id)

	if lesson.ProviderAssetID != nil && *lesson.ProviderAssetID != "" && h.muxClient.IsConfigured() {
		assetID := *lesson.ProviderAssetID
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := h.muxClient.DeleteAsset(ctx, assetID); err != nil {
				h.logger.Warn("failed to delete provider asset", "lessonId", id, "assetId", assetID, "error", err)
			}
		}()
	}

	response.Success(c, http.StatusOK, true, "", nil)
}

// UploadURL requests a one-time direct upload destination from the provider
// and attaches it to the lesson. A fresh call always supersedes any prior
// pending upload session.
func (h *Handler) UploadURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	if _, err := Get(h.db, id); err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	if !h.muxClient.IsConfigured() {
		response.ErrorWithLog(h.logger, c, http.StatusServiceUnavailable, "Video provider is not configured.", mux.ErrNotConfigured)
		return
	}

	upload, err := h.muxClient.CreateDirectUpload(c.Request.Context(), id.String(), h.corsOrigin)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusServiceUnavailable, "Video provider is unavailable.", err)
		return
	}

	if _, err := StartUpload(h.db, id, upload.ID); err != nil {
		h.respondError(c, err, "failed to attach upload session")
		return
	}

	h.invalidateStatus(c.Request.Context(), id)

	response.Success(c, http.StatusOK, gin.H{
		"uploadUrl": upload.URL,
		"uploadId":  upload.ID,
	}, "", nil)
}

type statusPayload struct {
	Status           types.AssetStatus `json:"status"`
	ProviderAssetID  *string           `json:"providerAssetId"`
	ProviderUploadID *string           `json:"providerUploadId"`
	PlaybackID       *string           `json:"playbackId"`
	DurationSeconds  int               `json:"durationSeconds"`
}

// Status is the reconciliation point-query clients call after reconnecting
// to the updates stream.
func (h *Handler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	key := statusCacheKey(id)

	var cached statusPayload
	if err := h.cache.GetJSON(c.Request.Context(), key, &cached); err == nil {
		response.Success(c, http.StatusOK, cached, "", nil)
		return
	}

	lesson, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	payload := statusPayload{
		Status:           lesson.Status,
		ProviderAssetID:  lesson.ProviderAssetID,
		ProviderUploadID: lesson.ProviderUploadID,
		PlaybackID:       lesson.ProviderPlaybackID,
		DurationSeconds:  lesson.Duration,
	}

	if err := h.cache.SetJSON(c.Request.Context(), key, payload, statusCacheTTL); err != nil {
		h.logger.Warn("failed to cache lesson status", "lessonId", id, "error", err)
	}

	response.Success(c, http.StatusOK, payload, "", nil)
}

// ThumbnailURL issues a signed (or unsigned, when signing is not configured)
// thumbnail URL for a ready lesson.
func (h *Handler) ThumbnailURL(c *gin.Context) {
	id, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	lesson, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	if lesson.Status != types.AssetStatusReady || lesson.ProviderPlaybackID == nil {
		h.respondError(c, ErrNotReady, "lesson video is not ready")
		return
	}

	opts := mux.ThumbnailOptions{}
	if raw := c.Query("time"); raw != "" {
		var seconds float64
		if _, err := fmt.Sscanf(raw, "%f", &seconds); err != nil || seconds < 0 {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "time must be a non-negative number", err)
			return
		}
		opts.TimeSeconds = &seconds
	}
	if raw := c.Query("width"); raw != "" {
		var width int
		if _, err := fmt.Sscanf(raw, "%d", &width); err != nil || width <= 0 {
			response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "width must be a positive integer", err)
			return
		}
		opts.Width = &width
	}

	signed, err := h.signer.ThumbnailURL(*lesson.ProviderPlaybackID, opts)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to sign thumbnail URL", err)
		return
	}

	metrics.RecordTokenIssued("thumbnail")

	response.Success(c, http.StatusOK, signed, "", nil)
}

func (h *Handler) invalidateStatus(ctx context.Context, id uuid.UUID) {
	if err := h.cache.Delete(ctx, statusCacheKey(id)); err != nil {
		h.logger.Warn("failed to invalidate lesson status cache", "lessonId", id, "error", err)
	}
}

func statusCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("lesson:status:%s", id)
}

func (h *Handler) courseError(err error) error {
	if errors.Is(err, coursefeature.ErrCourseNotFound) {
		return ErrCourseNotFound
	}
	return err
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrCourseNotFound):
		status = http.StatusNotFound
		message = "Course not found."
	case errors.Is(err, ErrLessonNotFound):
		status = http.StatusNotFound
		message = "Lesson not found."
	case errors.Is(err, ErrNameRequired):
		status = http.StatusBadRequest
		message = "Lesson name is required."
	case errors.Is(err, ErrNameLength):
		status = http.StatusBadRequest
		message = "Lesson name must be between 3 and 80 characters."
	case errors.Is(err, ErrDescriptionTooLong):
		status = http.StatusBadRequest
		message = "Lesson description cannot exceed 1000 characters."
	case errors.Is(err, ErrOrderInvalid):
		status = http.StatusBadRequest
		message = "Lesson order cannot be negative."
	case errors.Is(err, ErrViewLimitInvalid):
		status = http.StatusBadRequest
		message = "Lesson view limit must be positive."
	case errors.Is(err, ErrNotReady):
		status = http.StatusConflict
		message = "Lesson video is not ready."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
