package userview

import (
	"errors"
	"net/http"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	lessonfeature "github.com/courseflow/video-server-go/internal/features/lesson"
	"github.com/courseflow/video-server-go/internal/middleware"
	"github.com/courseflow/video-server-go/pkg/metrics"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/response"
	"github.com/courseflow/video-server-go/pkg/types"
)

// Handler processes view quota HTTP requests.
type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
	signer *mux.URLSigner
}

// NewHandler constructs a userview handler instance.
func NewHandler(db *gorm.DB, logger *slog.Logger, signer *mux.URLSigner) *Handler {
	return &Handler{db: db, logger: logger, signer: signer}
}

// StartView grants a signed playback token if the caller's view quota
// allows another session. Staff roles are not quota-tracked.
func (h *Handler) StartView(c *gin.Context) {
	lessonID, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return
	}

	usr, ok := middleware.GetUserFromContext(c)
	if !ok {
		response.ErrorWithLog(h.logger, c, http.StatusUnauthorized, "Authentication required.", nil)
		return
	}

	lesson, err := lessonfeature.Get(h.db, lessonID)
	if err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	if lesson.Status != types.AssetStatusReady || lesson.ProviderPlaybackID == nil {
		h.respondError(c, lessonfeature.ErrNotReady, "lesson video is not ready")
		return
	}

	if usr.UserType != types.UserTypeStudent {
		signed, err := h.signer.PlaybackURL(*lesson.ProviderPlaybackID)
		if err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to sign playback URL", err)
			return
		}
		metrics.RecordTokenIssued("playback")
		response.Success(c, http.StatusOK, signed, "", nil)
		return
	}

	decision, err := CheckAndReserve(h.db, usr.ID, lessonID, lesson.ViewLimit)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to check view quota", err)
		return
	}

	metrics.RecordQuotaDecision(decision.Granted)

	if !decision.Granted {
		response.ErrorWithData(h.logger, c, http.StatusForbidden, "View limit reached for this lesson.", gin.H{
			"viewsUsed": decision.View.ViewCount,
			"viewLimit": decision.EffectiveLimit,
		}, ErrQuotaExceeded)
		return
	}

	signed, err := h.signer.PlaybackURL(*lesson.ProviderPlaybackID)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to sign playback URL", err)
		return
	}

	metrics.RecordTokenIssued("playback")

	response.Success(c, http.StatusOK, gin.H{
		"token":     signed.Token,
		"url":       signed.URL,
		"expiresAt": signed.ExpiresAt,
		"viewsUsed": decision.View.ViewCount,
		"viewLimit": decision.EffectiveLimit,
	}, "", nil)
}

// SetViewLimit sets a per-user override limit for a lesson.
func (h *Handler) SetViewLimit(c *gin.Context) {
	userID, lessonID, ok := h.parsePair(c)
	if !ok {
		return
	}

	var req struct {
		Limit int `json:"limit" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid view limit payload", err)
		return
	}

	if _, err := lessonfeature.Get(h.db, lessonID); err != nil {
		h.respondError(c, err, "failed to load lesson")
		return
	}

	view, err := SetOverride(h.db, userID, lessonID, req.Limit)
	if err != nil {
		h.respondError(c, err, "failed to set view limit")
		return
	}

	response.Success(c, http.StatusOK, view, "", nil)
}

// ClearViewLimit removes a per-user override limit.
func (h *Handler) ClearViewLimit(c *gin.Context) {
	userID, lessonID, ok := h.parsePair(c)
	if !ok {
		return
	}

	if err := ClearOverride(h.db, userID, lessonID); err != nil {
		h.respondError(c, err, "failed to clear view limit")
		return
	}

	response.Success(c, http.StatusOK, true, "", nil)
}

// GetViews returns the ledger row for a user and lesson.
func (h *Handler) GetViews(c *gin.Context) {
	userID, lessonID, ok := h.parsePair(c)
	if !ok {
		return
	}

	view, err := GetView(h.db, userID, lessonID)
	if err != nil {
		h.respondError(c, err, "failed to load view record")
		return
	}

	response.Success(c, http.StatusOK, view, "", nil)
}

// ResetViews zeroes the view counter for a user and lesson.
func (h *Handler) ResetViews(c *gin.Context) {
	userID, lessonID, ok := h.parsePair(c)
	if !ok {
		return
	}

	if err := ResetCount(h.db, userID, lessonID); err != nil {
		h.respondError(c, err, "failed to reset view count")
		return
	}

	response.Success(c, http.StatusOK, true, "", nil)
}

// ListUserViews returns every ledger row for a user.
func (h *Handler) ListUserViews(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid user id", err)
		return
	}

	views, err := ListForUser(h.db, userID)
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list view records", err)
		return
	}

	response.Success(c, http.StatusOK, views, "", nil)
}

func (h *Handler) parsePair(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid user id", err)
		return uuid.Nil, uuid.Nil, false
	}

	lessonID, err := uuid.Parse(c.Param("lessonId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid lesson id", err)
		return uuid.Nil, uuid.Nil, false
	}

	return userID, lessonID, true
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, lessonfeature.ErrLessonNotFound):
		status = http.StatusNotFound
		message = "Lesson not found."
	case errors.Is(err, lessonfeature.ErrNotReady):
		status = http.StatusConflict
		message = "Lesson video is not ready."
	case errors.Is(err, ErrViewNotFound):
		status = http.StatusNotFound
		message = "View record not found."
	case errors.Is(err, ErrLimitInvalid):
		status = http.StatusBadRequest
		message = "View limit must be positive."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
