package updates

import (
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/internal/features/course"
	"github.com/courseflow/video-server-go/pkg/response"
)

// Handler serves the long-lived course updates stream.
type Handler struct {
	db          *gorm.DB
	logger      *slog.Logger
	broadcaster *Broadcaster
	keepAlive   time.Duration
}

// NewHandler constructs an updates handler instance.
func NewHandler(db *gorm.DB, logger *slog.Logger, broadcaster *Broadcaster, keepAlive time.Duration) *Handler {
	if keepAlive <= 0 {
		keepAlive = 25 * time.Second
	}
	return &Handler{
		db:          db,
		logger:      logger,
		broadcaster: broadcaster,
		keepAlive:   keepAlive,
	}
}

// Stream subscribes the caller to lesson updates for one course over SSE.
// The response never completes on its own; it ends when the peer disconnects.
func (h *Handler) Stream(c *gin.Context) {
	courseID, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	if _, err := course.Get(h.db, courseID); err != nil {
		if err == course.ErrCourseNotFound {
			response.ErrorWithLog(h.logger, c, http.StatusNotFound, "Course not found.", err)
		} else {
			response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to load course", err)
		}
		return
	}

	events, unsubscribe := h.broadcaster.Subscribe(courseID)
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.SSEvent("connected", gin.H{"courseId": courseID})
	c.Writer.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	clientGone := c.Request.Context().Done()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-clientGone:
			return false
		case event := <-events:
			c.SSEvent("lesson:updated", event)
			return true
		case <-ticker.C:
			c.SSEvent("keep-alive", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}
