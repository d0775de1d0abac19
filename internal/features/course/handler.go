package course

import (
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/pkg/pagination"
	"github.com/courseflow/video-server-go/pkg/request"
	"github.com/courseflow/video-server-go/pkg/response"
)

// Handler processes course HTTP requests.
type Handler struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewHandler constructs a course handler instance.
func NewHandler(db *gorm.DB, logger *slog.Logger) *Handler {
	return &Handler{db: db, logger: logger}
}

type courseWithLessonSummary struct {
	Course
	Lessons []lessonSummary `gorm:"foreignKey:CourseID" json:"lessons"`
}

type lessonSummary struct {
	ID       uuid.UUID `json:"id"`
	CourseID uuid.UUID `json:"courseId"`
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	Order    int       `json:"order"`
}

func (lessonSummary) TableName() string {
	return "lessons"
}

// List returns paginated courses.
func (h *Handler) List(c *gin.Context) {
	if strings.EqualFold(c.Query("getAllWithLessons"), "true") {
		courses := make([]courseWithLessonSummary, 0)
		query := h.db.Model(&Course{}).Order("\"order\" ASC")

		if err := query.
			Preload("Lessons", func(db *gorm.DB) *gorm.DB {
				return db.Select("id", "course_id", "name", "status", "\"order\"").Order("\"order\" ASC")
			}).
			Find(&courses).Error; err != nil {
			response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to load courses", err)
			return
		}

		response.Success(c, http.StatusOK, courses, "", nil)
		return
	}

	params := pagination.Extract(c)
	keyword := c.Query("filterKeyword")
	activeOnly := c.Query("activeOnly") == "true"

	courses, total, err := List(h.db, ListFilters{
		Keyword:    keyword,
		ActiveOnly: activeOnly,
	}, params)

	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusInternalServerError, "failed to list courses", err)
		return
	}

	response.Success(c, http.StatusOK, courses, "", pagination.MetadataFrom(total, params))
}

// Create inserts a new course.
func (h *Handler) Create(c *gin.Context) {
	var req struct {
		Name        string   `json:"name" binding:"required"`
		Description *string  `json:"description"`
		Tags        []string `json:"tags"`
		Order       *int     `json:"order"`
		Active      *bool    `json:"isActive"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course payload", err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "'name' is required.", nil)
		return
	}

	course, err := Create(h.db, CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Tags:        req.Tags,
		Order:       req.Order,
		Active:      req.Active,
	})

	if err != nil {
		h.respondError(c, err, "failed to create course")
		return
	}

	response.Created(c, course, "")
}

// GetByID fetches a single course.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	course, err := Get(h.db, id)
	if err != nil {
		h.respondError(c, err, "failed to load course")
		return
	}

	response.Success(c, http.StatusOK, course, "", nil)
}

// Update modifies an existing course.
func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	body := map[string]interface{}{}
	if err := c.ShouldBindJSON(&body); err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course payload", err)
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

	if value, ok := body["tags"]; ok {
		input.TagsProvided = true
		if value != nil {
			raw, isList := value.([]interface{})
			if !isList {
				response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "tags must be an array of strings", nil)
				return
			}
			tags := make([]string, 0, len(raw))
			for _, item := range raw {
				str, err := request.ReadString(item)
				if err != nil {
					response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "tags must be an array of strings", err)
					return
				}
				tags = append(tags, str)
			}
			input.Tags = tags
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

	course, err := Update(h.db, id, input)
	if err != nil {
		h.respondError(c, err, "failed to update course")
		return
	}

	response.Success(c, http.StatusOK, course, "", nil)
}

// Delete removes a course.
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("courseId"))
	if err != nil {
		response.ErrorWithLog(h.logger, c, http.StatusBadRequest, "invalid course id", err)
		return
	}

	if err := Delete(h.db, id); err != nil {
		h.respondError(c, err, "failed to delete course")
		return
	}

	response.Success(c, http.StatusOK, true, "", nil)
}

func (h *Handler) respondError(c *gin.Context, err error, fallback string) {
	status := http.StatusInternalServerError
	message := fallback

	switch {
	case errors.Is(err, ErrCourseNotFound):
		status = http.StatusNotFound
		message = "Course not found."
	case errors.Is(err, ErrNameRequired):
		status = http.StatusBadRequest
		message = "Course name is required."
	case errors.Is(err, ErrOrderTaken):
		status = http.StatusConflict
		message = "Course order already in use."
	}

	response.ErrorWithLog(h.logger, c, status, message, err)
}
