package lesson

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/pkg/pagination"
	"github.com/courseflow/video-server-go/pkg/types"
)

// Lesson represents a lesson within a course, together with the state of
// its video asset at the external provider.
type Lesson struct {
	types.BaseModel

	CourseID           uuid.UUID         `gorm:"type:uuid;not null;column:course_id;index" json:"courseId"`
	Name               string            `gorm:"type:varchar(80);not null" json:"name"`
	Description        *string           `gorm:"type:varchar(1000)" json:"description,omitempty"`
	Status             types.AssetStatus `gorm:"type:varchar(16);not null;default:'pending'" json:"status"`
	ProviderUploadID   *string           `gorm:"type:varchar(255);column:provider_upload_id;index" json:"providerUploadId,omitempty"`
	ProviderAssetID    *string           `gorm:"type:varchar(255);column:provider_asset_id;index" json:"providerAssetId,omitempty"`
	ProviderPlaybackID *string           `gorm:"type:varchar(255);column:provider_playback_id" json:"providerPlaybackId,omitempty"`
	Duration           int               `gorm:"type:int;not null;default:0" json:"duration"` // seconds, set on ready
	ViewLimit          int               `gorm:"type:int;not null;default:3;column:view_limit" json:"viewLimit"`
	Order              int               `gorm:"type:int;not null;default:0" json:"order"`
	Active             bool              `gorm:"type:boolean;not null;default:true;column:is_active" json:"isActive"`
}

// TableName overrides the default table name.
func (Lesson) TableName() string { return "lessons" }

// ListFilters defines lesson query filters.
type ListFilters struct {
	CourseID   uuid.UUID
	Keyword    string
	ActiveOnly bool
	Status     types.AssetStatus
}

// CreateInput carries data for creating a new lesson.
type CreateInput struct {
	CourseID    uuid.UUID
	Name        string
	Description *string
	ViewLimit   *int
	Order       *int
	Active      *bool
}

// UpdateInput captures mutable lesson fields.
type UpdateInput struct {
	Name          *string
	DescProvided  bool
	Description   *string
	ViewLimit     *int
	OrderProvided bool
	Order         *int
	Active        *bool
}

// List retrieves paginated lessons with filters.
func List(db *gorm.DB, filters ListFilters, params pagination.Params) ([]Lesson, int64, error) {
	query := db.Model(&Lesson{}).Where("course_id = ?", filters.CourseID)

	if filters.Keyword != "" {
		keyword := "%" + strings.ToLower(filters.Keyword) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", keyword, keyword)
	}

	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, total, err
	}

	var lessons []Lesson
	err := query.
		Order("\"order\" ASC, name ASC").
		Offset(params.Skip).
		Limit(params.Limit).
		Find(&lessons).Error

	return lessons, total, err
}

// Get retrieves a lesson by ID.
func Get(db *gorm.DB, id uuid.UUID) (Lesson, error) {
	var lesson Lesson
	if err := db.First(&lesson, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return lesson, ErrLessonNotFound
		}
		return lesson, err
	}
	return lesson, nil
}

// Create inserts a new lesson in pending state.
func Create(db *gorm.DB, input CreateInput) (Lesson, error) {
	trimmedName := strings.TrimSpace(input.Name)
	if trimmedName == "" {
		return Lesson{}, ErrNameRequired
	}
	if nameLen := utf8.RuneCountInString(trimmedName); nameLen < 3 || nameLen > 80 {
		return Lesson{}, ErrNameLength
	}

	var description *string
	if input.Description != nil {
		desc := strings.TrimSpace(*input.Description)
		if utf8.RuneCountInString(desc) > 1000 {
			return Lesson{}, ErrDescriptionTooLong
		}
		description = stringPtr(desc)
	}

	if input.Order != nil && *input.Order < 0 {
		return Lesson{}, ErrOrderInvalid
	}

	if input.ViewLimit != nil && *input.ViewLimit <= 0 {
		return Lesson{}, ErrViewLimitInvalid
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	order := 0
	if input.Order != nil {
		order = *input.Order
	}

	viewLimit := 3
	if input.ViewLimit != nil {
		viewLimit = *input.ViewLimit
	}

	lesson := Lesson{
		CourseID:    input.CourseID,
		Name:        trimmedName,
		Description: description,
		Status:      types.AssetStatusPending,
		ViewLimit:   viewLimit,
		Order:       order,
		Active:      active,
	}

	if err := db.Create(&lesson).Error; err != nil {
		return Lesson{}, err
	}

	return lesson, nil
}

// Update modifies an existing lesson. Only the editable columns are written,
// so a lifecycle transition landing mid-request is never reverted: status,
// provider identifiers and duration stay owned by the lifecycle functions.
func Update(db *gorm.DB, id uuid.UUID, input UpdateInput) (Lesson, error) {
	lesson, err := Get(db, id)
	if err != nil {
		return lesson, err
	}

	changes := map[string]interface{}{}

	if input.Name != nil {
		trimmed := strings.TrimSpace(*input.Name)
		if trimmed == "" {
			return lesson, ErrNameRequired
		}
		if nameLen := utf8.RuneCountInString(trimmed); nameLen < 3 || nameLen > 80 {
			return lesson, ErrNameLength
		}
		changes["name"] = trimmed
	}

	if input.DescProvided {
		if input.Description == nil {
			changes["description"] = nil
		} else {
			trimmed := strings.TrimSpace(*input.Description)
			if utf8.RuneCountInString(trimmed) > 1000 {
				return lesson, ErrDescriptionTooLong
			}
			changes["description"] = trimmed
		}
	}

	if input.ViewLimit != nil {
		if *input.ViewLimit <= 0 {
			return lesson, ErrViewLimitInvalid
		}
		changes["view_limit"] = *input.ViewLimit
	}

	if input.OrderProvided {
		order := 0
		if input.Order != nil {
			if *input.Order < 0 {
				return lesson, ErrOrderInvalid
			}
			order = *input.Order
		}
		changes["order"] = order
	}

	if input.Active != nil {
		changes["is_active"] = *input.Active
	}

	if len(changes) == 0 {
		return lesson, nil
	}

	if err := db.Model(&Lesson{}).Where("id = ?", id).Updates(changes).Error; err != nil {
		return lesson, err
	}

	return Get(db, id)
}

// Delete removes a lesson.
func Delete(db *gorm.DB, id uuid.UUID) error {
	result := db.Delete(&Lesson{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLessonNotFound
	}
	return nil
}

// GetByCourse retrieves all lessons for a course.
func GetByCourse(db *gorm.DB, courseID uuid.UUID) ([]Lesson, error) {
	var lessons []Lesson
	err := db.Where("course_id = ?", courseID).
		Order("\"order\" ASC, name ASC").
		Find(&lessons).Error
	return lessons, err
}

func stringPtr(value string) *string {
	v := value
	return &v
}
