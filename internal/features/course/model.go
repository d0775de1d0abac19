package course

import (
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/pkg/pagination"
	"github.com/courseflow/video-server-go/pkg/types"
)

// Course groups lessons and scopes the live update stream.
type Course struct {
	types.BaseModel

	Name        string         `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Description *string        `gorm:"type:varchar(400)" json:"description,omitempty"`
	Tags        pq.StringArray `gorm:"type:text[]" json:"tags,omitempty"`
	Order       int            `gorm:"type:int;not null;default:0" json:"order"`
	Active      bool           `gorm:"type:boolean;not null;default:true;column:is_active" json:"isActive"`
}

// TableName overrides the default table name.
func (Course) TableName() string { return "courses" }

// ListFilters defines course query filters.
type ListFilters struct {
	Keyword    string
	ActiveOnly bool
}

// CreateInput carries data for creating a new course.
type CreateInput struct {
	Name        string
	Description *string
	Tags        []string
	Order       *int
	Active      *bool
}

// UpdateInput captures mutable course fields.
type UpdateInput struct {
	Name          *string
	DescProvided  bool
	Description   *string
	TagsProvided  bool
	Tags          []string
	OrderProvided bool
	Order         *int
	Active        *bool
}

// List retrieves paginated courses with filters.
func List(db *gorm.DB, filters ListFilters, params pagination.Params) ([]Course, int64, error) {
	query := db.Model(&Course{})

	if filters.Keyword != "" {
		keyword := "%" + strings.ToLower(filters.Keyword) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", keyword, keyword)
	}

	if filters.ActiveOnly {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var courses []Course
	err := query.
		Order("\"order\" ASC, name ASC").
		Offset(params.Skip).
		Limit(params.Limit).
		Find(&courses).Error

	return courses, total, err
}

// Get retrieves a course by ID.
func Get(db *gorm.DB, id uuid.UUID) (Course, error) {
	var course Course
	if err := db.First(&course, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return course, ErrCourseNotFound
		}
		return course, err
	}
	return course, nil
}

// Create inserts a new course.
func Create(db *gorm.DB, input CreateInput) (Course, error) {
	if input.Name == "" {
		return Course{}, ErrNameRequired
	}

	if input.Order != nil {
		var existing Course
		err := db.First(&existing, "\"order\" = ?", *input.Order).Error
		if err == nil {
			return Course{}, ErrOrderTaken
		}
		if err != gorm.ErrRecordNotFound {
			return Course{}, err
		}
	}

	active := true
	if input.Active != nil {
		active = *input.Active
	}

	order := 0
	if input.Order != nil {
		order = *input.Order
	}

	course := Course{
		Name:        input.Name,
		Description: input.Description,
		Tags:        input.Tags,
		Order:       order,
		Active:      active,
	}

	if err := db.Create(&course).Error; err != nil {
		return Course{}, err
	}

	return course, nil
}

// Update modifies an existing course.
func Update(db *gorm.DB, id uuid.UUID, input UpdateInput) (Course, error) {
	course, err := Get(db, id)
	if err != nil {
		return course, err
	}

	if input.Name != nil {
		if *input.Name == "" {
			return course, ErrNameRequired
		}
		course.Name = *input.Name
	}

	if input.DescProvided {
		course.Description = input.Description
	}

	if input.TagsProvided {
		course.Tags = input.Tags
	}

	if input.OrderProvided {
		if input.Order != nil {
			var existing Course
			err := db.First(&existing, "\"order\" = ? AND id != ?", *input.Order, id).Error
			if err == nil {
				return course, ErrOrderTaken
			}
			if err != gorm.ErrRecordNotFound {
				return course, err
			}
			course.Order = *input.Order
		} else {
			course.Order = 0
		}
	}

	if input.Active != nil {
		course.Active = *input.Active
	}

	if err := db.Save(&course).Error; err != nil {
		return course, err
	}

	return course, nil
}

// Delete removes a course.
func Delete(db *gorm.DB, id uuid.UUID) error {
	result := db.Delete(&Course{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCourseNotFound
	}
	return nil
}
