package userview

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/pkg/types"
)

// View is the per-user per-lesson quota ledger row. The count only ever
// grows, except through an explicit administrative reset. A custom limit,
// when present, replaces the lesson's default for this user only.
type View struct {
	types.BaseModel

	UserID          uuid.UUID  `gorm:"type:uuid;not null;column:user_id;uniqueIndex:idx_user_lesson" json:"userId"`
	LessonID        uuid.UUID  `gorm:"type:uuid;not null;column:lesson_id;uniqueIndex:idx_user_lesson" json:"lessonId"`
	ViewCount       int        `gorm:"type:int;not null;default:0;column:view_count" json:"viewCount"`
	CustomViewLimit *int       `gorm:"type:int;column:custom_view_limit" json:"customViewLimit,omitempty"`
	LastViewedAt    *time.Time `gorm:"column:last_viewed_at" json:"lastViewedAt,omitempty"`
}

// TableName overrides the default table name.
func (View) TableName() string { return "user_views" }

// GetView retrieves the ledger row for a user and lesson.
func GetView(db *gorm.DB, userID, lessonID uuid.UUID) (View, error) {
	var view View
	if err := db.First(&view, "user_id = ? AND lesson_id = ?", userID, lessonID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return view, ErrViewNotFound
		}
		return view, err
	}
	return view, nil
}

// ListForUser retrieves all ledger rows for a user.
func ListForUser(db *gorm.DB, userID uuid.UUID) ([]View, error) {
	var views []View
	err := db.Where("user_id = ?", userID).
		Order("last_viewed_at DESC NULLS LAST").
		Find(&views).Error
	return views, err
}
