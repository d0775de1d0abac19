package userview

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Decision is the outcome of a quota check.
type Decision struct {
	Granted        bool
	View           View
	EffectiveLimit int
}

// CheckAndReserve consumes one view from the ledger if the effective limit
// allows it. The row is created lazily on first use. The increment and the
// limit check happen in a single conditional UPDATE, so two concurrent
// requests can never both take the last remaining view.
func CheckAndReserve(db *gorm.DB, userID, lessonID uuid.UUID, defaultLimit int) (Decision, error) {
	if err := ensureRow(db, userID, lessonID); err != nil {
		return Decision{}, err
	}

	now := time.Now().UTC()

	result := db.Exec(
		`UPDATE user_views
		 SET view_count = view_count + 1, last_viewed_at = ?, updated_at = ?
		 WHERE user_id = ? AND lesson_id = ? AND view_count < COALESCE(custom_view_limit, ?)`,
		now, now, userID, lessonID, defaultLimit,
	)
	if result.Error != nil {
		return Decision{}, result.Error
	}

	view, err := GetView(db, userID, lessonID)
	if err != nil {
		return Decision{}, err
	}

	effectiveLimit := defaultLimit
	if view.CustomViewLimit != nil {
		effectiveLimit = *view.CustomViewLimit
	}

	return Decision{
		Granted:        result.RowsAffected > 0,
		View:           view,
		EffectiveLimit: effectiveLimit,
	}, nil
}

// SetOverride sets a per-user view limit that replaces the lesson default.
// The view count is never touched.
func SetOverride(db *gorm.DB, userID, lessonID uuid.UUID, limit int) (View, error) {
	if limit <= 0 {
		return View{}, ErrLimitInvalid
	}

	if err := ensureRow(db, userID, lessonID); err != nil {
		return View{}, err
	}

	err := db.Model(&View{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Update("custom_view_limit", limit).Error
	if err != nil {
		return View{}, err
	}

	return GetView(db, userID, lessonID)
}

// ClearOverride removes the per-user limit, falling back to the lesson
// default. Clearing an absent row is a no-op.
func ClearOverride(db *gorm.DB, userID, lessonID uuid.UUID) error {
	return db.Model(&View{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Update("custom_view_limit", nil).Error
}

// ResetCount zeroes the view counter for a user and lesson. This is the
// only path that ever lowers a count.
func ResetCount(db *gorm.DB, userID, lessonID uuid.UUID) error {
	result := db.Model(&View{}).
		Where("user_id = ? AND lesson_id = ?", userID, lessonID).
		Update("view_count", 0)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrViewNotFound
	}
	return nil
}

// ensureRow lazily creates the ledger row. Conflicts with a concurrent
// insert for the same pair are ignored; either insert leaves a usable row.
func ensureRow(db *gorm.DB, userID, lessonID uuid.UUID) error {
	view := View{
		UserID:   userID,
		LessonID: lessonID,
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "lesson_id"}},
		DoNothing: true,
	}).Create(&view).Error
}
