package lesson

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/pkg/types"
)

// TransitionResult describes what a lifecycle transition actually did.
// Transitions are linearized through conditional row updates, so concurrent
// webhook deliveries for the same lesson cannot interleave incoherently.
type TransitionResult int

const (
	// TransitionApplied means the row moved to the target state.
	TransitionApplied TransitionResult = iota
	// TransitionDuplicate means the row was already in the target state for
	// the same provider asset. Safe to re-broadcast, nothing was written.
	TransitionDuplicate
	// TransitionIgnored means the row was in a state the event cannot act on.
	TransitionIgnored
)

// StartUpload attaches a fresh upload session to the lesson. It always
// supersedes whatever came before: status returns to pending and stale
// provider identifiers are cleared.
func StartUpload(db *gorm.DB, id uuid.UUID, uploadID string) (Lesson, error) {
	result := db.Model(&Lesson{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":               types.AssetStatusPending,
			"provider_upload_id":   uploadID,
			"provider_asset_id":    nil,
			"provider_playback_id": nil,
			"duration":             0,
		})
	if result.Error != nil {
		return Lesson{}, result.Error
	}
	if result.RowsAffected == 0 {
		return Lesson{}, ErrLessonNotFound
	}

	return Get(db, id)
}

// MarkReady moves a pending lesson to ready, recording the provider asset,
// its playback identifier and the final duration. Only pending rows
// transition; a ready row that already carries the same asset identifier is
// reported as a duplicate delivery.
func MarkReady(db *gorm.DB, id uuid.UUID, assetID, playbackID string, durationSeconds int) (TransitionResult, Lesson, error) {
	result := db.Model(&Lesson{}).
		Where("id = ? AND status = ?", id, types.AssetStatusPending).
		Updates(map[string]interface{}{
			"status":               types.AssetStatusReady,
			"provider_asset_id":    assetID,
			"provider_playback_id": playbackID,
			"duration":             durationSeconds,
		})
	if result.Error != nil {
		return TransitionIgnored, Lesson{}, result.Error
	}

	lesson, err := Get(db, id)
	if err != nil {
		return TransitionIgnored, Lesson{}, err
	}

	if result.RowsAffected > 0 {
		return TransitionApplied, lesson, nil
	}

	if lesson.Status == types.AssetStatusReady &&
		lesson.ProviderAssetID != nil && *lesson.ProviderAssetID == assetID {
		return TransitionDuplicate, lesson, nil
	}

	return TransitionIgnored, lesson, nil
}

// MarkFailed moves a pending lesson to error. The provider asset identifier
// is kept when present so repeated failure deliveries can be recognized.
func MarkFailed(db *gorm.DB, id uuid.UUID, assetID string) (TransitionResult, Lesson, error) {
	updates := map[string]interface{}{
		"status": types.AssetStatusError,
	}
	if assetID != "" {
		updates["provider_asset_id"] = assetID
	}

	result := db.Model(&Lesson{}).
		Where("id = ? AND status = ?", id, types.AssetStatusPending).
		Updates(updates)
	if result.Error != nil {
		return TransitionIgnored, Lesson{}, result.Error
	}

	lesson, err := Get(db, id)
	if err != nil {
		return TransitionIgnored, Lesson{}, err
	}

	if result.RowsAffected > 0 {
		return TransitionApplied, lesson, nil
	}

	if lesson.Status == types.AssetStatusError {
		sameAsset := assetID == "" ||
			(lesson.ProviderAssetID != nil && *lesson.ProviderAssetID == assetID)
		if sameAsset {
			return TransitionDuplicate, lesson, nil
		}
	}

	return TransitionIgnored, lesson, nil
}

// FindByCorrelation resolves the lesson a provider callback refers to. The
// passthrough metadata carries the lesson id when the upload session was
// created by us; otherwise fall back to provider identifiers already on file.
func FindByCorrelation(db *gorm.DB, passthrough, assetID, uploadID string) (Lesson, error) {
	if passthrough != "" {
		if id, err := uuid.Parse(passthrough); err == nil {
			lesson, err := Get(db, id)
			if err == nil {
				return lesson, nil
			}
			if err != ErrLessonNotFound {
				return Lesson{}, err
			}
		}
	}

	if assetID != "" {
		var lesson Lesson
		err := db.First(&lesson, "provider_asset_id = ?", assetID).Error
		if err == nil {
			return lesson, nil
		}
		if err != gorm.ErrRecordNotFound {
			return Lesson{}, err
		}
	}

	if uploadID != "" {
		var lesson Lesson
		err := db.First(&lesson, "provider_upload_id = ?", uploadID).Error
		if err == nil {
			return lesson, nil
		}
		if err != gorm.ErrRecordNotFound {
			return Lesson{}, err
		}
	}

	return Lesson{}, ErrNoCorrelation
}
