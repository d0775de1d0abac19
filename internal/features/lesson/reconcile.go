package lesson

import (
	"context"
	"errors"
	"math"
	"time"

	"log/slog"

	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/internal/features/updates"
	"github.com/courseflow/video-server-go/pkg/cache"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/types"
)

// ReconcileJob re-queries the provider for lessons stuck in pending longer
// than the stale threshold. Webhooks can be lost; this is the synchronous
// fallback that moves such lessons to their real state.
type ReconcileJob struct {
	db          *gorm.DB
	muxClient   *mux.Client
	signer      *mux.URLSigner
	cache       cache.Client
	broadcaster *updates.Broadcaster
	logger      *slog.Logger
	staleAfter  time.Duration
}

// NewReconcileJob constructs the reconcile job.
func NewReconcileJob(db *gorm.DB, muxClient *mux.Client, signer *mux.URLSigner, cacheClient cache.Client, broadcaster *updates.Broadcaster, logger *slog.Logger, staleAfter time.Duration) *ReconcileJob {
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &ReconcileJob{
		db:          db,
		muxClient:   muxClient,
		signer:      signer,
		cache:       cacheClient,
		broadcaster: broadcaster,
		logger:      logger,
		staleAfter:  staleAfter,
	}
}

// Name identifies the job in scheduler logs.
func (j *ReconcileJob) Name() string { return "lesson-status-reconcile" }

// Execute scans stale pending lessons and resolves each against the provider.
// Per-lesson failures are logged and skipped; one bad lesson never blocks
// the rest of the batch.
func (j *ReconcileJob) Execute(ctx context.Context) error {
	if !j.muxClient.IsConfigured() {
		return nil
	}

	cutoff := time.Now().UTC().Add(-j.staleAfter)

	var stale []Lesson
	err := j.db.WithContext(ctx).
		Where("status = ? AND updated_at < ? AND (provider_upload_id IS NOT NULL OR provider_asset_id IS NOT NULL)",
			types.AssetStatusPending, cutoff).
		Limit(100).
		Find(&stale).Error
	if err != nil {
		return err
	}

	for i := range stale {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.reconcileLesson(ctx, &stale[i]); err != nil {
			j.logger.Warn("failed to reconcile lesson status",
				"lessonId", stale[i].ID, "error", err)
		}
	}

	return nil
}

func (j *ReconcileJob) reconcileLesson(ctx context.Context, lesson *Lesson) error {
	asset, err := j.resolveAsset(ctx, lesson)
	if err != nil {
		return err
	}
	if asset == nil {
		return nil
	}

	switch asset.Status {
	case "ready":
		playbackID := asset.FirstPlaybackID()
		if playbackID == "" {
			return errors.New("provider reports ready without a playback id")
		}
		outcome, updated, err := MarkReady(j.db, lesson.ID, asset.ID, playbackID, int(math.Round(asset.Duration)))
		if err != nil {
			return err
		}
		if outcome == TransitionApplied {
			j.logger.Info("reconciled stale lesson to ready", "lessonId", lesson.ID, "assetId", asset.ID)
			j.afterTransition(ctx, updated, "")
		}
	case "errored":
		outcome, updated, err := MarkFailed(j.db, lesson.ID, asset.ID)
		if err != nil {
			return err
		}
		if outcome == TransitionApplied {
			j.logger.Warn("reconciled stale lesson to error", "lessonId", lesson.ID, "assetId", asset.ID, "reason", asset.ErrorReason())
			j.afterTransition(ctx, updated, asset.ErrorReason())
		}
	}

	return nil
}

// resolveAsset finds the provider asset for a pending lesson, following the
// upload session when no asset identifier is on file yet.
func (j *ReconcileJob) resolveAsset(ctx context.Context, lesson *Lesson) (*mux.Asset, error) {
	if lesson.ProviderAssetID != nil && *lesson.ProviderAssetID != "" {
		return j.muxClient.GetAsset(ctx, *lesson.ProviderAssetID)
	}

	if lesson.ProviderUploadID != nil && *lesson.ProviderUploadID != "" {
		upload, err := j.muxClient.GetUpload(ctx, *lesson.ProviderUploadID)
		if err != nil {
			return nil, err
		}
		if upload.AssetID == "" {
			// Upload not finished yet, nothing to reconcile.
			return nil, nil
		}
		return j.muxClient.GetAsset(ctx, upload.AssetID)
	}

	return nil, nil
}

func (j *ReconcileJob) afterTransition(ctx context.Context, lesson Lesson, reason string) {
	if err := j.cache.Delete(ctx, statusCacheKey(lesson.ID)); err != nil {
		j.logger.Warn("failed to invalidate lesson status cache", "lessonId", lesson.ID, "error", err)
	}

	event := updates.LessonUpdate{
		LessonID:        lesson.ID,
		Status:          lesson.Status,
		DurationSeconds: lesson.Duration,
		Reason:          reason,
	}
	if lesson.ProviderPlaybackID != nil {
		event.PlaybackID = *lesson.ProviderPlaybackID
		if thumb, err := j.signer.ThumbnailURL(*lesson.ProviderPlaybackID, mux.ThumbnailOptions{}); err == nil {
			event.ThumbnailURL = thumb.URL
		}
	}

	j.broadcaster.Publish(lesson.CourseID, event)
}
