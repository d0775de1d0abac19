package lesson

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/courseflow/video-server-go/pkg/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&Lesson{}))

	return db
}

func createTestLesson(t *testing.T, db *gorm.DB) Lesson {
	t.Helper()

	lesson, err := Create(db, CreateInput{
		CourseID: uuid.New(),
		Name:     "Intro to Calculus",
	})
	require.NoError(t, err)

	return lesson
}

func TestCreateStartsPending(t *testing.T) {
	db := newTestDB(t)

	lesson := createTestLesson(t, db)

	assert.Equal(t, types.AssetStatusPending, lesson.Status)
	assert.Nil(t, lesson.ProviderUploadID)
	assert.Nil(t, lesson.ProviderAssetID)
	assert.Nil(t, lesson.ProviderPlaybackID)
	assert.Equal(t, 3, lesson.ViewLimit)
}

func TestCreateValidation(t *testing.T) {
	db := newTestDB(t)

	_, err := Create(db, CreateInput{CourseID: uuid.New(), Name: "  "})
	assert.ErrorIs(t, err, ErrNameRequired)

	_, err = Create(db, CreateInput{CourseID: uuid.New(), Name: "ab"})
	assert.ErrorIs(t, err, ErrNameLength)

	zero := 0
	_, err = Create(db, CreateInput{CourseID: uuid.New(), Name: "Valid name", ViewLimit: &zero})
	assert.ErrorIs(t, err, ErrViewLimitInvalid)
}

func TestUpdateDoesNotRevertConcurrentTransition(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	// Commit a ready transition right after Update loads the row, the way a
	// webhook delivery landing mid-request would.
	fired := false
	err := db.Callback().Query().After("gorm:query").Register("ready_midway", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "lessons" {
			return
		}
		fired = true

		result, _, err := MarkReady(db, lesson.ID, "asset-1", "pb123", 600)
		require.NoError(t, err)
		require.Equal(t, TransitionApplied, result)
	})
	require.NoError(t, err)

	name := "Renamed lesson"
	updated, err := Update(db, lesson.ID, UpdateInput{Name: &name})
	require.NoError(t, err)
	require.True(t, fired)

	assert.Equal(t, "Renamed lesson", updated.Name)
	assert.Equal(t, types.AssetStatusReady, updated.Status)
	require.NotNil(t, updated.ProviderPlaybackID)
	assert.Equal(t, "pb123", *updated.ProviderPlaybackID)
	assert.Equal(t, 600, updated.Duration)
}

func TestUpdateEditableFields(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	name := "Limits and Continuity"
	limit := 5
	updated, err := Update(db, lesson.ID, UpdateInput{Name: &name, ViewLimit: &limit})
	require.NoError(t, err)

	assert.Equal(t, "Limits and Continuity", updated.Name)
	assert.Equal(t, 5, updated.ViewLimit)
	assert.Equal(t, types.AssetStatusPending, updated.Status)

	zero := 0
	_, err = Update(db, lesson.ID, UpdateInput{ViewLimit: &zero})
	assert.ErrorIs(t, err, ErrViewLimitInvalid)

	_, err = Update(db, uuid.New(), UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrLessonNotFound)
}

func TestStartUploadSupersedesPriorState(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	_, err := StartUpload(db, lesson.ID, "upload-1")
	require.NoError(t, err)

	result, _, err := MarkReady(db, lesson.ID, "asset-1", "pb-1", 120)
	require.NoError(t, err)
	require.Equal(t, TransitionApplied, result)

	updated, err := StartUpload(db, lesson.ID, "upload-2")
	require.NoError(t, err)

	assert.Equal(t, types.AssetStatusPending, updated.Status)
	require.NotNil(t, updated.ProviderUploadID)
	assert.Equal(t, "upload-2", *updated.ProviderUploadID)
	assert.Nil(t, updated.ProviderAssetID)
	assert.Nil(t, updated.ProviderPlaybackID)
	assert.Equal(t, 0, updated.Duration)
}

func TestStartUploadUnknownLesson(t *testing.T) {
	db := newTestDB(t)

	_, err := StartUpload(db, uuid.New(), "upload-1")
	assert.ErrorIs(t, err, ErrLessonNotFound)
}

func TestMarkReadyTransitions(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	result, updated, err := MarkReady(db, lesson.ID, "asset-1", "pb123", 600)
	require.NoError(t, err)

	assert.Equal(t, TransitionApplied, result)
	assert.Equal(t, types.AssetStatusReady, updated.Status)
	require.NotNil(t, updated.ProviderPlaybackID)
	assert.Equal(t, "pb123", *updated.ProviderPlaybackID)
	assert.Equal(t, 600, updated.Duration)
}

func TestMarkReadyDuplicateDelivery(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	result, _, err := MarkReady(db, lesson.ID, "asset-1", "pb123", 600)
	require.NoError(t, err)
	require.Equal(t, TransitionApplied, result)

	// Identical second delivery changes nothing but is recognized.
	result, updated, err := MarkReady(db, lesson.ID, "asset-1", "pb123", 600)
	require.NoError(t, err)

	assert.Equal(t, TransitionDuplicate, result)
	assert.Equal(t, types.AssetStatusReady, updated.Status)
	assert.Equal(t, 600, updated.Duration)
}

func TestMarkReadyIgnoredForDifferentAsset(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	result, _, err := MarkReady(db, lesson.ID, "asset-1", "pb123", 600)
	require.NoError(t, err)
	require.Equal(t, TransitionApplied, result)

	result, updated, err := MarkReady(db, lesson.ID, "asset-2", "pb999", 30)
	require.NoError(t, err)

	assert.Equal(t, TransitionIgnored, result)
	require.NotNil(t, updated.ProviderPlaybackID)
	assert.Equal(t, "pb123", *updated.ProviderPlaybackID)
	assert.Equal(t, 600, updated.Duration)
}

func TestMarkFailedTransitions(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	result, updated, err := MarkFailed(db, lesson.ID, "asset-1")
	require.NoError(t, err)

	assert.Equal(t, TransitionApplied, result)
	assert.Equal(t, types.AssetStatusError, updated.Status)

	result, _, err = MarkFailed(db, lesson.ID, "asset-1")
	require.NoError(t, err)
	assert.Equal(t, TransitionDuplicate, result)
}

func TestMarkFailedDoesNotTouchReadyLesson(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	result, _, err := MarkReady(db, lesson.ID, "asset-1", "pb123", 600)
	require.NoError(t, err)
	require.Equal(t, TransitionApplied, result)

	result, updated, err := MarkFailed(db, lesson.ID, "asset-1")
	require.NoError(t, err)

	assert.Equal(t, TransitionIgnored, result)
	assert.Equal(t, types.AssetStatusReady, updated.Status)
}

func TestFindByCorrelation(t *testing.T) {
	db := newTestDB(t)
	lesson := createTestLesson(t, db)

	_, err := StartUpload(db, lesson.ID, "upload-7")
	require.NoError(t, err)

	// Passthrough wins when it carries the lesson id.
	found, err := FindByCorrelation(db, lesson.ID.String(), "", "")
	require.NoError(t, err)
	assert.Equal(t, lesson.ID, found.ID)

	// Upload id on file is the fallback before any asset exists.
	found, err = FindByCorrelation(db, "", "", "upload-7")
	require.NoError(t, err)
	assert.Equal(t, lesson.ID, found.ID)

	result, _, err := MarkReady(db, lesson.ID, "asset-7", "pb-7", 10)
	require.NoError(t, err)
	require.Equal(t, TransitionApplied, result)

	found, err = FindByCorrelation(db, "", "asset-7", "")
	require.NoError(t, err)
	assert.Equal(t, lesson.ID, found.ID)

	_, err = FindByCorrelation(db, "not-a-uuid", "missing", "missing")
	assert.ErrorIs(t, err, ErrNoCorrelation)
}
