package userview

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
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

	require.NoError(t, db.AutoMigrate(&View{}))

	return db
}

func TestCheckAndReserveCreatesRowLazily(t *testing.T) {
	db := newTestDB(t)
	userID, lessonID := uuid.New(), uuid.New()

	decision, err := CheckAndReserve(db, userID, lessonID, 3)
	require.NoError(t, err)

	assert.True(t, decision.Granted)
	assert.Equal(t, 1, decision.View.ViewCount)
	assert.Equal(t, 3, decision.EffectiveLimit)
	require.NotNil(t, decision.View.LastViewedAt)
}

func TestCheckAndReserveDeniesAtLimit(t *testing.T) {
	db := newTestDB(t)
	userID, lessonID := uuid.New(), uuid.New()

	for i := 0; i < 2; i++ {
		decision, err := CheckAndReserve(db, userID, lessonID, 2)
		require.NoError(t, err)
		require.True(t, decision.Granted)
	}

	decision, err := CheckAndReserve(db, userID, lessonID, 2)
	require.NoError(t, err)

	assert.False(t, decision.Granted)
	assert.Equal(t, 2, decision.View.ViewCount)
}

func TestOverrideReplacesDefaultLimit(t *testing.T) {
	db := newTestDB(t)
	userID, lessonID := uuid.New(), uuid.New()

	// Exhaust the default limit of 2.
	for i := 0; i < 2; i++ {
		decision, err := CheckAndReserve(db, userID, lessonID, 2)
		require.NoError(t, err)
		require.True(t, decision.Granted)
	}

	decision, err := CheckAndReserve(db, userID, lessonID, 2)
	require.NoError(t, err)
	require.False(t, decision.Granted)

	view, err := SetOverride(db, userID, lessonID, 5)
	require.NoError(t, err)
	require.NotNil(t, view.CustomViewLimit)
	assert.Equal(t, 5, *view.CustomViewLimit)
	assert.Equal(t, 2, view.ViewCount, "override never touches the counter")

	decision, err = CheckAndReserve(db, userID, lessonID, 2)
	require.NoError(t, err)

	assert.True(t, decision.Granted)
	assert.Equal(t, 3, decision.View.ViewCount)
	assert.Equal(t, 5, decision.EffectiveLimit)
}

func TestSetOverrideValidation(t *testing.T) {
	db := newTestDB(t)

	_, err := SetOverride(db, uuid.New(), uuid.New(), 0)
	assert.ErrorIs(t, err, ErrLimitInvalid)

	_, err = SetOverride(db, uuid.New(), uuid.New(), -3)
	assert.ErrorIs(t, err, ErrLimitInvalid)
}

func TestClearOverrideFallsBackToDefault(t *testing.T) {
	db := newTestDB(t)
	userID, lessonID := uuid.New(), uuid.New()

	_, err := SetOverride(db, userID, lessonID, 10)
	require.NoError(t, err)

	require.NoError(t, ClearOverride(db, userID, lessonID))

	view, err := GetView(db, userID, lessonID)
	require.NoError(t, err)
	assert.Nil(t, view.CustomViewLimit)

	// Clearing a pair with no row is a harmless no-op.
	assert.NoError(t, ClearOverride(db, uuid.New(), uuid.New()))
}

func TestResetCount(t *testing.T) {
	db := newTestDB(t)
	userID, lessonID := uuid.New(), uuid.New()

	for i := 0; i < 3; i++ {
		decision, err := CheckAndReserve(db, userID, lessonID, 3)
		require.NoError(t, err)
		require.True(t, decision.Granted)
	}

	require.NoError(t, ResetCount(db, userID, lessonID))

	view, err := GetView(db, userID, lessonID)
	require.NoError(t, err)
	assert.Equal(t, 0, view.ViewCount)

	assert.ErrorIs(t, ResetCount(db, uuid.New(), uuid.New()), ErrViewNotFound)
}

func TestConcurrentReservationsNeverOversell(t *testing.T) {
	db := newTestDB(t)
	userID, lessonID := uuid.New(), uuid.New()

	// Consume 3 of 5 views, leaving exactly 2.
	for i := 0; i < 3; i++ {
		decision, err := CheckAndReserve(db, userID, lessonID, 5)
		require.NoError(t, err)
		require.True(t, decision.Granted)
	}

	const workers = 8

	var wg sync.WaitGroup
	results := make(chan bool, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := CheckAndReserve(db, userID, lessonID, 5)
			if err != nil {
				results <- false
				return
			}
			results <- decision.Granted
		}()
	}

	wg.Wait()
	close(results)

	granted := 0
	for ok := range results {
		if ok {
			granted++
		}
	}

	assert.Equal(t, 2, granted, "exactly the remaining views may be granted")

	view, err := GetView(db, userID, lessonID)
	require.NoError(t, err)
	assert.Equal(t, 5, view.ViewCount)
}
