package executions

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/watzon/lambdev/internal/config"
	"github.com/watzon/lambdev/internal/database"
)

func testDBExec(t *testing.T) *database.DB {
	t.Helper()

	cfg := &config.HistoryConfig{
		Path:        filepath.Join(t.TempDir(), "history.db"),
		BusyTimeout: time.Second,
	}

	db, err := database.Open(cfg)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestStore_Create(t *testing.T) {
	db := testDBExec(t)
	store := NewStore(db)
	ctx := context.Background()

	now := time.Now().UTC()
	rec := &Record{
		ID:        "req-1",
		Function:  "hello",
		Trigger:   "invoke",
		TraceID:   "Root=1-abc",
		Status:    StatusPending,
		StartedAt: now,
		Request:   `{"key":"value"}`,
	}

	require.NoError(t, store.Create(ctx, rec))

	retrieved, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, "req-1", retrieved.ID)
	require.Equal(t, "hello", retrieved.Function)
	require.Equal(t, "invoke", retrieved.Trigger)
	require.Equal(t, "Root=1-abc", retrieved.TraceID)
	require.Equal(t, StatusPending, retrieved.Status)
	require.Equal(t, `{"key":"value"}`, retrieved.Request)
	require.True(t, now.Equal(retrieved.StartedAt))
	require.Nil(t, retrieved.CompletedAt)
}

func TestStore_Update(t *testing.T) {
	db := testDBExec(t)
	store := NewStore(db)
	ctx := context.Background()

	rec := &Record{ID: "req-1", Function: "hello", Trigger: "invoke", Status: StatusPending, StartedAt: time.Now()}
	require.NoError(t, store.Create(ctx, rec))

	completed := time.Now()
	rec.Status = StatusError
	rec.CompletedAt = &completed
	rec.DurationMs = 42
	rec.ErrorType = "Handler.Error"
	rec.ErrorMessage = "boom"
	require.NoError(t, store.Update(ctx, rec))

	retrieved, err := store.Get(ctx, "req-1")
	require.NoError(t, err)
	require.Equal(t, StatusError, retrieved.Status)
	require.Equal(t, 42, retrieved.DurationMs)
	require.Equal(t, "Handler.Error", retrieved.ErrorType)
	require.Equal(t, "boom", retrieved.ErrorMessage)
	require.NotNil(t, retrieved.CompletedAt)

	err = store.Update(ctx, &Record{ID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Get_NotFound(t *testing.T) {
	store := NewStore(testDBExec(t))

	_, err := store.Get(context.Background(), "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStore_List(t *testing.T) {
	db := testDBExec(t)
	store := NewStore(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	records := []*Record{
		{ID: "1", Function: "a", Trigger: "invoke", Status: StatusSuccess, StartedAt: base},
		{ID: "2", Function: "b", Trigger: "url", Status: StatusError, StartedAt: base.Add(time.Minute)},
		{ID: "3", Function: "a", Trigger: "schedule", Status: StatusSuccess, StartedAt: base.Add(2 * time.Minute)},
		{ID: "4", Function: "a", Trigger: "invoke", Status: StatusTimedOut, StartedAt: base.Add(3 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, store.Create(ctx, rec))
	}

	all, err := store.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, "4", all[0].ID, "newest first")
	require.Equal(t, "1", all[3].ID)

	byFunction, err := store.List(ctx, Filter{Function: "a"})
	require.NoError(t, err)
	require.Len(t, byFunction, 3)

	byStatus, err := store.List(ctx, Filter{Status: StatusSuccess})
	require.NoError(t, err)
	require.Len(t, byStatus, 2)

	byTrigger, err := store.List(ctx, Filter{Trigger: "schedule"})
	require.NoError(t, err)
	require.Len(t, byTrigger, 1)
	require.Equal(t, "3", byTrigger[0].ID)

	page, err := store.List(ctx, Filter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	require.Equal(t, "3", page[0].ID)
	require.Equal(t, "2", page[1].ID)

	offsetOnly, err := store.List(ctx, Filter{Offset: 3})
	require.NoError(t, err)
	require.Len(t, offsetOnly, 1)
}

func TestStore_DeleteOlderThan(t *testing.T) {
	db := testDBExec(t)
	store := NewStore(db)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Create(ctx, &Record{ID: "old-done", Function: "a", Trigger: "invoke", Status: StatusSuccess, StartedAt: old}))
	require.NoError(t, store.Create(ctx, &Record{ID: "old-pending", Function: "a", Trigger: "invoke", Status: StatusPending, StartedAt: old}))
	require.NoError(t, store.Create(ctx, &Record{ID: "recent", Function: "a", Trigger: "invoke", Status: StatusSuccess, StartedAt: time.Now()}))

	deleted, err := store.DeleteOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, "old-done")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Get(ctx, "old-pending")
	require.NoError(t, err)
	_, err = store.Get(ctx, "recent")
	require.NoError(t, err)
}
