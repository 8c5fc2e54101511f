package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_MissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewFileStore(path, DefaultPolicy())
	require.NoError(t, err)

	_, ok, err := store.Bookmark(context.Background(), "shipments")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_MalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path, DefaultPolicy())
	assert.Error(t, err)
}

func TestFileStore_WriteThrough(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	store, err := NewFileStore(path, DefaultPolicy())
	require.NoError(t, err)
	require.NoError(t, store.SetBookmark(ctx, "shipments", "2024-03-01 00:00:00"))

	// A fresh store reading the same file must see the committed value
	// without any explicit save step in between.
	reopened, err := NewFileStore(path, DefaultPolicy())
	require.NoError(t, err)
	v, ok, err := reopened.Bookmark(ctx, "shipments")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-03-01 00:00:00", v)
}

func TestFileStore_LegacyKeyFallback(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")
	doc := `{"bookmarks": {"orders": {"modifyDate": "2023-11-05 12:00:00"}}}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	store, err := NewFileStore(path, DefaultPolicy())
	require.NoError(t, err)

	v, ok, err := store.Bookmark(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2023-11-05 12:00:00", v)

	// Writing advances the primary key; the primary then wins over legacy.
	require.NoError(t, store.SetBookmark(ctx, "orders", "2024-01-01 00:00:00"))
	v, ok, err = store.Bookmark(ctx, "orders")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2024-01-01 00:00:00", v)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01 00:00:00", snap["orders"]["created_at"])
	assert.Equal(t, "2023-11-05 12:00:00", snap["orders"]["modifyDate"])
}

func TestFileStore_SnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	store, err := NewFileStore(path, DefaultPolicy())
	require.NoError(t, err)
	require.NoError(t, store.SetBookmark(ctx, "shipments", "2024-03-01 00:00:00"))

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	snap["shipments"]["created_at"] = "mutated"

	v, _, err := store.Bookmark(ctx, "shipments")
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01 00:00:00", v)
}

func TestPolicy_Lookup(t *testing.T) {
	policy := Policy{BookmarkKey: "created_at", LegacyKeys: []string{"modifyDate", "updated_at"}}

	tests := []struct {
		name    string
		fields  map[string]string
		want    string
		wantOK  bool
	}{
		{"primary wins", map[string]string{"created_at": "a", "modifyDate": "b"}, "a", true},
		{"first legacy", map[string]string{"modifyDate": "b", "updated_at": "c"}, "b", true},
		{"second legacy", map[string]string{"updated_at": "c"}, "c", true},
		{"empty value skipped", map[string]string{"created_at": "", "modifyDate": "b"}, "b", true},
		{"nothing set", map[string]string{"other": "x"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := policy.lookup(tt.fields)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
