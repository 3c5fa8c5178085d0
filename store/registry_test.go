package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRegisterAndFindByHash(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	u := Upload{ID: "up_1", ContentHash: "abc123", Filename: "events.csv", RowCount: 6, ColumnsJSON: `["date","revenue"]`, CreatedAt: time.Now()}
	require.NoError(t, r.Register(ctx, u))

	found, err := r.FindByHash(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "up_1", found.ID)
	assert.Equal(t, 6, found.RowCount)
}

func TestFindByHashReturnsNilWhenAbsent(t *testing.T) {
	r := openTestRegistry(t)
	found, err := r.FindByHash(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindByIDReturnsNilWhenAbsent(t *testing.T) {
	r := openTestRegistry(t)
	found, err := r.FindByID(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRegisterRejectsDuplicateHash(t *testing.T) {
	r := openTestRegistry(t)
	ctx := context.Background()

	u := Upload{ID: "up_1", ContentHash: "dup", Filename: "a.csv", RowCount: 1, ColumnsJSON: "[]", CreatedAt: time.Now()}
	require.NoError(t, r.Register(ctx, u))

	u2 := Upload{ID: "up_2", ContentHash: "dup", Filename: "b.csv", RowCount: 2, ColumnsJSON: "[]", CreatedAt: time.Now()}
	err := r.Register(ctx, u2)
	assert.Error(t, err)
}
