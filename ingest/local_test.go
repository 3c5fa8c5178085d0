package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashIsDeterministic(t *testing.T) {
	data := []byte("date,value\n2024-01-01,1\n")
	assert.Equal(t, ContentHash(data), ContentHash(data))
	assert.NotEqual(t, ContentHash(data), ContentHash([]byte("different")))
}

func TestLocalBlobstorePutGetHas(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobstore(dir)
	require.NoError(t, err)

	data := []byte("a,b\n1,2\n")
	hash := ContentHash(data)

	has, err := store.Has(context.Background(), hash)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.Put(context.Background(), hash, data))

	has, err = store.Has(context.Background(), hash)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := store.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLocalBlobstorePutIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalBlobstore(dir)
	require.NoError(t, err)

	data := []byte("x,y\n1,2\n")
	hash := ContentHash(data)
	require.NoError(t, store.Put(context.Background(), hash, data))
	require.NoError(t, store.Put(context.Background(), hash, data))

	got, err := store.Get(context.Background(), hash)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
