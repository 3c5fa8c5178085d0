package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheSetGet(t *testing.T) {
	c := New(time.Minute, time.Minute)
	defer c.Close()

	c.Set("subset:region,plan", []int{1, 2, 3}, 0)
	value, found := c.Get("subset:region,plan")
	require.True(t, found)
	assert.Equal(t, []int{1, 2, 3}, value)
}

func TestCacheExpiresEntries(t *testing.T) {
	c := New(time.Millisecond, time.Hour)
	defer c.Close()

	c.Set("key", "value", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	_, found := c.Get("key")
	assert.False(t, found)
}

func TestCacheStatsTracksHitsAndMisses(t *testing.T) {
	c := New(time.Minute, time.Hour)
	defer c.Close()

	c.Set("key", "value", 0)
	c.Get("key")
	c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, float64(50), stats.HitRate)
}

func TestCacheClearRemovesAllEntries(t *testing.T) {
	c := New(time.Minute, time.Hour)
	defer c.Close()

	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Clear()

	assert.Equal(t, 0, c.Len())
}
