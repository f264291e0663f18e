package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheEmptyBeforeFirstSet(t *testing.T) {
	c := New[string](time.Minute, 2*time.Minute)
	_, state := c.Get(time.Now())
	assert.Equal(t, Empty, state)
}

func TestCacheFreshThenStaleThenEmpty(t *testing.T) {
	c := New[int](time.Minute, 2*time.Minute)
	start := time.Now()
	c.Set(42, start)

	data, state := c.Get(start.Add(30 * time.Second))
	assert.Equal(t, Fresh, state)
	assert.Equal(t, 42, data)

	data, state = c.Get(start.Add(90 * time.Second))
	assert.Equal(t, Stale, state)
	assert.Equal(t, 42, data)

	_, state = c.Get(start.Add(3 * time.Minute))
	assert.Equal(t, Empty, state)
}

func TestCacheSetErrorDoesNotClearData(t *testing.T) {
	c := New[string](time.Minute, 2*time.Minute)
	start := time.Now()
	c.Set("cached-models", start)

	c.SetError("upstream quota exceeded", 30*time.Second, start)
	data, state := c.Get(start.Add(time.Second))
	assert.Equal(t, ErrorBackoff, state)
	assert.Equal(t, "cached-models", data)
	assert.Equal(t, "upstream quota exceeded", c.ErrorMessage())

	data, state = c.Get(start.Add(31 * time.Second))
	assert.Equal(t, Fresh, state)
	assert.Equal(t, "cached-models", data)
}

func TestCacheClearErrorKeepsData(t *testing.T) {
	c := New[string](time.Minute, 2*time.Minute)
	start := time.Now()
	c.Set("v1", start)
	c.SetError("boom", time.Minute, start)

	c.ClearError()
	data, state := c.Get(start.Add(time.Second))
	assert.Equal(t, Fresh, state)
	assert.Equal(t, "v1", data)
}

func TestCacheClearResetsEverything(t *testing.T) {
	c := New[string](time.Minute, 2*time.Minute)
	c.Set("v1", time.Now())
	c.Clear()

	_, state := c.Get(time.Now())
	assert.Equal(t, Empty, state)
}

func TestCacheTryStartRefreshIsSingleFlight(t *testing.T) {
	c := New[string](time.Minute, 2*time.Minute)

	proceed, done := c.TryStartRefresh()
	assert.True(t, proceed)

	proceed2, _ := c.TryStartRefresh()
	assert.False(t, proceed2, "a second concurrent refresh must not proceed")

	done()
	proceed3, _ := c.TryStartRefresh()
	assert.True(t, proceed3, "after done() a new refresh may proceed")
}
