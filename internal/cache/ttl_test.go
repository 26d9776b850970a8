package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLGetSet(t *testing.T) {
	c := NewTTL[int](time.Minute)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 1)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	c.Set("a", 2)
	got, _ = c.Get("a")
	assert.Equal(t, 2, got)
}

func TestTTLExpiry(t *testing.T) {
	c := NewTTL[string](10 * time.Millisecond)

	c.Set("a", "x")
	time.Sleep(25 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLGetReturnsCopy(t *testing.T) {
	type box struct{ n int }

	c := NewTTL[box](time.Minute)
	c.Set("a", box{n: 1})

	got, ok := c.Get("a")
	require.True(t, ok)
	got.n = 99

	again, _ := c.Get("a")
	assert.Equal(t, 1, again.n, "callers must not be able to mutate cached state")
}

func TestTTLMutate(t *testing.T) {
	c := NewTTL[int](time.Minute)
	c.Set("a", 10)

	ok := c.Mutate("a", func(v *int) { *v-- })
	require.True(t, ok)

	got, _ := c.Get("a")
	assert.Equal(t, 9, got)

	assert.False(t, c.Mutate("missing", func(v *int) { *v = 0 }))
}

func TestTTLDeletePrefix(t *testing.T) {
	c := NewTTL[int](time.Minute)
	c.Set("ip:1.2.3.4:/v1/search", 1)
	c.Set("ip:1.2.3.4:/v1/ping", 2)
	c.Set("ip:5.6.7.8:/v1/search", 3)

	assert.Equal(t, 2, c.DeletePrefix("ip:1.2.3.4:"))
	assert.Equal(t, 1, c.Len())
}

func TestTTLCleanExpired(t *testing.T) {
	c := NewTTL[int](10 * time.Millisecond)
	c.Set("a", 1)
	c.Set("b", 2)

	time.Sleep(25 * time.Millisecond)
	c.Set("c", 3)

	assert.Equal(t, 2, c.CleanExpired())
	assert.Equal(t, 1, c.Len())

	got, ok := c.Get("c")
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestTTLConcurrentAccess(t *testing.T) {
	c := NewTTL[int](time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Set("shared", j)
				c.Get("shared")
				c.Mutate("shared", func(v *int) { *v++ })
			}
		}()
	}
	wg.Wait()

	_, ok := c.Get("shared")
	assert.True(t, ok)
}
