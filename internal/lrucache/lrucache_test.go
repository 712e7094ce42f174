package lrucache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetSetMiss(t *testing.T) {
	c := New[string, int](10)
	_, ok := c.Get("a")
	require.False(t, ok)

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
}

func TestEvictionBoundsSize(t *testing.T) {
	c := New[int, int](3)
	for i := 0; i < 10; i++ {
		c.Set(i, i*i)
	}
	require.LessOrEqual(t, c.Len(), 3)
}

func TestGetRefreshesRecency(t *testing.T) {
	c := New[int, int](2)
	c.Set(1, 1)
	c.Set(2, 2)
	// Touch 1 so it becomes more recent than 2.
	c.Get(1)
	c.Set(3, 3) // should evict 2, not 1.

	_, ok1 := c.Get(1)
	_, ok2 := c.Get(2)
	require.True(t, ok1)
	require.False(t, ok2)
}

func TestUnboundedCapacity(t *testing.T) {
	c := New[int, int](0)
	for i := 0; i < 1000; i++ {
		c.Set(i, i)
	}
	require.Equal(t, 1000, c.Len())
}
