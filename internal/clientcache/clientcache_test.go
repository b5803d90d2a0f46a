package clientcache

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreateCachesValue(t *testing.T) {
	c := New[int](4, time.Hour)

	calls := 0
	create := func() (int, error) {
		calls++
		return 42, nil
	}

	v, err := c.GetOrCreate("key", create)
	require.NoError(t, err)
	require.Equal(t, 42, v)

	v, err = c.GetOrCreate("key", create)
	require.NoError(t, err)
	require.Equal(t, 42, v)
	require.Equal(t, 1, calls, "second lookup must reuse the cached value")
	require.Equal(t, 1, c.Len())
}

func TestGetOrCreateDoesNotCacheErrors(t *testing.T) {
	c := New[int](4, time.Hour)

	boom := errors.New("boom")
	_, err := c.GetOrCreate("key", func() (int, error) { return 0, boom })
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, c.Len())

	v, err := c.GetOrCreate("key", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	require.Equal(t, 7, v)
}

func TestTTLExpiry(t *testing.T) {
	c := New[int](4, time.Minute)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	calls := 0
	create := func() (int, error) {
		calls++
		return calls, nil
	}

	v, _ := c.GetOrCreate("key", create)
	require.Equal(t, 1, v)

	current = current.Add(30 * time.Second)
	v, _ = c.GetOrCreate("key", create)
	require.Equal(t, 1, v, "entry within TTL must be reused")

	current = current.Add(31 * time.Second)
	v, _ = c.GetOrCreate("key", create)
	require.Equal(t, 2, v, "expired entry must be recreated")
}

func TestZeroTTLNeverExpires(t *testing.T) {
	c := New[int](4, 0)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	v, _ := c.GetOrCreate("key", func() (int, error) { return 1, nil })
	require.Equal(t, 1, v)

	current = current.Add(24 * 365 * time.Hour)
	v, _ = c.GetOrCreate("key", func() (int, error) { return 2, nil })
	require.Equal(t, 1, v)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string](2, time.Hour)

	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }

	mk := func(v string) func() (string, error) {
		return func() (string, error) { return v, nil }
	}

	_, _ = c.GetOrCreate("a", mk("a"))
	current = current.Add(time.Second)
	_, _ = c.GetOrCreate("b", mk("b"))

	// Touch "a" so "b" becomes the eviction candidate.
	current = current.Add(time.Second)
	_, _ = c.GetOrCreate("a", mk("a2"))

	current = current.Add(time.Second)
	_, _ = c.GetOrCreate("c", mk("c"))
	require.Equal(t, 2, c.Len())

	v, _ := c.GetOrCreate("a", mk("recreated-a"))
	require.Equal(t, "a", v, "recently used entry must survive eviction")

	v, _ = c.GetOrCreate("b", mk("recreated-b"))
	require.Equal(t, "recreated-b", v, "least recently used entry must be evicted")
}

func TestMinimumCapacity(t *testing.T) {
	c := New[int](0, time.Hour)

	_, _ = c.GetOrCreate("a", func() (int, error) { return 1, nil })
	_, _ = c.GetOrCreate("b", func() (int, error) { return 2, nil })
	require.Equal(t, 1, c.Len())
}
