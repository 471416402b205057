package statistics

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kasuganosora/partadvisor/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedStore_SeedsSessionCache(t *testing.T) {
	src := &fakeSource{deciles: map[string][]string{"t.a": tenToNinety}}
	ctx := context.Background()

	store, err := LoadSharedStore(ctx, src, []*domain.Column{numericColumn("a"), numericColumn("a")}, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, 1, src.decileCalls)

	// 两个会话都从共享存储读取，不再访问数据源
	for i := 0; i < 2; i++ {
		cache := NewCache(src, WithSharedStore(store))
		values, err := cache.Percentiles(ctx, numericColumn("a"))
		require.NoError(t, err)
		assert.Len(t, values, PercentileCount)
	}
	assert.Equal(t, 1, src.decileCalls)
}

func TestSharedStore_RejectsBadLength(t *testing.T) {
	_, err := NewSharedStore(map[string][]string{"t.a": {"1"}})
	assert.Error(t, err)
}

func TestSharedStore_MergeLeavesOriginal(t *testing.T) {
	store, err := NewSharedStore(map[string][]string{"t.a": tenToNinety})
	require.NoError(t, err)

	src := &fakeSource{deciles: map[string][]string{"t.b": tenToNinety}}
	cache := NewCache(src, WithSharedStore(store))
	_, err = cache.Percentiles(context.Background(), numericColumn("b"))
	require.NoError(t, err)

	merged := store.Merge(cache)
	assert.Equal(t, []string{"t.a", "t.b"}, merged.Keys())
	assert.Equal(t, []string{"t.a"}, store.Keys())

	var nilStore *SharedStore
	assert.Equal(t, []string{"t.b"}, nilStore.Merge(cache).Keys())
	_, ok := nilStore.Lookup("t.a")
	assert.False(t, ok)
}

// lockedSource 可并发调用的数据源
type lockedSource struct {
	mu    sync.Mutex
	calls map[string]int
	fail  string
}

func (s *lockedSource) GetColumnPercentiles(_ context.Context, c *domain.Column) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[c.Key()]++
	if c.Key() == s.fail {
		return nil, errors.New("unavailable")
	}
	return tenToNinety, nil
}

func (s *lockedSource) GetColumnStatistics(context.Context, *domain.Column) (*domain.ColumnStats, error) {
	return nil, nil
}

func TestLoadSharedStore_Concurrent(t *testing.T) {
	src := &lockedSource{calls: make(map[string]int)}
	columns := []*domain.Column{numericColumn("a"), numericColumn("b"), numericColumn("c"), numericColumn("a")}

	store, err := LoadSharedStore(context.Background(), src, columns, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"t.a", "t.b", "t.c"}, store.Keys())
	assert.Equal(t, map[string]int{"t.a": 1, "t.b": 1, "t.c": 1}, src.calls)

	src = &lockedSource{calls: make(map[string]int), fail: "t.b"}
	_, err = LoadSharedStore(context.Background(), src, columns, 2)
	assert.Error(t, err)
}
