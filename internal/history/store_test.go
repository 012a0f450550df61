package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(i int) Record {
	return Record{
		Query:     fmt.Sprintf("q%d", i),
		Title:     fmt.Sprintf("title %d", i),
		URL:       fmt.Sprintf("https://www.youtube.com/watch?v=%011d", i),
		Timestamp: fmt.Sprintf("%d.000000", 1700000000+i),
	}
}

// failingPersister loads fine but refuses every save.
type failingPersister struct {
	Memory
	saves int
}

func (f *failingPersister) Save(context.Context, []Record) error {
	f.saves++
	return errors.New("disk full")
}

func TestStore_CapacityNeverExceeded(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	for i := 1; i <= 100; i++ {
		require.NoError(t, s.Append(ctx, rec(i)))
		assert.LessOrEqual(t, s.Len(), DefaultCapacity)
	}
	assert.Equal(t, DefaultCapacity, s.Len())
}

func TestStore_ThirtyFirstEvictsFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)
	for i := 1; i <= 30; i++ {
		require.NoError(t, s.Append(ctx, rec(i)))
	}
	require.Equal(t, rec(1), s.All()[0])

	require.NoError(t, s.Append(ctx, rec(31)))

	all := s.All()
	require.Len(t, all, 30)
	assert.Equal(t, rec(2), all[0], "oldest record should be evicted")
	assert.Equal(t, rec(31), all[29])
}

func TestStore_MostRecent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)

	_, ok := s.MostRecent()
	assert.False(t, ok, "empty history has no most recent record")

	r := rec(7)
	require.NoError(t, s.Append(ctx, r))
	got, ok := s.MostRecent()
	require.True(t, ok)
	assert.Equal(t, r, got)
}

func TestStore_RecentN(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)
	for i := 1; i <= 3; i++ {
		require.NoError(t, s.Append(ctx, rec(i)))
	}

	tests := []struct {
		name string
		n    int
		want []Record
	}{
		{"fewer than n", 5, []Record{rec(1), rec(2), rec(3)}},
		{"exactly n", 3, []Record{rec(1), rec(2), rec(3)}},
		{"last two", 2, []Record{rec(2), rec(3)}},
		{"zero", 0, []Record{}},
		{"negative", -1, []Record{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.RecentN(tt.n))
		})
	}
}

func TestStore_RecentNIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, 0)
	require.NoError(t, s.Append(ctx, rec(1)))

	got := s.RecentN(1)
	got[0].Title = "mutated"
	assert.Equal(t, rec(1).Title, s.All()[0].Title)
}

func TestStore_PersistFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	p := &failingPersister{}
	s := NewStore(p, 0)

	err := s.Append(ctx, rec(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, p.saves)

	got, ok := s.MostRecent()
	require.True(t, ok)
	assert.Equal(t, rec(1), got)
}

func TestStore_RoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	s := Open(ctx, NewFilePersister(path), 0)
	r := NewRecord("lofi", "A", "https://www.youtube.com/watch?v=1", time.Unix(1718000000, 0))
	require.NoError(t, s.Append(ctx, rec(1)))
	require.NoError(t, s.Append(ctx, r))

	restarted := Open(ctx, NewFilePersister(path), 0)
	loaded := restarted.All()
	require.Len(t, loaded, 2)
	assert.Equal(t, r, loaded[len(loaded)-1])
}

func TestStore_LoadTrimsToCapacity(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var recs []Record
	for i := 1; i <= 40; i++ {
		recs = append(recs, rec(i))
	}
	require.NoError(t, m.Save(ctx, recs))

	s := Open(ctx, m, 0)
	all := s.All()
	require.Len(t, all, 30)
	assert.Equal(t, rec(11), all[0])
	assert.Equal(t, rec(40), all[29])
}

func TestStore_ConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	s := NewStore(m, 0)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, rec(i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, DefaultCapacity, s.Len())
	persisted, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, s.All(), persisted, "persisted copy must match memory after every append")
}

func TestTimestamp(t *testing.T) {
	ts := Timestamp(time.UnixMicro(1718000000123456))
	assert.Equal(t, "1718000000.123456", ts)
}
