package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	NoOpMetrics
	mu        sync.Mutex
	writes    int
	ops       []string
	durations []time.Duration
	skipped   int
	conflicts int
	dropped   []string
}

func (m *countingMetrics) RecordWrite(op string, fields int, success bool, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.ops = append(m.ops, op)
	m.durations = append(m.durations, duration)
}

func (m *countingMetrics) RecordSkippedWrite(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skipped++
}

func (m *countingMetrics) RecordPauseConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conflicts++
}

func (m *countingMetrics) RecordDroppedField(field string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped = append(m.dropped, field)
}

func (m *countingMetrics) Ops() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.ops...)
}

// slowStore takes 25ms of fake time per merge.
type slowStore struct {
	*store.MemoryStore
	clock *clockwork.FakeClock
}

func (s slowStore) Merge(ctx context.Context, key string, fields models.Document) error {
	s.clock.Advance(25 * time.Millisecond)
	return s.MemoryStore.Merge(ctx, key, fields)
}

func putSnapshot(t *testing.T, st *store.MemoryStore, s models.Snapshot) {
	t.Helper()
	doc, err := models.FullPatch(s).Document()
	require.NoError(t, err)
	st.Put(DefaultKey, doc)
}

func TestAdapter_Read(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	a := NewAdapter(st, DefaultKey, nil, nil)

	t.Run("absent", func(t *testing.T) {
		s, err := a.Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("malformed is absent", func(t *testing.T) {
		st.Put(DefaultKey, models.Document{"other": []byte(`1`)})
		s, err := a.Read(ctx)
		require.NoError(t, err)
		assert.Nil(t, s)
	})

	t.Run("present", func(t *testing.T) {
		putSnapshot(t, st, models.Snapshot{Description: "x", IsRunning: true, StartTime: models.Millis(10)})
		s, err := a.Read(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, "x", s.Description)
		assert.Equal(t, models.TimerStateRunning, s.State())
	})

	t.Run("store error", func(t *testing.T) {
		closed := store.NewMemoryStore()
		require.NoError(t, closed.Close())
		_, err := NewAdapter(closed, DefaultKey, nil, nil).Read(ctx)
		assert.ErrorIs(t, err, store.ErrClosed)
	})
}

func TestAdapter_Write(t *testing.T) {
	ctx := context.Background()

	t.Run("newer remote pause is kept", func(t *testing.T) {
		st := store.NewMemoryStore()
		metrics := &countingMetrics{}
		a := NewAdapter(st, DefaultKey, nil, metrics)
		putSnapshot(t, st, models.Snapshot{StartTime: models.Millis(50), LastPausedTime: models.Millis(150)})

		local := models.Snapshot{Description: "late", StartTime: models.Millis(50), LastPausedTime: models.Millis(100)}
		require.NoError(t, a.Write(ctx, "toggle", models.FullPatch(local)))

		s, err := a.Read(ctx)
		require.NoError(t, err)
		require.NotNil(t, s)
		assert.Equal(t, int64(150), *s.LastPausedTime)
		assert.Equal(t, "late", s.Description)
		assert.Equal(t, []string{models.FieldLastPausedTime}, metrics.dropped)
		assert.Equal(t, 1, metrics.writes)
	})

	t.Run("older remote pause is overwritten", func(t *testing.T) {
		st := store.NewMemoryStore()
		a := NewAdapter(st, DefaultKey, nil, nil)
		putSnapshot(t, st, models.Snapshot{StartTime: models.Millis(50), LastPausedTime: models.Millis(100)})

		local := models.Snapshot{StartTime: models.Millis(50), LastPausedTime: models.Millis(150)}
		require.NoError(t, a.Write(ctx, "toggle", models.FullPatch(local)))

		s, err := a.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(150), *s.LastPausedTime)
	})

	t.Run("null pause time is always written", func(t *testing.T) {
		st := store.NewMemoryStore()
		a := NewAdapter(st, DefaultKey, nil, nil)
		putSnapshot(t, st, models.Snapshot{StartTime: models.Millis(50), LastPausedTime: models.Millis(150)})

		running := models.Snapshot{IsRunning: true, StartTime: models.Millis(50)}
		require.NoError(t, a.Write(ctx, "toggle", models.FullPatch(running)))

		s, err := a.Read(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.TimerStateRunning, s.State())
		assert.Nil(t, s.LastPausedTime)
	})

	t.Run("patch emptied by the drop is not written", func(t *testing.T) {
		st := store.NewMemoryStore()
		metrics := &countingMetrics{}
		a := NewAdapter(st, DefaultKey, nil, metrics)
		putSnapshot(t, st, models.Snapshot{StartTime: models.Millis(50), LastPausedTime: models.Millis(150)})

		require.NoError(t, a.Write(ctx, "toggle", models.Patch{LastPausedTime: models.SetMillis(models.Millis(100))}))
		assert.Equal(t, 0, metrics.writes)
	})
}

func TestAdapter_WriteMetrics(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClock()
	metrics := &countingMetrics{}
	a := NewAdapter(slowStore{MemoryStore: store.NewMemoryStore(), clock: clock}, DefaultKey, clock, metrics)

	desc := "standup"
	require.NoError(t, a.Write(ctx, "edit_description", models.Patch{Description: &desc}))
	require.NoError(t, a.Write(ctx, "reset", models.FullPatch(models.DefaultSnapshot())))

	assert.Equal(t, []string{"edit_description", "reset"}, metrics.Ops())
	assert.Equal(t, []time.Duration{25 * time.Millisecond, 25 * time.Millisecond}, metrics.durations)
}

func TestAdapter_Subscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	a := NewAdapter(st, DefaultKey, nil, nil)

	updates, err := a.Subscribe(ctx)
	require.NoError(t, err)

	next := func() *models.Snapshot {
		select {
		case s, ok := <-updates:
			require.True(t, ok)
			return s
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot")
			return nil
		}
	}

	assert.Nil(t, next(), "absent record is reported as nil")

	putSnapshot(t, st, models.Snapshot{Description: "remote"})
	s := next()
	require.NotNil(t, s)
	assert.Equal(t, "remote", s.Description)

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
