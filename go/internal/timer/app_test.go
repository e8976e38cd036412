package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tasktimer/go/internal/connectivity"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.UnixMilli(1_700_000_000_000)

// recordingStore remembers the fields of every merge.
type recordingStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	merges [][]string
}

func (s *recordingStore) Merge(ctx context.Context, key string, fields models.Document) error {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	s.mu.Lock()
	s.merges = append(s.merges, names)
	s.mu.Unlock()
	return s.MemoryStore.Merge(ctx, key, fields)
}

func (s *recordingStore) Merges() [][]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]string(nil), s.merges...)
}

type viewRecorder struct {
	mu    sync.Mutex
	views []View
}

func (r *viewRecorder) Render(v View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *viewRecorder) Last() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.views) == 0 {
		return View{}
	}
	return r.views[len(r.views)-1]
}

type testApp struct {
	*App
	store   *recordingStore
	adapter *Adapter
	guard   *connectivity.Guard
	clock   *clockwork.FakeClock
	views   *viewRecorder
	metrics *countingMetrics
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	st := &recordingStore{MemoryStore: store.NewMemoryStore()}
	metrics := &countingMetrics{}
	clock := clockwork.NewFakeClockAt(epoch)
	adapter := NewAdapter(st, DefaultKey, clock, metrics)
	guard := connectivity.NewGuard(true)
	views := &viewRecorder{}

	cfg := DefaultConfig()
	cfg.ClientID = "test"
	app := NewApp(adapter, guard, clock, views, metrics, cfg)
	t.Cleanup(app.Close)

	return &testApp{App: app, store: st, adapter: adapter, guard: guard, clock: clock, views: views, metrics: metrics}
}

func (ta *testApp) now() int64 {
	return ta.clock.Now().UnixMilli()
}

func (ta *testApp) remote(t *testing.T) *models.Snapshot {
	t.Helper()
	s, err := ta.adapter.Read(context.Background())
	require.NoError(t, err)
	return s
}

func TestApp_AbsentRecordPublishesDefault(t *testing.T) {
	ta := newTestApp(t)
	ta.HandleSnapshot(context.Background(), nil)

	remote := ta.remote(t)
	require.NotNil(t, remote)
	assert.True(t, remote.Equal(models.DefaultSnapshot()))
	require.Len(t, ta.store.Merges(), 1)
	assert.Len(t, ta.store.Merges()[0], 5)

	view := ta.View()
	assert.True(t, view.Loaded)
	assert.Equal(t, "0:00:00", view.Time)
	assert.Equal(t, models.TimerStateIdle, view.State)
}

func TestApp_ToggleAndReset(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, nil)

	require.NoError(t, ta.SetDescription(ctx, "write report"))
	require.NoError(t, ta.Toggle(ctx))
	start := ta.now()
	assert.Equal(t, models.TimerStateRunning, ta.View().State)
	assert.True(t, ta.TickerArmed())

	ta.clock.Advance(5 * time.Second)
	require.NoError(t, ta.Toggle(ctx))

	remote := ta.remote(t)
	require.NotNil(t, remote)
	assert.Equal(t, models.TimerStatePaused, remote.State())
	assert.Equal(t, start, *remote.StartTime)
	assert.Equal(t, start+5_000, *remote.LastPausedTime)
	assert.Equal(t, "0:00:05", ta.View().Time)
	assert.False(t, ta.TickerArmed())

	require.NoError(t, ta.Reset(ctx))

	remote = ta.remote(t)
	require.NotNil(t, remote)
	assert.True(t, remote.Equal(models.DefaultSnapshot()), "reset clears the description too")
	view := ta.View()
	assert.Equal(t, "0:00:00", view.Time)
	assert.Equal(t, "", view.Description)
	assert.Equal(t, models.TimerStateIdle, view.State)

	assert.Equal(t, []string{"initialize", "edit_description", "start", "pause", "reset"}, ta.metrics.Ops())
}

func TestApp_CloseStopsTicker(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, nil)

	require.NoError(t, ta.Toggle(ctx))
	require.True(t, ta.TickerArmed())

	ta.Close()
	assert.False(t, ta.TickerArmed())

	// pause then resume after teardown
	require.NoError(t, ta.Toggle(ctx))
	require.NoError(t, ta.Toggle(ctx))
	assert.Equal(t, models.TimerStateRunning, ta.View().State)
	assert.False(t, ta.TickerArmed())

	ta.HandleSnapshot(ctx, ta.remote(t))
	assert.False(t, ta.TickerArmed())
}

func TestApp_ResumePreservesStart(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, nil)
	start := ta.now()

	require.NoError(t, ta.Toggle(ctx))
	ta.clock.Advance(10 * time.Second)
	require.NoError(t, ta.Toggle(ctx))
	ta.clock.Advance(5 * time.Second)
	require.NoError(t, ta.Toggle(ctx))
	ta.clock.Advance(5 * time.Second)

	s := ta.Snapshot()
	assert.Equal(t, start, *s.StartTime)
	assert.Equal(t, int64(5_000), s.PausedElapsedInterval)
	assert.Equal(t, int64(15), ta.View().ElapsedSeconds)
}

func TestApp_DescriptionOnlyPatch(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, nil)

	require.NoError(t, ta.SetDescription(ctx, "new name"))

	merges := ta.store.Merges()
	require.Len(t, merges, 2)
	assert.Equal(t, []string{models.FieldDescription}, merges[1])
	assert.Equal(t, "new name", ta.remote(t).Description)
}

func TestApp_EditTimeWhileRunning(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	running := models.Snapshot{Description: "d", IsRunning: true, StartTime: models.Millis(ta.now() - 42_000)}
	putSnapshot(t, ta.store.MemoryStore, running)
	ta.HandleSnapshot(ctx, &running)
	require.Equal(t, "0:00:42", ta.View().Time)

	ta.FocusTime()
	assert.True(t, ta.View().Editing)
	assert.False(t, ta.TickerArmed())

	require.NoError(t, ta.BlurTime(ctx, "0:01:00"))

	s := ta.Snapshot()
	assert.Equal(t, models.TimerStateRunning, s.State())
	assert.Equal(t, ta.now()-60_000, *s.StartTime)
	assert.Equal(t, "0:01:00", ta.View().Time)
	assert.True(t, ta.TickerArmed())

	merges := ta.store.Merges()
	require.Len(t, merges, 1)
	assert.ElementsMatch(t, []string{models.FieldStartTime, models.FieldLastPausedTime, models.FieldPausedElapsedInterval}, merges[0])

	remote := ta.remote(t)
	require.NotNil(t, remote)
	assert.Equal(t, ta.now()-60_000, *remote.StartTime)
	assert.Equal(t, "d", remote.Description)
}

func TestApp_EditTimeDiscarded(t *testing.T) {
	ctx := context.Background()

	t.Run("unchanged text", func(t *testing.T) {
		ta := newTestApp(t)
		ta.HandleSnapshot(ctx, &models.Snapshot{IsRunning: true, StartTime: models.Millis(ta.now() - 42_000)})

		ta.FocusTime()
		ta.clock.Advance(5 * time.Second)
		require.NoError(t, ta.BlurTime(ctx, "0:00:42"))

		assert.Empty(t, ta.store.Merges())
		assert.Equal(t, "0:00:47", ta.View().Time)
	})

	t.Run("within tolerance", func(t *testing.T) {
		ta := newTestApp(t)
		ta.HandleSnapshot(ctx, &models.Snapshot{IsRunning: true, StartTime: models.Millis(ta.now() - 42_000)})

		ta.FocusTime()
		require.NoError(t, ta.BlurTime(ctx, "0:00:43"))

		assert.Empty(t, ta.store.Merges())
	})
}

func TestApp_EditTimeWhileIdle(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, nil)

	ta.FocusTime()
	require.NoError(t, ta.BlurTime(ctx, "5"))

	view := ta.View()
	assert.Equal(t, models.TimerStatePaused, view.State)
	assert.Equal(t, "0:05:00", view.Time)
	assert.False(t, ta.TickerArmed())

	ta.clock.Advance(time.Minute)
	assert.Equal(t, int64(300), ta.View().ElapsedSeconds)
}

func TestApp_OfflineWritesSuppressed(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, &models.Snapshot{Description: "shared"})
	ta.guard.SetOnline(false)

	require.NoError(t, ta.Toggle(ctx))
	require.NoError(t, ta.SetDescription(ctx, "offline edit"))

	assert.Empty(t, ta.store.Merges())
	assert.Equal(t, 2, ta.metrics.skipped)
	assert.Equal(t, models.TimerStateRunning, ta.View().State)
	assert.False(t, ta.View().Online)

	ta.guard.SetOnline(true)
	ta.clock.Advance(3 * time.Second)
	require.NoError(t, ta.SetDescription(ctx, "back online"))

	merges := ta.store.Merges()
	require.Len(t, merges, 1)
	assert.Len(t, merges[0], 5, "first write after a skip carries the full snapshot")

	remote := ta.remote(t)
	require.NotNil(t, remote)
	assert.Equal(t, "back online", remote.Description)
	assert.Equal(t, models.TimerStateRunning, remote.State())

	require.NoError(t, ta.SetDescription(ctx, "again"))
	assert.Len(t, ta.store.Merges()[1], 1)
}

func TestApp_PauseRaceAbandoned(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	start := ta.now()
	ta.HandleSnapshot(ctx, &models.Snapshot{IsRunning: true, StartTime: models.Millis(start)})
	ta.clock.Advance(10 * time.Second)

	// another client's clock is ahead and it already paused
	other := models.Snapshot{StartTime: models.Millis(start), LastPausedTime: models.Millis(ta.now() + 2_000)}
	putSnapshot(t, ta.store.MemoryStore, other)

	require.NoError(t, ta.Toggle(ctx))

	assert.Empty(t, ta.store.Merges())
	assert.Equal(t, 1, ta.metrics.conflicts)
	assert.True(t, ta.Snapshot().Equal(other))
	assert.Equal(t, "0:00:12", ta.View().Time)
}

func TestApp_RemoteSnapshotsWhileEditing(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, &models.Snapshot{IsRunning: true, StartTime: models.Millis(ta.now() - 42_000)})

	ta.FocusTime()
	ta.HandleSnapshot(ctx, &models.Snapshot{Description: "renamed", IsRunning: true, StartTime: models.Millis(ta.now() - 90_000)})

	view := ta.View()
	assert.Equal(t, "renamed", view.Description)
	assert.Equal(t, "0:00:42", view.Time, "focused time text is not overwritten")
	assert.False(t, ta.TickerArmed())
}

func TestApp_TickRefreshesDisplay(t *testing.T) {
	ctx := context.Background()
	ta := newTestApp(t)
	ta.HandleSnapshot(ctx, nil)
	require.NoError(t, ta.Toggle(ctx))

	ta.clock.Advance(3 * time.Second)
	assert.Eventually(t, func() bool {
		return ta.views.Last().Time == "0:00:03"
	}, time.Second, 5*time.Millisecond)
}

func TestApp_Start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ta := newTestApp(t)

	done := make(chan error, 1)
	go func() { done <- ta.Start(ctx) }()

	// the absent record is initialized by the subscription
	assert.Eventually(t, func() bool {
		s, err := ta.adapter.Read(context.Background())
		return err == nil && s != nil
	}, time.Second, 5*time.Millisecond)

	putSnapshot(t, ta.store.MemoryStore, models.Snapshot{Description: "from another client"})
	assert.Eventually(t, func() bool {
		return ta.View().Description == "from another client"
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Start did not return")
	}
}
