package timer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/looplab/fsm"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Local transition events.
const (
	eventStart  = "start"
	eventPause  = "pause"
	eventResume = "resume"
	eventReset  = "reset"
)

// RemoteTimer defines what the app needs from the remote store adapter
type RemoteTimer interface {
	Subscribe(ctx context.Context) (<-chan *models.Snapshot, error)
	Read(ctx context.Context) (*models.Snapshot, error)
	Write(ctx context.Context, op string, p models.Patch) error
}

// WriteGuard suppresses outbound writes while offline.
type WriteGuard interface {
	Online() bool
	Do(ctx context.Context, op string, fn func(ctx context.Context) error) (skipped bool, err error)
}

// Renderer receives every display update. Render is called with the app
// lock held: it must not block or call back into the App.
type Renderer interface {
	Render(View)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// View is what a display shows.
type View struct {
	Description    string            `json:"description"`
	Time           string            `json:"time"`
	ElapsedSeconds int64             `json:"elapsed_seconds"`
	Running        bool              `json:"running"`
	State          models.TimerState `json:"state"`
	Editing        bool              `json:"editing"`
	Online         bool              `json:"online"`
	Loaded         bool              `json:"loaded"`
}

// Config holds configuration for a timer client
type Config struct {
	ClientID      string
	TickInterval  time.Duration
	EditTolerance time.Duration
}

// DefaultConfig returns default timer client configuration
func DefaultConfig() Config {
	return Config{
		ClientID:      uuid.New().String()[:8], // short ID for logging
		TickInterval:  200 * time.Millisecond,
		EditTolerance: time.Second,
	}
}

// App owns the local view of the shared timer. It applies user actions,
// adopts remote snapshots and decides what to publish.
type App struct {
	remote   RemoteTimer
	guard    WriteGuard
	clock    clockwork.Clock
	renderer Renderer
	metrics  Metrics
	cfg      Config
	logger   zerolog.Logger

	mu        sync.Mutex
	snapshot  models.Snapshot
	loaded    bool
	editing   bool
	focusText string
	timeText  string
	needsFull bool // a write was skipped or failed since the last full write
	machine   *fsm.FSM
	ticker    *Ticker
	closed    bool
}

// NewApp creates a new timer client App
func NewApp(remote RemoteTimer, guard WriteGuard, clock clockwork.Clock, renderer Renderer, metrics Metrics, cfg Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if renderer == nil {
		renderer = RendererFunc(func(View) {})
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultConfig().ClientID
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}

	a := &App{
		remote:   remote,
		guard:    guard,
		clock:    clock,
		renderer: renderer,
		metrics:  metrics,
		cfg:      cfg,
		logger:   log.With().Str("client_id", cfg.ClientID).Logger(),
		snapshot: models.DefaultSnapshot(),
		timeText: FormatTime(0),
	}
	a.ticker = NewTicker(clock, cfg.TickInterval, a.refresh)
	a.machine = fsm.NewFSM(
		string(models.TimerStateIdle),
		fsm.Events{
			{Name: eventStart, Src: []string{string(models.TimerStateIdle)}, Dst: string(models.TimerStateRunning)},
			{Name: eventPause, Src: []string{string(models.TimerStateRunning)}, Dst: string(models.TimerStatePaused)},
			{Name: eventResume, Src: []string{string(models.TimerStatePaused)}, Dst: string(models.TimerStateRunning)},
			{Name: eventReset, Src: []string{
				string(models.TimerStateIdle),
				string(models.TimerStateRunning),
				string(models.TimerStatePaused),
			}, Dst: string(models.TimerStateIdle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				a.logger.Debug().Str("event", e.Event).Str("from", e.Src).Str("to", e.Dst).Msg("timer transition")
			},
		},
	)
	return a
}

// Start subscribes to the shared record and adopts every snapshot until ctx
// is cancelled.
func (a *App) Start(ctx context.Context) error {
	updates, err := a.remote.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer a.Close()

	a.logger.Info().Msg("timer client started")

	for {
		select {
		case <-ctx.Done():
			a.logger.Info().Msg("timer client shutting down")
			return nil
		case snapshot, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("timer subscription closed")
			}
			a.HandleSnapshot(ctx, snapshot)
		}
	}
}

// Close stops the display refresh. Later actions still update state but
// never re-arm the ticker.
func (a *App) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.ticker.Stop()
}

// HandleSnapshot adopts a snapshot observed on the store. A nil snapshot
// means there is no timer yet: the default one is adopted and published.
func (a *App) HandleSnapshot(ctx context.Context, remote *models.Snapshot) {
	if remote == nil {
		def := models.DefaultSnapshot()
		a.mu.Lock()
		a.loaded = true
		a.needsFull = false
		a.setSnapshotLocked(def, "")
		a.mu.Unlock()

		a.logger.Info().Msg("no timer record found, publishing default")
		if err := a.publish(ctx, "initialize", models.FullPatch(def)); err != nil {
			a.logger.Error().Err(err).Msg("failed to publish default timer")
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = true
	a.setSnapshotLocked(Normalize(*remote), "")
}

// Snapshot returns the local snapshot.
func (a *App) Snapshot() models.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot
}

// View returns what the display currently shows.
func (a *App) View() View {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.viewLocked()
}

// Redraw pushes the current view to the renderer.
func (a *App) Redraw() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.renderLocked()
}

// TickerArmed reports whether the display refresh is running.
func (a *App) TickerArmed() bool {
	return a.ticker.Armed()
}

// SetDescription handles description-changed.
func (a *App) SetDescription(ctx context.Context, text string) error {
	a.mu.Lock()
	next, patch := EditDescription(a.snapshot, text)
	a.setSnapshotLocked(next, "")
	patch = a.promoteLocked(patch)
	a.mu.Unlock()

	return a.publish(ctx, "edit_description", patch)
}

// FocusTime handles time-field-focused. Until the matching blur the time
// text is frozen and the refresh is disarmed.
func (a *App) FocusTime() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.editing = true
	a.focusText = a.timeText
	a.syncTickerLocked()
	a.renderLocked()
}

// BlurTime handles time-field-blurred with the text left in the field.
func (a *App) BlurTime(ctx context.Context, text string) error {
	now := a.now()

	a.mu.Lock()
	focusText, wasEditing := a.focusText, a.editing
	a.editing = false
	a.focusText = ""

	typed := ParseTime(text)
	current := ElapsedSeconds(a.snapshot, now)
	if (wasEditing && ParseTime(focusText) == typed) || a.withinTolerance(typed, current) {
		a.timeText = FormatTime(current)
		a.syncTickerLocked()
		a.renderLocked()
		a.mu.Unlock()
		return nil
	}

	next, patch := EditTime(a.snapshot, typed, now)
	a.logger.Info().
		Int64("typed_seconds", typed).
		Int64("computed_seconds", current).
		Str("state", string(a.snapshot.State())).
		Msg("time edited")
	a.setSnapshotLocked(next, "")
	patch = a.promoteLocked(patch)
	a.mu.Unlock()

	return a.publish(ctx, "edit_time", patch)
}

func (a *App) withinTolerance(typed, current int64) bool {
	diff := typed - current
	if diff < 0 {
		diff = -diff
	}
	return diff <= int64(a.cfg.EditTolerance/time.Second)
}

// Toggle handles toggle-start-pause.
func (a *App) Toggle(ctx context.Context) error {
	a.mu.Lock()
	running := a.snapshot.State() == models.TimerStateRunning
	a.mu.Unlock()

	if running {
		return a.pause(ctx)
	}
	return a.startOrResume(ctx)
}

func (a *App) startOrResume(ctx context.Context) error {
	now := a.now()

	a.mu.Lock()
	event := eventStart
	switch a.snapshot.State() {
	case models.TimerStateRunning:
		a.mu.Unlock()
		return nil
	case models.TimerStatePaused:
		event = eventResume
	}
	next, patch := StartOrResume(a.snapshot, now)
	a.setSnapshotLocked(next, event)
	patch = a.promoteLocked(patch)
	a.mu.Unlock()

	return a.publish(ctx, event, patch)
}

// pause re-reads the record first: if another client already paused later
// than now, this pause is abandoned.
func (a *App) pause(ctx context.Context) error {
	now := a.now()

	if a.guard.Online() {
		remote, err := a.remote.Read(ctx)
		switch {
		case err != nil:
			a.logger.Warn().Err(err).Msg("read before pause failed")
		case PauseSuperseded(remote, now):
			a.metrics.RecordPauseConflict()
			a.logger.Warn().
				Int64("pause_at", now).
				Int64("remote_last_paused", *remote.LastPausedTime).
				Msg("newer pause already published, abandoning pause")
			a.HandleSnapshot(ctx, remote)
			return nil
		}
	}

	a.mu.Lock()
	if a.snapshot.State() != models.TimerStateRunning {
		a.mu.Unlock()
		return nil
	}
	next, patch := Pause(a.snapshot, now)
	a.setSnapshotLocked(next, eventPause)
	patch = a.promoteLocked(patch)
	a.mu.Unlock()

	return a.publish(ctx, eventPause, patch)
}

// Reset handles reset.
func (a *App) Reset(ctx context.Context) error {
	a.mu.Lock()
	next, patch := ResetSnapshot()
	a.editing = false
	a.focusText = ""
	a.needsFull = false
	a.setSnapshotLocked(next, eventReset)
	a.mu.Unlock()

	return a.publish(ctx, eventReset, patch)
}

// publish sends patch through the guard. Skipped and failed writes are not
// errors for local state; they only promote the next write to a full one.
func (a *App) publish(ctx context.Context, op string, patch models.Patch) error {
	if patch.IsEmpty() {
		return nil
	}
	skipped, err := a.guard.Do(ctx, op, func(ctx context.Context) error {
		return a.remote.Write(ctx, op, patch)
	})
	if skipped {
		a.markStale()
		a.metrics.RecordSkippedWrite(op)
		a.logger.Warn().Str("op", op).Strs("fields", patch.Fields()).Msg("offline, write skipped")
		return nil
	}
	if err != nil {
		a.markStale()
		a.logger.Error().Err(err).Str("op", op).Msg("failed to publish timer")
		return fmt.Errorf("publish %s: %w", op, err)
	}
	return nil
}

func (a *App) markStale() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.needsFull = true
}

// promoteLocked widens patch to the full local snapshot when an earlier
// write never reached the store.
func (a *App) promoteLocked(patch models.Patch) models.Patch {
	if !a.needsFull {
		return patch
	}
	a.needsFull = false
	return models.FullPatch(a.snapshot)
}

func (a *App) setSnapshotLocked(next models.Snapshot, event string) {
	a.snapshot = next
	a.syncMachineLocked(event)
	if !a.editing {
		a.timeText = FormatTime(ElapsedSeconds(next, a.now()))
	}
	a.syncTickerLocked()
	a.renderLocked()
}

// syncMachineLocked moves the state machine to the snapshot's state, through
// event when one is given and legal.
func (a *App) syncMachineLocked(event string) {
	target := string(a.snapshot.State())
	if event != "" && a.machine.Can(event) {
		err := a.machine.Event(context.Background(), event)
		var noTransition fsm.NoTransitionError
		if err != nil && !errors.As(err, &noTransition) {
			a.logger.Warn().Err(err).Str("event", event).Msg("state machine rejected event")
		}
	}
	if a.machine.Current() != target {
		a.machine.SetState(target)
	}
}

func (a *App) syncTickerLocked() {
	if a.snapshot.State() == models.TimerStateRunning && !a.editing && !a.closed {
		a.ticker.Arm()
	} else {
		a.ticker.Disarm()
	}
}

// refresh runs on every tick.
func (a *App) refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.editing || a.snapshot.State() != models.TimerStateRunning {
		return
	}
	a.timeText = FormatTime(ElapsedSeconds(a.snapshot, a.now()))
	a.renderLocked()
}

func (a *App) renderLocked() {
	a.renderer.Render(a.viewLocked())
}

func (a *App) viewLocked() View {
	return View{
		Description:    a.snapshot.Description,
		Time:           a.timeText,
		ElapsedSeconds: ElapsedSeconds(a.snapshot, a.now()),
		Running:        a.snapshot.IsRunning,
		State:          models.TimerState(a.machine.Current()),
		Editing:        a.editing,
		Online:         a.guard.Online(),
		Loaded:         a.loaded,
	}
}

func (a *App) now() int64 {
	return a.clock.Now().UnixMilli()
}
