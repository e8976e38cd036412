package timer

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultKey is the store key holding the shared timer.
const DefaultKey = "timer"

// Adapter reads, subscribes to and writes the shared snapshot on a store.
type Adapter struct {
	store   store.Store
	key     string
	metrics Metrics
	clock   clockwork.Clock
	logger  zerolog.Logger
}

// NewAdapter creates a new remote timer adapter
func NewAdapter(st store.Store, key string, clock clockwork.Clock, metrics Metrics) *Adapter {
	if key == "" {
		key = DefaultKey
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Adapter{
		store:   st,
		key:     key,
		metrics: metrics,
		clock:   clock,
		logger:  log.With().Str("key", key).Logger(),
	}
}

// Read fetches the current snapshot. Absent and malformed records both
// yield nil without error.
func (a *Adapter) Read(ctx context.Context) (*models.Snapshot, error) {
	doc, err := a.store.Get(ctx, a.key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read timer: %w", err)
	}
	return a.decode(doc), nil
}

func (a *Adapter) decode(doc models.Document) *models.Snapshot {
	if doc == nil {
		return nil
	}
	s, err := DecodeSnapshot(doc)
	if err != nil {
		a.logger.Warn().Err(err).Msg("treating malformed timer record as absent")
		return nil
	}
	return &s
}

// Subscribe streams the snapshot, starting with the current value. A nil
// element means the record is absent.
func (a *Adapter) Subscribe(ctx context.Context) (<-chan *models.Snapshot, error) {
	changes, err := a.store.Watch(ctx, a.key)
	if err != nil {
		return nil, fmt.Errorf("subscribe timer: %w", err)
	}

	out := make(chan *models.Snapshot)
	go func() {
		defer close(out)
		for change := range changes {
			s := a.decode(change.Document)
			if s != nil {
				a.metrics.RecordSnapshot(s.State())
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Write merges p into the stored record. op names the action for metrics. A non-null lastPausedTime is only
// written when the stored one is not newer; otherwise that field is dropped
// so a stale client cannot roll back a later pause.
func (a *Adapter) Write(ctx context.Context, op string, p models.Patch) error {
	if p.LastPausedTime.Present && p.LastPausedTime.Value != nil {
		remote, err := a.Read(ctx)
		if err != nil {
			return fmt.Errorf("read before write: %w", err)
		}
		if PauseSuperseded(remote, *p.LastPausedTime.Value) {
			a.logger.Warn().
				Int64("local_last_paused", *p.LastPausedTime.Value).
				Int64("remote_last_paused", *remote.LastPausedTime).
				Msg("dropping stale lastPausedTime from write")
			a.metrics.RecordDroppedField(models.FieldLastPausedTime)
			p = p.Without(models.FieldLastPausedTime)
		}
	}
	if p.IsEmpty() {
		return nil
	}

	doc, err := p.Document()
	if err != nil {
		return fmt.Errorf("encode patch: %w", err)
	}

	start := a.clock.Now()
	err = a.store.Merge(ctx, a.key, doc)
	a.metrics.RecordWrite(op, len(doc), err == nil, a.clock.Since(start))
	if err != nil {
		return fmt.Errorf("write timer: %w", err)
	}

	a.logger.Debug().Str("op", op).Strs("fields", p.Fields()).Msg("timer written")
	return nil
}
