package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/mcdev12/tasktimer/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/sqlc-dev/pqtype"
)

// Schema creates the document table used by PostgresStore.
const Schema = `
CREATE TABLE IF NOT EXISTS timer_documents (
    key        TEXT PRIMARY KEY,
    data       JSONB,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const (
	getDocumentSQL = `SELECT data FROM timer_documents WHERE key = $1`

	// jsonb || overwrites only the top-level keys present on the right side
	mergeDocumentSQL = `
INSERT INTO timer_documents (key, data, updated_at)
VALUES ($1, $2::jsonb, now())
ON CONFLICT (key) DO UPDATE SET
    data = CASE
        WHEN jsonb_typeof(timer_documents.data) = 'object' THEN timer_documents.data || EXCLUDED.data
        ELSE EXCLUDED.data
    END,
    updated_at = now()`

	notifySQL = `SELECT pg_notify($1, $2)`
)

type PostgresConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to re-read watched keys
	PingInterval     time.Duration
	MinReconnect     time.Duration
	MaxReconnect     time.Duration
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		NotifyChannel:    "timer_documents_changed",
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
		MinReconnect:     10 * time.Second,
		MaxReconnect:     time.Minute,
	}
}

// PostgresStore keeps documents in a jsonb column and pushes changes through
// LISTEN/NOTIFY, with a periodic re-read for notifications lost while the
// listener was reconnecting.
type PostgresStore struct {
	db       *sql.DB
	listener *pq.Listener
	hub      *watchHub
	cfg      PostgresConfig
	cancel   context.CancelFunc
	done     chan struct{}

	// serializes read-then-deliver so an older read is never delivered
	// after a newer one
	deliverMu sync.Mutex
}

func NewPostgresStore(db *sql.DB, cfg PostgresConfig, onStatus StatusFunc) (*PostgresStore, error) {
	if onStatus == nil {
		onStatus = func(bool) {}
	}
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			switch ev {
			case pq.ListenerEventConnected, pq.ListenerEventReconnected:
				onStatus(true)
			case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
				onStatus(false)
			}
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	ctx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{
		db:       db,
		listener: l,
		hub:      newWatchHub(),
		cfg:      cfg,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go s.run(ctx)
	return s, nil
}

func (s *PostgresStore) run(ctx context.Context) {
	defer close(s.done)

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	fallbackTicker := time.NewTicker(s.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case note := <-s.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established
				s.refresh(ctx, s.hub.keys()...)
				continue
			}
			s.refresh(ctx, note.Extra)
		case <-fallbackTicker.C:
			s.refresh(ctx, s.hub.keys()...)
		case <-pingTicker.C:
			if err := s.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (s *PostgresStore) refresh(ctx context.Context, keys ...string) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	for _, key := range keys {
		doc, err := s.Get(ctx, key)
		if err != nil && !errors.Is(err, ErrNotFound) {
			log.Error().Err(err).Str("key", key).Msg("failed to refresh watched document")
			continue
		}
		s.hub.publish(Change{Key: key, Document: doc})
	}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (models.Document, error) {
	var data pqtype.NullRawMessage
	err := s.db.QueryRowContext(ctx, getDocumentSQL, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !data.Valid) {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	doc, err := decodeDocument(data.RawMessage)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ignoring malformed document")
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return doc, nil
}

func (s *PostgresStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	ch, err := s.hub.add(key)
	if err != nil {
		return nil, err
	}

	s.deliverMu.Lock()
	doc, err := s.Get(ctx, key)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.deliverMu.Unlock()
		s.hub.remove(key, ch)
		return nil, err
	}
	s.hub.send(ch, Change{Key: key, Document: doc})
	s.deliverMu.Unlock()

	go func() {
		<-ctx.Done()
		s.hub.remove(key, ch)
	}()
	return ch, nil
}

func (s *PostgresStore) Merge(ctx context.Context, key string, fields models.Document) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	err = sqlutil.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, mergeDocumentSQL, key, pqtype.NullRawMessage{RawMessage: data, Valid: true}); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, notifySQL, s.cfg.NotifyChannel, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("merge %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	s.cancel()
	<-s.done
	s.hub.closeAll()
	return s.listener.Close()
}
