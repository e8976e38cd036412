package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/tasktimer/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds configuration for the JetStream key-value backend
type NATSConfig struct {
	URL           string
	Bucket        string
	History       uint8
	MaxReconnects int
	ReconnectWait time.Duration
	MergeRetries  int // compare-and-set attempts per merge
}

// DefaultNATSConfig returns default JetStream key-value configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Bucket:        "TASK_TIMER",
		History:       5,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
		MergeRetries:  10,
	}
}

// StatusFunc receives connectivity transitions of a backend connection.
type StatusFunc func(online bool)

// ConnectNATS dials NATS and reports disconnects and reconnects to onStatus.
func ConnectNATS(cfg NATSConfig, onStatus StatusFunc) (*nats.Conn, error) {
	if onStatus == nil {
		onStatus = func(bool) {}
	}
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
			onStatus(false)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
			onStatus(true)
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
			onStatus(false)
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	onStatus(true)
	return nc, nil
}

// NATSStore keeps documents in a JetStream key-value bucket. Merges are
// read-modify-write cycles guarded by the entry revision.
type NATSStore struct {
	nc  *nats.Conn
	kv  jetstream.KeyValue
	cfg NATSConfig
}

// NewNATSStore creates the bucket if needed. The store owns nc and closes it.
func NewNATSStore(ctx context.Context, nc *nats.Conn, cfg NATSConfig) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Shared task timer documents",
		History:     cfg.History,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure bucket %s: %w", cfg.Bucket, err)
	}

	log.Info().Str("bucket", cfg.Bucket).Msg("using JetStream key-value bucket")

	return &NATSStore{nc: nc, kv: kv, cfg: cfg}, nil
}

func isMissing(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func (s *NATSStore) Get(ctx context.Context, key string) (models.Document, error) {
	entry, err := s.kv.Get(ctx, key)
	if isMissing(err) {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	doc, err := decodeDocument(entry.Value())
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("ignoring malformed document")
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return doc, nil
}

func (s *NATSStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	watcher, err := s.kv.Watch(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}

	out := make(chan Change, 1)
	go func() {
		defer close(out)
		defer func() {
			if err := watcher.Stop(); err != nil {
				log.Debug().Err(err).Str("key", key).Msg("failed to stop watcher")
			}
		}()

		seen := false
		for {
			select {
			case <-ctx.Done():
				return
			case entry, ok := <-watcher.Updates():
				if !ok {
					return
				}
				var change Change
				switch {
				case entry == nil:
					// end of initial values; an absent key produced none
					if seen {
						continue
					}
					change = Change{Key: key}
				case entry.Operation() != jetstream.KeyValuePut:
					change = Change{Key: key}
				default:
					doc, err := decodeDocument(entry.Value())
					if err != nil {
						log.Warn().Err(err).Str("key", key).Uint64("revision", entry.Revision()).Msg("malformed document in watch")
					}
					change = Change{Key: key, Document: doc}
				}
				seen = true
				offerLatest(out, change)
			}
		}
	}()
	return out, nil
}

func (s *NATSStore) Merge(ctx context.Context, key string, fields models.Document) error {
	for attempt := 0; attempt < s.cfg.MergeRetries; attempt++ {
		entry, err := s.kv.Get(ctx, key)
		switch {
		case isMissing(err):
			data, mErr := json.Marshal(fields)
			if mErr != nil {
				return fmt.Errorf("encode document: %w", mErr)
			}
			_, err = s.kv.Create(ctx, key, data)
		case err != nil:
			return fmt.Errorf("get %s: %w", key, err)
		default:
			base, dErr := decodeDocument(entry.Value())
			if dErr != nil {
				base = nil
			}
			data, mErr := json.Marshal(mergeDocuments(base, fields))
			if mErr != nil {
				return fmt.Errorf("encode document: %w", mErr)
			}
			_, err = s.kv.Update(ctx, key, data, entry.Revision())
		}

		if err == nil {
			return nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("merge %s: %w", key, err)
		}
		log.Debug().Str("key", key).Int("attempt", attempt+1).Msg("revision moved during merge, retrying")
	}
	return fmt.Errorf("merge %s: %w", key, ErrConflict)
}

func (s *NATSStore) Ping(ctx context.Context) error {
	if !s.nc.IsConnected() {
		return fmt.Errorf("NATS status %s", s.nc.Status())
	}
	if _, ok := ctx.Deadline(); !ok {
		return s.nc.FlushTimeout(2 * time.Second)
	}
	return s.nc.FlushWithContext(ctx)
}

func (s *NATSStore) Close() error {
	s.nc.Close()
	return nil
}
