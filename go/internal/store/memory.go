package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/mcdev12/tasktimer/go/internal/models"
)

// MemoryStore keeps documents in process. It backs tests and the
// single-process mode where every client lives in the same binary.
type MemoryStore struct {
	mu     sync.RWMutex
	docs   map[string]models.Document
	hub    *watchHub
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]models.Document),
		hub:  newWatchHub(),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	doc, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Watch(ctx context.Context, key string) (<-chan Change, error) {
	ch, err := s.hub.add(key)
	if err != nil {
		return nil, err
	}

	// merges publish under the write lock, so sending under the read lock
	// keeps the initial value from overwriting a newer change
	s.mu.RLock()
	s.hub.send(ch, Change{Key: key, Document: cloneDocument(s.docs[key])})
	s.mu.RUnlock()

	go func() {
		<-ctx.Done()
		s.hub.remove(key, ch)
	}()
	return ch, nil
}

func (s *MemoryStore) Merge(ctx context.Context, key string, fields models.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	merged := mergeDocuments(s.docs[key], fields)
	s.docs[key] = merged
	// publish under the write lock so watchers observe merges in commit order
	s.hub.publish(Change{Key: key, Document: merged})
	s.mu.Unlock()
	return nil
}

// Put replaces the whole document for key. A nil document deletes it.
func (s *MemoryStore) Put(key string, doc models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc == nil {
		delete(s.docs, key)
	} else {
		s.docs[key] = cloneDocument(doc)
	}
	s.hub.publish(Change{Key: key, Document: doc})
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.hub.closeAll()
	return nil
}
