package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/tasktimer/go/internal/models"
)

var (
	// ErrNotFound is returned by Get when the key holds no document.
	ErrNotFound = errors.New("document not found")
	// ErrClosed is returned once the store has been closed.
	ErrClosed = errors.New("store closed")
	// ErrConflict is returned when a merge keeps losing compare-and-set races.
	ErrConflict = errors.New("merge conflict retries exhausted")
)

// Change is pushed to watchers whenever a key changes. A nil Document means
// the key is absent or holds something that is not a JSON object.
type Change struct {
	Key      string
	Document models.Document
}

// Store is a key to JSON-object store with push-on-change subscriptions and
// field-level merge writes.
type Store interface {
	// Get fetches the current document for key or ErrNotFound.
	Get(ctx context.Context, key string) (models.Document, error)
	// Watch pushes the current value immediately and then every change. The
	// channel is closed when ctx is done or the store is closed.
	Watch(ctx context.Context, key string) (<-chan Change, error)
	// Merge overwrites the given top-level fields, leaving the others as they are.
	Merge(ctx context.Context, key string, fields models.Document) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// decodeDocument parses raw into a document. Anything other than a JSON
// object yields an error.
func decodeDocument(raw []byte) (models.Document, error) {
	var doc models.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode document: not an object")
	}
	return doc, nil
}

// mergeDocuments returns base with fields laid over it. base is not modified.
func mergeDocuments(base, fields models.Document) models.Document {
	merged := make(models.Document, len(base)+len(fields))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return merged
}

func cloneDocument(doc models.Document) models.Document {
	if doc == nil {
		return nil
	}
	return mergeDocuments(doc, nil)
}
