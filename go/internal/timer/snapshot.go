package timer

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/mcdev12/tasktimer/go/internal/models"
)

var snapshotFields = []string{
	models.FieldDescription,
	models.FieldIsRunning,
	models.FieldStartTime,
	models.FieldLastPausedTime,
	models.FieldPausedElapsedInterval,
}

// DecodeSnapshot reads a stored document into a normalized snapshot. Fields of
// the wrong type fall back to their defaults; a document without any timer
// field is malformed.
func DecodeSnapshot(doc models.Document) (models.Snapshot, error) {
	known := 0
	for _, f := range snapshotFields {
		if _, ok := doc[f]; ok {
			known++
		}
	}
	if known == 0 {
		return models.Snapshot{}, fmt.Errorf("decode snapshot: %w", ErrMalformedSnapshot)
	}

	var s models.Snapshot
	if raw, ok := doc[models.FieldDescription]; ok {
		_ = json.Unmarshal(raw, &s.Description)
	}
	if raw, ok := doc[models.FieldIsRunning]; ok {
		_ = json.Unmarshal(raw, &s.IsRunning)
	}
	s.StartTime = decodeMillis(doc[models.FieldStartTime])
	s.LastPausedTime = decodeMillis(doc[models.FieldLastPausedTime])
	if v := decodeMillis(doc[models.FieldPausedElapsedInterval]); v != nil {
		s.PausedElapsedInterval = *v
	}
	return Normalize(s), nil
}

// decodeMillis accepts integral or fractional JSON numbers. Anything else,
// including null, yields nil.
func decodeMillis(raw json.RawMessage) *int64 {
	if len(raw) == 0 {
		return nil
	}
	var f *float64
	if err := json.Unmarshal(raw, &f); err != nil || f == nil {
		return nil
	}
	if math.IsNaN(*f) || math.IsInf(*f, 0) || math.Abs(*f) > math.MaxInt64/2 {
		return nil
	}
	return models.Millis(int64(math.Floor(*f)))
}

// Normalize restores the snapshot invariants:
//   - running implies a start time and no pause time
//   - a stopped timer either has both timestamps or neither
//   - the paused interval is never negative and is zero while idle
func Normalize(s models.Snapshot) models.Snapshot {
	if s.PausedElapsedInterval < 0 {
		s.PausedElapsedInterval = 0
	}
	if s.IsRunning {
		if s.StartTime != nil {
			s.LastPausedTime = nil
			return s
		}
		s.IsRunning = false
	}
	if s.StartTime == nil || s.LastPausedTime == nil {
		s.StartTime = nil
		s.LastPausedTime = nil
		s.PausedElapsedInterval = 0
	}
	return s
}
