package models

import (
	"encoding/json"
	"sort"
)

// Field names of the shared timer record as they appear in the store.
const (
	FieldDescription           = "description"
	FieldIsRunning             = "isRunning"
	FieldStartTime             = "startTime"
	FieldLastPausedTime        = "lastPausedTime"
	FieldPausedElapsedInterval = "pausedElapsedInterval"
)

// TimerState classifies a snapshot.
type TimerState string

const (
	TimerStateIdle    TimerState = "idle"
	TimerStateRunning TimerState = "running"
	TimerStatePaused  TimerState = "paused"
)

// Document is a JSON object keyed by top-level field name. Stores merge
// documents field by field.
type Document map[string]json.RawMessage

// Snapshot is the single shared timer record. Timestamps are epoch
// milliseconds.
type Snapshot struct {
	Description           string `json:"description"`
	IsRunning             bool   `json:"isRunning"`
	StartTime             *int64 `json:"startTime"`
	LastPausedTime        *int64 `json:"lastPausedTime"`
	PausedElapsedInterval int64  `json:"pausedElapsedInterval"`
}

// DefaultSnapshot returns the never-started timer.
func DefaultSnapshot() Snapshot {
	return Snapshot{}
}

// State derives the Idle/Running/Paused classification.
func (s Snapshot) State() TimerState {
	switch {
	case s.IsRunning && s.StartTime != nil:
		return TimerStateRunning
	case s.StartTime != nil && s.LastPausedTime != nil:
		return TimerStatePaused
	default:
		return TimerStateIdle
	}
}

// Equal compares two snapshots field by field, dereferencing timestamps.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.Description == o.Description &&
		s.IsRunning == o.IsRunning &&
		s.PausedElapsedInterval == o.PausedElapsedInterval &&
		equalMillis(s.StartTime, o.StartTime) &&
		equalMillis(s.LastPausedTime, o.LastPausedTime)
}

func equalMillis(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Millis returns a pointer to v.
func Millis(v int64) *int64 {
	return &v
}

// OptionalMillis is a patch value for a nullable timestamp. Present with a
// nil Value writes JSON null.
type OptionalMillis struct {
	Present bool
	Value   *int64
}

// SetMillis builds a present OptionalMillis from a nullable timestamp.
func SetMillis(v *int64) OptionalMillis {
	if v == nil {
		return OptionalMillis{Present: true}
	}
	c := *v
	return OptionalMillis{Present: true, Value: &c}
}

// Patch is a partial update of the timer record. Nil pointers and absent
// OptionalMillis are left untouched by a merge.
type Patch struct {
	Description           *string
	IsRunning             *bool
	StartTime             OptionalMillis
	LastPausedTime        OptionalMillis
	PausedElapsedInterval *int64
}

// FullPatch writes every field of s.
func FullPatch(s Snapshot) Patch {
	desc := s.Description
	running := s.IsRunning
	paused := s.PausedElapsedInterval
	return Patch{
		Description:           &desc,
		IsRunning:             &running,
		StartTime:             SetMillis(s.StartTime),
		LastPausedTime:        SetMillis(s.LastPausedTime),
		PausedElapsedInterval: &paused,
	}
}

// IsEmpty reports whether the patch carries no field.
func (p Patch) IsEmpty() bool {
	return p.Description == nil && p.IsRunning == nil && !p.StartTime.Present &&
		!p.LastPausedTime.Present && p.PausedElapsedInterval == nil
}

// Without returns a copy of p with the named field removed.
func (p Patch) Without(field string) Patch {
	switch field {
	case FieldDescription:
		p.Description = nil
	case FieldIsRunning:
		p.IsRunning = nil
	case FieldStartTime:
		p.StartTime = OptionalMillis{}
	case FieldLastPausedTime:
		p.LastPausedTime = OptionalMillis{}
	case FieldPausedElapsedInterval:
		p.PausedElapsedInterval = nil
	}
	return p
}

// Apply merges p into s.
func (p Patch) Apply(s Snapshot) Snapshot {
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.IsRunning != nil {
		s.IsRunning = *p.IsRunning
	}
	if p.StartTime.Present {
		s.StartTime = copyMillis(p.StartTime.Value)
	}
	if p.LastPausedTime.Present {
		s.LastPausedTime = copyMillis(p.LastPausedTime.Value)
	}
	if p.PausedElapsedInterval != nil {
		s.PausedElapsedInterval = *p.PausedElapsedInterval
	}
	return s
}

func copyMillis(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Fields lists the field names carried by p, sorted.
func (p Patch) Fields() []string {
	doc, _ := p.Document()
	fields := make([]string, 0, len(doc))
	for k := range doc {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Document encodes the present fields of p.
func (p Patch) Document() (Document, error) {
	doc := make(Document)
	put := func(field string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return err
		}
		doc[field] = raw
		return nil
	}
	if p.Description != nil {
		if err := put(FieldDescription, *p.Description); err != nil {
			return nil, err
		}
	}
	if p.IsRunning != nil {
		if err := put(FieldIsRunning, *p.IsRunning); err != nil {
			return nil, err
		}
	}
	if p.StartTime.Present {
		if err := put(FieldStartTime, p.StartTime.Value); err != nil {
			return nil, err
		}
	}
	if p.LastPausedTime.Present {
		if err := put(FieldLastPausedTime, p.LastPausedTime.Value); err != nil {
			return nil, err
		}
	}
	if p.PausedElapsedInterval != nil {
		if err := put(FieldPausedElapsedInterval, *p.PausedElapsedInterval); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// MarshalJSON encodes only the present fields.
func (p Patch) MarshalJSON() ([]byte, error) {
	doc, err := p.Document()
	if err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
