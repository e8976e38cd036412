package timer

import (
	"time"

	"github.com/mcdev12/tasktimer/go/internal/models"
)

// Metrics defines the interface for collecting timer client metrics
type Metrics interface {
	RecordWrite(op string, fields int, success bool, duration time.Duration)
	RecordSkippedWrite(op string)
	RecordPauseConflict()
	RecordDroppedField(field string)
	RecordSnapshot(state models.TimerState)
}

// NoOpMetrics is a no-op implementation for when metrics aren't needed
type NoOpMetrics struct{}

func (NoOpMetrics) RecordWrite(op string, fields int, success bool, duration time.Duration) {}
func (NoOpMetrics) RecordSkippedWrite(op string)                                          {}
func (NoOpMetrics) RecordPauseConflict()                                                  {}
func (NoOpMetrics) RecordDroppedField(field string)                                       {}
func (NoOpMetrics) RecordSnapshot(state models.TimerState)                                {}
