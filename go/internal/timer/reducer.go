package timer

import "github.com/mcdev12/tasktimer/go/internal/models"

// The reducer functions below are pure: they map the local snapshot and the
// current instant to the next snapshot and the patch to publish.

// StartOrResume starts an idle timer or resumes a paused one. Resuming folds
// the paused span into PausedElapsedInterval and keeps StartTime fixed.
func StartOrResume(s models.Snapshot, now int64) (models.Snapshot, models.Patch) {
	next := s
	switch s.State() {
	case models.TimerStateRunning:
		return s, models.Patch{}
	case models.TimerStatePaused:
		// a pause stamped ahead of our clock must not shrink the interval
		if gap := now - *s.LastPausedTime; gap > 0 {
			next.PausedElapsedInterval += gap
		}
	default:
		next.StartTime = models.Millis(now)
	}
	next.IsRunning = true
	next.LastPausedTime = nil
	return next, models.FullPatch(next)
}

// Pause stops a running timer at now.
func Pause(s models.Snapshot, now int64) (models.Snapshot, models.Patch) {
	if s.State() != models.TimerStateRunning {
		return s, models.Patch{}
	}
	next := s
	next.IsRunning = false
	next.LastPausedTime = models.Millis(now)
	return next, models.FullPatch(next)
}

// ResetSnapshot returns the default snapshot and a patch writing all of it.
func ResetSnapshot() (models.Snapshot, models.Patch) {
	next := models.DefaultSnapshot()
	return next, models.FullPatch(next)
}

// EditDescription changes only the description.
func EditDescription(s models.Snapshot, text string) (models.Snapshot, models.Patch) {
	next := s
	next.Description = text
	return next, models.Patch{Description: &text}
}

// EditTime rewrites the timestamps so that the snapshot shows typed seconds
// at now without changing its Idle/Running/Paused classification, except
// that an idle timer becomes paused at the typed value.
//
//	running: startTime = now - typed - pausedElapsedInterval
//	paused:  startTime = lastPausedTime - pausedElapsedInterval - typed
//	idle:    startTime = now - typed, lastPausedTime = now
func EditTime(s models.Snapshot, typedSeconds int64, now int64) (models.Snapshot, models.Patch) {
	if typedSeconds < 0 {
		typedSeconds = 0
	}
	typed := typedSeconds * 1000
	next := s
	switch s.State() {
	case models.TimerStateRunning:
		next.StartTime = models.Millis(now - typed - s.PausedElapsedInterval)
	case models.TimerStatePaused:
		next.StartTime = models.Millis(*s.LastPausedTime - s.PausedElapsedInterval - typed)
	default:
		next.StartTime = models.Millis(now - typed)
		next.LastPausedTime = models.Millis(now)
		next.PausedElapsedInterval = 0
	}
	paused := next.PausedElapsedInterval
	return next, models.Patch{
		StartTime:             models.SetMillis(next.StartTime),
		LastPausedTime:        models.SetMillis(next.LastPausedTime),
		PausedElapsedInterval: &paused,
	}
}

// PauseSuperseded reports whether remote already carries a pause stamped
// strictly later than pauseAt. Delivery order plays no part.
func PauseSuperseded(remote *models.Snapshot, pauseAt int64) bool {
	return remote != nil && remote.LastPausedTime != nil && *remote.LastPausedTime > pauseAt
}
