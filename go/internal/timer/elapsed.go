package timer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mcdev12/tasktimer/go/internal/models"
)

// maxSegment bounds a single H, M or S component so the sum cannot overflow.
const maxSegment = 1_000_000_000

// ElapsedMillis derives the running time of s at now (epoch ms). It never
// returns a negative value.
func ElapsedMillis(s models.Snapshot, now int64) int64 {
	var ms int64
	switch {
	case s.IsRunning && s.StartTime != nil:
		ms = now - *s.StartTime - s.PausedElapsedInterval
	case s.StartTime != nil && s.LastPausedTime != nil:
		ms = *s.LastPausedTime - *s.StartTime - s.PausedElapsedInterval
	}
	if ms < 0 {
		return 0
	}
	return ms
}

// ElapsedSeconds is ElapsedMillis floored to whole seconds.
func ElapsedSeconds(s models.Snapshot, now int64) int64 {
	return ElapsedMillis(s, now) / 1000
}

// FormatTime renders seconds as H:MM:SS. Negative input renders as 0:00:00.
func FormatTime(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ParseTime reads text typed into the time field.
//
// Three components are H:MM:SS, two are MM:SS and a single component is a
// number of minutes. Segments that are not non-negative integers count as
// zero, and more than three components parse as zero.
func ParseTime(text string) int64 {
	parts := strings.Split(strings.TrimSpace(text), ":")
	var h, m, s int64
	switch len(parts) {
	case 3:
		h, m, s = parseSegment(parts[0]), parseSegment(parts[1]), parseSegment(parts[2])
	case 2:
		m, s = parseSegment(parts[0]), parseSegment(parts[1])
	case 1:
		m = parseSegment(parts[0])
	default:
		return 0
	}
	return h*3600 + m*60 + s
}

func parseSegment(p string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
	if err != nil || v < 0 || v > maxSegment {
		return 0
	}
	return v
}
