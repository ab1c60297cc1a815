package window

import (
	"time"

	"github.com/ghalamif/AegisWatch/internal/domain"
)

const (
	// MaxSpan keeps one call under CloudWatch's 1,440 datapoint cap at a
	// 60s period (24h), with an hour of margin for off-by-one boundaries.
	MaxSpan = 23 * time.Hour
	// MinTrailing is the longest trailing window that is dropped as noise.
	// The smallest period is 60s, so nothing shorter can hold a datapoint
	// that was not already covered.
	MinTrailing = 30 * time.Second
)

// Split cuts [start, end) into contiguous windows of at most maxSpan,
// oldest first. A trailing remainder of MinTrailing or less is dropped.
// maxSpan <= 0 disables chunking.
func Split(start, end time.Time, maxSpan time.Duration) []domain.TimeWindow {
	if !end.After(start) {
		return nil
	}

	var out []domain.TimeWindow
	if maxSpan > 0 {
		for end.Sub(start) > maxSpan {
			blockEnd := start.Add(maxSpan)
			out = append(out, domain.TimeWindow{Start: start, End: blockEnd})
			start = blockEnd
		}
	}
	if end.Sub(start) > MinTrailing {
		out = append(out, domain.TimeWindow{Start: start, End: end})
	}
	return out
}

// Trailing returns the windows for the last lookback before now.
func Trailing(now time.Time, lookback time.Duration) []domain.TimeWindow {
	return Split(now.Add(-lookback), now, MaxSpan)
}
