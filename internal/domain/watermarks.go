package domain

import "time"

// Watermarks maps every series to the last sample delivered for it. A
// missing key means nothing was ever delivered.
type Watermarks map[MetricKey]Sample

// Accepts reports whether s may be delivered for key: there is no watermark
// yet, or s is strictly newer than it.
func (w Watermarks) Accepts(key MetricKey, s Sample) bool {
	last, ok := w[key]
	if !ok {
		return true
	}
	return Newer(last, s)
}

// Advance moves the watermark of key to s. It never moves backwards and
// reports whether the watermark changed.
func (w Watermarks) Advance(key MetricKey, s Sample) bool {
	if !w.Accepts(key, s) {
		return false
	}
	w[key] = s
	return true
}

// Earliest returns the oldest watermark timestamp across all series.
func (w Watermarks) Earliest() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, s := range w {
		if !found || s.Timestamp.Before(earliest) {
			earliest = s.Timestamp
			found = true
		}
	}
	return earliest, found
}

// Clone returns an independent copy.
func (w Watermarks) Clone() Watermarks {
	out := make(Watermarks, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}
