package observability

import (
	"sync"
	"time"
)

// RequestWindow counts events into per-second buckets over a fixed-width
// sliding window. It backs the dashboard's requests-per-second gauge and
// its sparkline history.
type RequestWindow struct {
	mu     sync.Mutex
	width  int64
	secs   []int64
	counts []int
}

// NewRequestWindow creates a window of the given width, minimum one
// second.
func NewRequestWindow(width time.Duration) *RequestWindow {
	w := int64(width / time.Second)
	if w < 1 {
		w = 1
	}
	return &RequestWindow{
		width:  w,
		secs:   make([]int64, w),
		counts: make([]int, w),
	}
}

// Record counts one event at the current time.
func (w *RequestWindow) Record() {
	w.RecordAt(time.Now())
}

// RecordAt counts one event at the given time. Buckets are recycled in
// place, so old entries expire as the window slides.
func (w *RequestWindow) RecordAt(t time.Time) {
	sec := t.Unix()
	w.mu.Lock()
	defer w.mu.Unlock()

	i := sec % w.width
	if w.secs[i] != sec {
		w.secs[i] = sec
		w.counts[i] = 0
	}
	w.counts[i]++
}

// Rate returns the average events per second over the window.
func (w *RequestWindow) Rate() float64 {
	return w.RateAt(time.Now())
}

// RateAt returns the average events per second over the window ending at
// the given time.
func (w *RequestWindow) RateAt(t time.Time) float64 {
	total := 0
	for _, n := range w.historyAt(t) {
		total += n
	}
	return float64(total) / float64(w.width)
}

// Sparkline returns the per-second counts for the window ending now,
// oldest bucket first.
func (w *RequestWindow) Sparkline() []int {
	return w.SparklineAt(time.Now())
}

// SparklineAt returns the per-second counts for the window ending at the
// given time, oldest bucket first.
func (w *RequestWindow) SparklineAt(t time.Time) []int {
	return w.historyAt(t)
}

func (w *RequestWindow) historyAt(t time.Time) []int {
	now := t.Unix()
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]int, w.width)
	for off := int64(0); off < w.width; off++ {
		sec := now - w.width + 1 + off
		i := sec % w.width
		if i < 0 {
			i += w.width
		}
		if w.secs[i] == sec {
			out[off] = w.counts[i]
		}
	}
	return out
}
