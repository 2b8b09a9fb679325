package engine

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

type timedValue struct {
	t time.Time
	v float64
}

// timeWindow keeps the values observed within a trailing span. Values must
// be pushed in non-decreasing time order, which the session's reorder buffer
// guarantees.
type timeWindow struct {
	span  time.Duration
	items []timedValue
}

func newTimeWindow(span time.Duration) *timeWindow {
	return &timeWindow{span: span}
}

func (w *timeWindow) Push(t time.Time, v float64) {
	w.items = append(w.items, timedValue{t: t, v: v})
	w.Trim(t)
}

// Trim drops values older than the span relative to now.
func (w *timeWindow) Trim(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.items) && w.items[i].t.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.items = append(w.items[:0], w.items[i:]...)
	}
}

func (w *timeWindow) Len() int { return len(w.items) }

func (w *timeWindow) Values() []float64 {
	out := make([]float64, len(w.items))
	for i, it := range w.items {
		out[i] = it.v
	}
	return out
}

func (w *timeWindow) Mean() float64 {
	if len(w.items) == 0 {
		return 0
	}
	return stat.Mean(w.Values(), nil)
}

// Variance is the population variance of the window contents.
func (w *timeWindow) Variance() float64 {
	if len(w.items) < 2 {
		return 0
	}
	vs := w.Values()
	mean := stat.Mean(vs, nil)
	var sum float64
	for _, v := range vs {
		d := v - mean
		sum += d * d
	}
	return sum / float64(len(vs))
}
