// Package record turns irregular channel readings into fixed-length
// per-interval averages.
package record

import "math"

const (
	// DefaultLength is the slot count used when none is configured.
	DefaultLength = 600
	// DefaultInterval is the slot width in seconds used when the
	// configured one is not a positive finite number.
	DefaultInterval = 1.0
)

// Buffer holds the last N interval means of one channel, oldest first.
// A Buffer is not safe for concurrent use.
type Buffer struct {
	data     []float64
	interval float64

	anchor float64
	sum    float64
	count  int
	valid  bool
}

type BufferOption func(*Buffer)

// WithFill sets the value of slots that have never been written.
func WithFill(v float64) BufferOption {
	return func(b *Buffer) {
		for i := range b.data {
			b.data[i] = v
		}
	}
}

// NewBuffer returns a buffer of length slots, each interval seconds wide.
func NewBuffer(length int, interval float64, opts ...BufferOption) *Buffer {
	if length <= 0 {
		length = DefaultLength
	}
	if !(interval > 0) || math.IsInf(interval, 1) {
		interval = DefaultInterval
	}
	b := &Buffer{data: make([]float64, length), interval: interval}
	for _, o := range opts {
		o(b)
	}
	return b
}

// AddData adds one sample taken at ts (seconds). Samples older than the
// current interval start count towards the current interval. Samples
// with a non-finite timestamp are dropped.
func (b *Buffer) AddData(ts, v float64) {
	if math.IsNaN(ts) || math.IsInf(ts, 0) {
		return
	}
	if !b.valid {
		b.anchor = ts
		b.sum, b.count = v, 1
		b.valid = true
		return
	}
	d := ts - b.anchor
	if d < b.interval {
		b.sum += v
		b.count++
		return
	}
	n := math.Floor(d / b.interval)
	b.anchor += n * b.interval
	b.push(b.sum/float64(b.count), n)
	b.sum, b.count = v, 1
}

// push shifts n copies of mean in on the right.
func (b *Buffer) push(mean, n float64) {
	l := len(b.data)
	if n >= float64(l) {
		for i := range b.data {
			b.data[i] = mean
		}
		return
	}
	k := int(n)
	copy(b.data, b.data[k:])
	for i := l - k; i < l; i++ {
		b.data[i] = mean
	}
}

// Data returns a copy of the slots, oldest first.
func (b *Buffer) Data() []float64 {
	out := make([]float64, len(b.data))
	copy(out, b.data)
	return out
}

// Latest returns the newest closed slot.
func (b *Buffer) Latest() float64 { return b.data[len(b.data)-1] }

// CurrentData returns the running mean of the open interval, 0 when it has no samples.
func (b *Buffer) CurrentData() float64 {
	if b.count == 0 {
		return 0
	}
	return b.sum / float64(b.count)
}

// DataValid reports whether any sample was ever added.
func (b *Buffer) DataValid() bool { return b.valid }

func (b *Buffer) Len() int { return len(b.data) }

// Interval is the slot width in seconds.
func (b *Buffer) Interval() float64 { return b.interval }
