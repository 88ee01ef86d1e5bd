package record

import (
	"sync"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/mathx"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

// Set keeps one Buffer per channel of a topic. It is safe for concurrent use.
type Set struct {
	mu       sync.Mutex
	channels []sensor.ChannelID
	buffers  map[sensor.ChannelID]*Buffer
}

// NewSet creates the buffers up front. With no channels every known channel is tracked.
func NewSet(length int, interval time.Duration, channels ...sensor.ChannelID) *Set {
	if len(channels) == 0 {
		channels = sensor.Channels
	}
	s := &Set{
		channels: append([]sensor.ChannelID(nil), channels...),
		buffers:  make(map[sensor.ChannelID]*Buffer, len(channels)),
	}
	for _, c := range channels {
		s.buffers[c] = NewBuffer(length, interval.Seconds())
	}
	return s
}

// AddReading feeds r to its channel's buffer. Readings of untracked channels
// are dropped and false is returned.
func (s *Set) AddReading(r sensor.Reading) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[r.Channel]
	if !ok {
		return false
	}
	b.AddData(r.Timestamp, r.Value)
	return true
}

// AddRecord feeds every present channel of rec at the record timestamp.
func (s *Set) AddRecord(rec telemetry.Record) error {
	if rec.Timestamp == nil {
		return telemetry.ErrNoTimestamp
	}
	ts := *rec.Timestamp
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch, v := range rec.Values() {
		if b, ok := s.buffers[ch]; ok {
			b.AddData(ts, v)
		}
	}
	return nil
}

func (s *Set) Channels() []sensor.ChannelID {
	return append([]sensor.ChannelID(nil), s.channels...)
}

// Buffer returns the buffer of ch. Callers sharing the Set across goroutines
// should use Summary instead.
func (s *Set) Buffer(ch sensor.ChannelID) (*Buffer, bool) {
	b, ok := s.buffers[ch]
	return b, ok
}

// Summary is a point-in-time view of one channel.
type Summary struct {
	Channel sensor.ChannelID
	Valid   bool
	Current float64
	Latest  float64
	Min     float64
	Max     float64
}

// Summaries returns one Summary per tracked channel, in channel order.
func (s *Set) Summaries() []Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Summary, 0, len(s.channels))
	for _, c := range s.channels {
		b := s.buffers[c]
		lo, hi := mathx.MinMax(b.data)
		out = append(out, Summary{
			Channel: c,
			Valid:   b.DataValid(),
			Current: b.CurrentData(),
			Latest:  b.Latest(),
			Min:     lo,
			Max:     hi,
		})
	}
	return out
}
