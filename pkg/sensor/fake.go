package sensor

import (
	"math/rand"
	"sync"
	"time"
)

var fakeBaselines = map[ChannelID]struct{ base, step float64 }{
	AccelX:      {0, 0.01},
	AccelY:      {0, 0.01},
	AccelZ:      {1, 0.01},
	Light:       {300, 5},
	Temperature: {20, 0.05},
	Pressure:    {1013.25, 0.1},
	Humidity:    {45, 0.2},
	ADC0:        {1.65, 0.01},
	ADC1:        {1.65, 0.01},
	ADC2:        {1.65, 0.01},
	ADC3:        {1.65, 0.01},
}

// Fake is the simulation sensor: every poll completes a reading whose values
// random-walk around plausible baselines.
type Fake struct {
	mu       sync.Mutex
	name     string
	channels []ChannelID
	values   map[ChannelID]float64
	valid    bool
	rnd      *rand.Rand
}

func NewFake(name string, seed int64, channels ...ChannelID) *Fake {
	f := &Fake{
		name:     name,
		channels: channels,
		values:   make(map[ChannelID]float64, len(channels)),
		rnd:      rand.New(rand.NewSource(seed)),
	}
	for _, c := range channels {
		f.values[c] = fakeBaselines[c].base
	}
	return f
}

func (f *Fake) Name() string          { return f.name }
func (f *Fake) Channels() []ChannelID { return f.channels }
func (f *Fake) Valid() bool           { return true }
func (f *Fake) Close() error          { return nil }

func (f *Fake) Poll(now time.Time) []Reading {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := Timestamp(now)
	out := make([]Reading, 0, len(f.channels))
	for _, c := range f.channels {
		b := fakeBaselines[c]
		v := f.values[c] + (f.rnd.Float64()*2-1)*b.step
		// pull back towards the baseline so the walk stays bounded
		v += (b.base - v) * 0.05
		f.values[c] = v
		out = append(out, Reading{Channel: c, Value: v, Timestamp: ts})
	}
	f.valid = true
	return out
}

func (f *Fake) Current(ch ChannelID) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.valid {
		return 0, false
	}
	v, ok := f.values[ch]
	return v, ok
}
