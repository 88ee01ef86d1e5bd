package sensor

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
)

// Phase is the acquisition state of a Machine: PhaseIdle, or the index of
// the sub-measurement whose conversion is in flight.
type Phase int

const PhaseIdle Phase = -1

func (p Phase) String() string {
	if p == PhaseIdle {
		return "idle"
	}
	return fmt.Sprintf("awaiting(%d)", int(p))
}

// Converter is the device-specific half of a Machine. None of its methods
// may wait for the hardware.
type Converter interface {
	// Phases is the number of sub-measurements in one complete reading.
	Phases() int
	// Start issues the start command for sub-measurement k.
	Start(k int) error
	// Ready reports whether sub-measurement k has completed. elapsed is the
	// time since Start(k) was issued.
	Ready(k int, elapsed time.Duration) (bool, error)
	// Collect reads the raw result(s) of sub-measurement k.
	Collect(k int) ([]int64, error)
	// Compensate turns the raw results of all phases, in phase order, into one
	// value per channel. It returns ErrDegenerate instead of dividing by zero.
	Compensate(raw []int64) ([]float64, error)
}

// Machine is the non-blocking acquisition state machine shared by every
// hardware driver. Each call to Poll advances it by at most one step.
// A Machine is not safe for concurrent use.
type Machine struct {
	name     string
	conv     Converter
	channels []ChannelID
	enabled  map[ChannelID]bool
	cal      map[ChannelID]config.Calibration
	timeout  time.Duration
	closer   io.Closer
	logger   *zap.Logger

	phase     Phase
	started   time.Time
	raw       []int64
	values    []float64
	dataValid bool
}

type Option func(*Machine)

func WithLogger(l *zap.Logger) Option {
	return func(m *Machine) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPhaseTimeout bounds the time spent waiting on one phase. When it runs
// out the partial reading is discarded and the next poll starts over.
func WithPhaseTimeout(d time.Duration) Option {
	return func(m *Machine) { m.timeout = d }
}

func WithCalibration(cal map[ChannelID]config.Calibration) Option {
	return func(m *Machine) { m.cal = cal }
}

// WithEnabled restricts the channels that are reported. Unknown channels are ignored.
func WithEnabled(chs ...ChannelID) Option {
	return func(m *Machine) {
		if len(chs) == 0 {
			return
		}
		m.enabled = map[ChannelID]bool{}
		for _, c := range chs {
			m.enabled[c] = true
		}
	}
}

// WithCloser releases c (usually the bus) on Close.
func WithCloser(c io.Closer) Option {
	return func(m *Machine) { m.closer = c }
}

// NewMachine wraps conv. channels names the values Compensate returns, in order.
func NewMachine(name string, conv Converter, channels []ChannelID, opts ...Option) *Machine {
	m := &Machine{
		name:     name,
		conv:     conv,
		channels: channels,
		logger:   zap.NewNop(),
		phase:    PhaseIdle,
		values:   make([]float64, len(channels)),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Machine) Name() string { return m.name }

// Channels returns the reported channels.
func (m *Machine) Channels() []ChannelID {
	out := make([]ChannelID, 0, len(m.channels))
	for _, c := range m.channels {
		if m.reports(c) {
			out = append(out, c)
		}
	}
	return out
}

func (m *Machine) reports(c ChannelID) bool {
	return m.enabled == nil || m.enabled[c]
}

func (m *Machine) Phase() Phase { return m.phase }

// Valid is always true: a device that fails detection never gets a Machine.
func (m *Machine) Valid() bool { return true }

// DataValid becomes true with the first complete reading and stays true.
func (m *Machine) DataValid() bool { return m.dataValid }

// Current returns the last valid value of ch.
func (m *Machine) Current(ch ChannelID) (float64, bool) {
	if !m.dataValid || !m.reports(ch) {
		return 0, false
	}
	for i, c := range m.channels {
		if c == ch {
			return m.values[i], true
		}
	}
	return 0, false
}

// Poll advances the conversion by one step and returns the readings of a
// reading completed on this call, if any.
func (m *Machine) Poll(now time.Time) []Reading {
	if m.phase == PhaseIdle {
		m.start(0, now)
		return nil
	}

	k := int(m.phase)
	elapsed := now.Sub(m.started)
	if m.timeout > 0 && elapsed >= m.timeout {
		m.logger.Debug("phase timed out", zap.String("sensor", m.name),
			zap.Stringer("phase", m.phase), zap.Duration("elapsed", elapsed))
		m.reset()
		return nil
	}
	ready, err := m.conv.Ready(k, elapsed)
	if err != nil {
		m.abandon(err)
		return nil
	}
	if !ready {
		return nil
	}
	raw, err := m.conv.Collect(k)
	if err != nil {
		m.abandon(err)
		return nil
	}
	m.raw = append(m.raw, raw...)

	if k+1 < m.conv.Phases() {
		m.start(k+1, now)
		return nil
	}
	return m.complete(now)
}

func (m *Machine) start(k int, now time.Time) {
	if k == 0 {
		m.raw = m.raw[:0]
	}
	if err := m.conv.Start(k); err != nil {
		m.abandon(err)
		return
	}
	m.phase = Phase(k)
	m.started = now
}

func (m *Machine) complete(now time.Time) []Reading {
	values, err := m.conv.Compensate(m.raw)
	m.reset()
	if err != nil {
		if errors.Is(err, ErrDegenerate) {
			m.logger.Debug("compensation skipped", zap.String("sensor", m.name), zap.Error(err))
		} else {
			m.logger.Warn("compensation failed", zap.String("sensor", m.name), zap.Error(err))
		}
		return nil
	}
	if len(values) != len(m.channels) {
		m.logger.Warn("compensation returned wrong value count", zap.String("sensor", m.name),
			zap.Int("got", len(values)), zap.Int("want", len(m.channels)))
		return nil
	}

	ts := Timestamp(now)
	out := make([]Reading, 0, len(values))
	for i, v := range values {
		c := m.channels[i]
		if cal, ok := m.cal[c]; ok {
			scale := cal.Scale
			if scale == 0 {
				scale = 1
			}
			v = v*scale + cal.Offset
		}
		m.values[i] = v
		if m.reports(c) {
			out = append(out, Reading{Channel: c, Value: v, Timestamp: ts})
		}
	}
	m.dataValid = true
	return out
}

// abandon drops the in-flight conversion after a bus error.
func (m *Machine) abandon(err error) {
	m.logger.Debug("bus error, restarting conversion", zap.String("sensor", m.name),
		zap.Stringer("phase", m.phase), zap.Error(err))
	m.reset()
}

func (m *Machine) reset() {
	m.phase = PhaseIdle
	m.raw = m.raw[:0]
}

func (m *Machine) Close() error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}
