// Package scheduler drives the sensors from a single tick loop and hands
// snapshots to the outputs.
package scheduler

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/output"
	"github.com/ericogr/pisensor-mqtt/pkg/record"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
	"github.com/ericogr/pisensor-mqtt/pkg/viewer"
)

// queueDepth bounds the records waiting for one output while Run is active.
const queueDepth = 4

// Target is an output with its own publish interval. Zero publishes every tick.
type Target struct {
	Name       string
	Output     output.Output
	IntervalMs int

	last  time.Time
	queue chan telemetry.Record
}

func (t *Target) due(now time.Time) bool {
	return t.last.IsZero() || now.Sub(t.last) >= time.Duration(t.IntervalMs)*time.Millisecond
}

// Settings are the loop's fixed parameters.
type Settings struct {
	DeviceID       string
	Topic          string
	SampleInterval time.Duration
	StatusInterval time.Duration
}

type Loop struct {
	settings Settings
	sensors  []sensor.Sensor
	set      *record.Set
	targets  []*Target

	clock      clock.Clock
	logger     *zap.Logger
	status     io.Writer
	lastStatus time.Time
}

type Option func(*Loop)

func WithClock(c clock.Clock) Option { return func(l *Loop) { l.clock = c } }

func WithLogger(lg *zap.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithStatusWriter sets where the status table goes, stdout by default.
func WithStatusWriter(w io.Writer) Option { return func(l *Loop) { l.status = w } }

func New(s Settings, sensors []sensor.Sensor, set *record.Set, targets []*Target, opts ...Option) *Loop {
	l := &Loop{
		settings: s,
		sensors:  sensors,
		set:      set,
		targets:  targets,
		clock:    clock.New(),
		logger:   zap.NewNop(),
		status:   os.Stdout,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Run ticks at the sample interval until ctx is done. Each target is
// published from its own goroutine; when its queue is full the record is
// dropped and the tick goes on.
func (l *Loop) Run(ctx context.Context) error {
	stop := l.startPublishers()
	defer stop()
	ticker := l.clock.Ticker(l.settings.SampleInterval)
	defer ticker.Stop()
	l.logger.Info("sampling started", zap.Duration("interval", l.settings.SampleInterval),
		zap.Int("sensors", len(l.sensors)), zap.Int("outputs", len(l.targets)))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.Tick(l.clock.Now())
		}
	}
}

// Tick polls every sensor once, records what completed and publishes to the
// outputs that are due.
func (l *Loop) Tick(now time.Time) {
	for _, s := range l.sensors {
		for _, r := range s.Poll(now) {
			l.set.AddReading(r)
		}
	}

	var rec *telemetry.Record
	for _, t := range l.targets {
		if !t.due(now) {
			continue
		}
		if rec == nil {
			r, ok := l.snapshot(now)
			if !ok {
				break
			}
			rec = &r
		}
		t.last = now
		l.dispatch(t, *rec)
	}

	if l.settings.StatusInterval > 0 &&
		(l.lastStatus.IsZero() || now.Sub(l.lastStatus) >= l.settings.StatusInterval) {
		l.lastStatus = now
		if err := viewer.WriteTable(l.status, l.settings.DeviceID, l.set.Summaries()); err != nil {
			l.logger.Warn("status table", zap.Error(err))
		}
	}
}

// startPublishers starts one goroutine per target. The returned func closes
// the queues and waits for what is already queued to be published.
func (l *Loop) startPublishers() func() {
	var wg sync.WaitGroup
	for _, t := range l.targets {
		t.queue = make(chan telemetry.Record, queueDepth)
		wg.Add(1)
		go func(t *Target, q <-chan telemetry.Record) {
			defer wg.Done()
			for rec := range q {
				l.publish(t, rec)
			}
		}(t, t.queue)
	}
	return func() {
		for _, t := range l.targets {
			close(t.queue)
			t.queue = nil
		}
		wg.Wait()
	}
}

// dispatch hands rec to the target's publisher, or publishes inline when
// none is running.
func (l *Loop) dispatch(t *Target, rec telemetry.Record) {
	if t.queue == nil {
		l.publish(t, rec)
		return
	}
	select {
	case t.queue <- rec:
	default:
		l.logger.Warn("publish queue full, record dropped", zap.String("output", t.Name))
	}
}

func (l *Loop) publish(t *Target, rec telemetry.Record) {
	if err := t.Output.Publish(rec); err != nil {
		l.logger.Warn("publish failed", zap.String("output", t.Name), zap.Error(err))
	}
}

// snapshot collects the current value of every valid channel. It reports
// false while no channel has data yet.
func (l *Loop) snapshot(now time.Time) (telemetry.Record, bool) {
	values := map[sensor.ChannelID]float64{}
	for _, s := range l.sensors {
		if !s.Valid() {
			continue
		}
		for _, ch := range s.Channels() {
			if v, ok := s.Current(ch); ok {
				values[ch] = v
			}
		}
	}
	if len(values) == 0 {
		return telemetry.Record{}, false
	}
	return telemetry.New(l.settings.DeviceID, l.settings.Topic, sensor.Timestamp(now), values), true
}
