// Package viewer aggregates subscribed records and renders the channel
// status table.
package viewer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/record"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

// WriteTable renders one row per channel: validity, live interval mean,
// newest closed slot and the window range.
func WriteTable(w io.Writer, title string, sums []record.Summary) error {
	t := table.NewWriter()
	if title != "" {
		t.SetTitle(title)
	}
	t.AppendHeader(table.Row{"Channel", "Valid", "Current", "Latest", "Min", "Max"})
	for _, s := range sums {
		if !s.Valid {
			t.AppendRow(table.Row{s.Channel, "no", "-", "-", "-", "-"})
			continue
		}
		t.AppendRow(table.Row{s.Channel, "yes", format(s.Current), format(s.Latest), format(s.Min), format(s.Max)})
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func format(v float64) string { return fmt.Sprintf("%.3f", v) }

// Viewer feeds subscribed records into a Set and renders it every interval.
type Viewer struct {
	set      *record.Set
	title    string
	interval time.Duration
	out      io.Writer
	clock    clock.Clock
	logger   *zap.Logger
}

type Option func(*Viewer)

func WithClock(c clock.Clock) Option { return func(v *Viewer) { v.clock = c } }

func WithLogger(l *zap.Logger) Option {
	return func(v *Viewer) {
		if l != nil {
			v.logger = l
		}
	}
}

func New(set *record.Set, title string, interval time.Duration, out io.Writer, opts ...Option) *Viewer {
	v := &Viewer{set: set, title: title, interval: interval, out: out, clock: clock.New(), logger: zap.NewNop()}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Handle adds one received record.
func (v *Viewer) Handle(rec telemetry.Record) {
	if err := v.set.AddRecord(rec); err != nil {
		v.logger.Debug("record rejected", zap.String("device", rec.DeviceID), zap.Error(err))
	}
}

// Run renders the table every interval until ctx is done.
func (v *Viewer) Run(ctx context.Context) error {
	ticker := v.clock.Ticker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := WriteTable(v.out, v.title, v.set.Summaries()); err != nil {
				return fmt.Errorf("render status: %w", err)
			}
		}
	}
}
