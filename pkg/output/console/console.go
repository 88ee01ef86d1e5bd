package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/output"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

type ConsoleOutput struct{}

func NewConsole() output.Output { return &ConsoleOutput{} }

func (c *ConsoleOutput) Publish(rec telemetry.Record) error {
	var b strings.Builder
	b.WriteString(rec.Time().UTC().Format(time.RFC3339))
	if rec.DeviceID != "" {
		fmt.Fprintf(&b, " device=%s", rec.DeviceID)
	}
	values := rec.Values()
	for _, ch := range sensor.Channels {
		if v, ok := values[ch]; ok {
			fmt.Fprintf(&b, " %s=%.6f", ch, v)
		}
	}
	b.WriteByte('\n')
	_, err := fmt.Print(b.String())
	return err
}

func (c *ConsoleOutput) Close() error { return nil }
