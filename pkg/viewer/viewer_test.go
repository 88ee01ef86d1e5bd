package viewer

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/pisensor-mqtt/pkg/record"
	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestWriteTable(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTable(&buf, "rtsensor", []record.Summary{
		{Channel: sensor.Temperature, Valid: true, Current: 15, Latest: 14.5, Min: 14, Max: 16.25},
		{Channel: sensor.Humidity},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "rtsensor")
	assert.Contains(t, out, "temperature")
	assert.Contains(t, out, "15.000")
	assert.Contains(t, out, "16.250")

	var humidity string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "humidity") {
			humidity = line
		}
	}
	require.NotEmpty(t, humidity)
	assert.Contains(t, humidity, "no")
	assert.NotContains(t, humidity, "0.000")
}

func TestViewerHandleAndRun(t *testing.T) {
	mock := clock.NewMock()
	set := record.NewSet(10, time.Second, sensor.Light)
	out := &syncBuffer{}
	v := New(set, "dev/sensors", time.Second, out, WithClock(mock))

	ts := 100.0
	v.Handle(telemetry.Record{Timestamp: &ts, Light: &ts})
	v.Handle(telemetry.Record{Light: &ts})
	sums := set.Summaries()
	require.Len(t, sums, 1)
	assert.True(t, sums[0].Valid)
	assert.Equal(t, 100.0, sums[0].Current)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Run(ctx) }()

	assert.Eventually(t, func() bool {
		mock.Add(time.Second)
		return strings.Contains(out.String(), "light")
	}, time.Second, 10*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
