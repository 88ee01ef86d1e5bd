package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
	"github.com/ericogr/pisensor-mqtt/pkg/telemetry"
)

func TestSetAddReading(t *testing.T) {
	s := NewSet(4, time.Second, sensor.Temperature, sensor.Pressure)
	assert.Equal(t, []sensor.ChannelID{sensor.Temperature, sensor.Pressure}, s.Channels())

	assert.True(t, s.AddReading(sensor.Reading{Channel: sensor.Temperature, Value: 20, Timestamp: 1}))
	assert.True(t, s.AddReading(sensor.Reading{Channel: sensor.Temperature, Value: 22, Timestamp: 1.5}))
	assert.False(t, s.AddReading(sensor.Reading{Channel: sensor.Light, Value: 1, Timestamp: 1}))

	b, ok := s.Buffer(sensor.Temperature)
	require.True(t, ok)
	assert.Equal(t, 21.0, b.CurrentData())
	b, _ = s.Buffer(sensor.Pressure)
	assert.False(t, b.DataValid())
}

func TestSetAddRecord(t *testing.T) {
	s := NewSet(4, time.Second)
	assert.Len(t, s.Channels(), len(sensor.Channels))

	err := s.AddRecord(telemetry.Record{DeviceID: "x"})
	assert.ErrorIs(t, err, telemetry.ErrNoTimestamp)

	rec := telemetry.New("dev", "dev/sensors", 5, map[sensor.ChannelID]float64{
		sensor.AccelX: 0.5, sensor.AccelY: 0, sensor.AccelZ: 1, sensor.Humidity: 40,
	})
	require.NoError(t, s.AddRecord(rec))
	ts := 6.0
	rec.Timestamp = &ts
	require.NoError(t, s.AddRecord(rec))

	b, _ := s.Buffer(sensor.AccelX)
	assert.Equal(t, []float64{0, 0, 0, 0.5}, b.Data())
	b, _ = s.Buffer(sensor.Light)
	assert.False(t, b.DataValid())
}

func TestSetSummaries(t *testing.T) {
	s := NewSet(3, time.Second, sensor.Light)
	for i, v := range []float64{10, 30, 20, 25} {
		s.AddReading(sensor.Reading{Channel: sensor.Light, Value: v, Timestamp: float64(i)})
	}
	sum := s.Summaries()
	require.Len(t, sum, 1)
	assert.Equal(t, Summary{Channel: sensor.Light, Valid: true, Current: 25, Latest: 20, Min: 10, Max: 30}, sum[0])
}
