package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalConfigJSON(t *testing.T) {
	js := `{
        "device_id": "rtsensor",
        "sample_interval_ms": 100,
        "outputs": [{"type":"console"}, {"type":"redis", "redis": {"addr": "localhost:6379", "history": 60}}],
        "sensor_type":"real",
        "sensors": [
            {"driver": "bmp180", "bus": "1", "address": 119, "enabled": true, "oversampling": 3,
             "calibration": {"pressure": {"scale": 1.0, "offset": 0.12}}},
            {"driver": "tsl2561", "enabled": false, "integration_time": 2}
        ]
    }`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(js), &cfg))
	assert.Equal(t, "rtsensor", cfg.DeviceID)
	assert.Equal(t, 100, cfg.SampleIntervalMs)
	assert.Equal(t, SensorTypeReal, cfg.SensorType)

	require.Len(t, cfg.Outputs, 2)
	assert.Equal(t, OutputConsole, cfg.Outputs[0].Type)
	require.NotNil(t, cfg.Outputs[1].Redis)
	assert.Equal(t, 60, cfg.Outputs[1].Redis.History)

	require.Len(t, cfg.Sensors, 2)
	s0 := cfg.Sensors[0]
	assert.Equal(t, 0x77, s0.Address)
	assert.True(t, s0.Enabled)
	assert.Equal(t, 3, s0.Oversampling)
	assert.Equal(t, 0.12, s0.Calibration["pressure"].Offset)
	assert.False(t, cfg.Sensors[1].Enabled)
	assert.Equal(t, 2, cfg.Sensors[1].IntegrationTime)
}
