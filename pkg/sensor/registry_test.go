package sensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/i2c/i2ctest"
)

func TestDrivers(t *testing.T) {
	assert.Equal(t, []string{"ads1115", "adxl345", "bmp180", "htu21d", "mcp9808", "tmp102", "tsl2561"}, Drivers())
	chs, ok := DriverChannels("BMP180")
	assert.True(t, ok)
	assert.Equal(t, []ChannelID{Temperature, Pressure}, chs)
}

func TestOpenBMP180(t *testing.T) {
	dev := newBMP180Device()
	s, err := Open(config.SensorConfig{
		Driver:   "bmp180",
		Bus:      "1",
		Enabled:  true,
		Channels: []string{"pressure"},
		Calibration: map[string]config.Calibration{
			"pressure": {Scale: 1, Offset: 0.35},
			"humidity": {Offset: 5},
		},
	}, i2ctest.Opener(map[uint16]*i2ctest.Device{0x77: dev}), nil)
	require.NoError(t, err)
	assert.True(t, s.Valid())
	assert.Equal(t, []ChannelID{Pressure}, s.Channels())

	s.Poll(t0)
	dev.Set(bmp180RegControl, 0)
	s.Poll(t0)
	dev.Set(bmp180RegControl, 0)
	got := s.Poll(t0)
	require.Len(t, got, 1)
	assert.InDelta(t, 700.0, got[0].Value, 1e-9)

	require.NoError(t, s.Close())
	assert.True(t, dev.Closed())
}

func TestOpenAbsentReturnsNull(t *testing.T) {
	// wrong chip id
	dev := i2ctest.New().Set(bmp180RegID, 0x00)
	s, err := Open(config.SensorConfig{Driver: "bmp180"}, i2ctest.Opener(map[uint16]*i2ctest.Device{0x77: dev}), nil)
	assert.ErrorIs(t, err, ErrDeviceAbsent)
	assert.False(t, s.Valid())
	assert.Equal(t, []ChannelID{Temperature, Pressure}, s.Channels())
	assert.True(t, dev.Closed())

	// nothing on the bus at that address
	s, err = Open(config.SensorConfig{Driver: "mcp9808"}, i2ctest.Opener(nil), nil)
	assert.ErrorIs(t, err, ErrDeviceAbsent)
	assert.False(t, s.Valid())
}

func TestOpenRejectsBadConfig(t *testing.T) {
	open := i2ctest.Opener(nil)
	_, err := Open(config.SensorConfig{Driver: "bme680"}, open, nil)
	assert.ErrorContains(t, err, "unknown driver")

	_, err = Open(config.SensorConfig{Driver: "tmp102", Channels: []string{"humidity"}}, open, nil)
	assert.ErrorContains(t, err, "no channel")

	_, err = Open(config.SensorConfig{Driver: "tmp102", Channels: []string{"dew_point"}}, open, nil)
	assert.ErrorContains(t, err, "unknown channel")
}

func TestOpenAddressOverride(t *testing.T) {
	dev := i2ctest.New().Set(mcp9808RegID, mcp9808DeviceID)
	s, err := Open(config.SensorConfig{Driver: "mcp9808", Address: 0x1C},
		i2ctest.Opener(map[uint16]*i2ctest.Device{0x1C: dev}), zap.NewNop())
	require.NoError(t, err)
	assert.True(t, s.Valid())
}

func TestOpenAll(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := config.DefaultConfig()
	cfg.Sensors = []config.SensorConfig{
		{Driver: "mcp9808", Enabled: true},
		{Driver: "tmp102", Enabled: false},
		{Driver: "adxl345", Enabled: true},
	}
	dev := i2ctest.New().Set(mcp9808RegID, mcp9808DeviceID)
	sensors := OpenAll(cfg, i2ctest.Opener(map[uint16]*i2ctest.Device{mcp9808Address: dev}), zap.New(core))

	require.Len(t, sensors, 2)
	assert.True(t, sensors[0].Valid())
	assert.False(t, sensors[1].Valid())
	assert.Equal(t, 1, logs.FilterMessage("sensor not detected, disabled").Len())
	assert.Equal(t, 1, logs.FilterMessage("sensor ready").Len())
}

func TestOpenAllDefaultChannelsConflict(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	cfg := config.DefaultConfig()
	cfg.Sensors = []config.SensorConfig{
		{Driver: "bmp180", Enabled: true},
		{Driver: "mcp9808", Enabled: true},
	}
	mcp := i2ctest.New().Set(mcp9808RegID, mcp9808DeviceID)
	sensors := OpenAll(cfg, i2ctest.Opener(map[uint16]*i2ctest.Device{
		bmp180Address:  newBMP180Device(),
		mcp9808Address: mcp,
	}), zap.New(core))

	require.Len(t, sensors, 2)
	assert.True(t, sensors[0].Valid())
	assert.Equal(t, []ChannelID{Temperature, Pressure}, sensors[0].Channels())
	assert.False(t, sensors[1].Valid())
	assert.Empty(t, sensors[1].Channels())
	assert.Equal(t, "mcp9808", sensors[1].Name())
	assert.True(t, mcp.Closed())

	entries := logs.FilterMessage("channel already provided by another sensor, disabled").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "temperature", entries[0].ContextMap()["channel"])
	assert.Equal(t, "bmp180", entries[0].ContextMap()["owner"])
}

func TestOpenAllSimulationConflict(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorTypeSimulation
	cfg.Sensors = []config.SensorConfig{
		{Driver: "tmp102", Enabled: true},
		{Driver: "mcp9808", Enabled: true},
		{Driver: "htu21d", Enabled: true, Channels: []string{"humidity"}},
	}
	sensors := OpenAll(cfg, nil, nil)
	require.Len(t, sensors, 3)
	assert.True(t, sensors[0].Valid())
	assert.False(t, sensors[1].Valid())
	assert.Equal(t, []ChannelID{Humidity}, sensors[2].Channels())
}

func TestOpenAllSimulation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SensorType = config.SensorTypeSimulation
	sensors := OpenAll(cfg, nil, nil)
	require.Len(t, sensors, 4)

	var chans []ChannelID
	for _, s := range sensors {
		assert.IsType(t, &Fake{}, s)
		chans = append(chans, s.Channels()...)
	}
	assert.ElementsMatch(t, []ChannelID{AccelX, AccelY, AccelZ, Light, Temperature, Pressure, Humidity}, chans)
}
