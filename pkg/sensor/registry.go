package sensor

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ericogr/pisensor-mqtt/pkg/config"
	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
)

type driver struct {
	address  uint16
	channels []ChannelID
	// build runs detection and returns the converter and the channel order
	// of its Compensate output.
	build func(bus i2c.Bus, cfg config.SensorConfig) (Converter, []ChannelID, error)
}

var drivers = map[string]driver{
	"bmp180": {
		address:  bmp180Address,
		channels: []ChannelID{Temperature, Pressure},
		build: func(bus i2c.Bus, cfg config.SensorConfig) (Converter, []ChannelID, error) {
			c, err := NewBMP180(bus, cfg.Oversampling)
			return c, []ChannelID{Temperature, Pressure}, err
		},
	},
	"htu21d": {
		address:  htu21dAddress,
		channels: []ChannelID{Temperature, Humidity},
		build: func(bus i2c.Bus, _ config.SensorConfig) (Converter, []ChannelID, error) {
			c, err := NewHTU21D(bus)
			return c, []ChannelID{Temperature, Humidity}, err
		},
	},
	"mcp9808": {
		address:  mcp9808Address,
		channels: []ChannelID{Temperature},
		build: func(bus i2c.Bus, _ config.SensorConfig) (Converter, []ChannelID, error) {
			c, err := NewMCP9808(bus)
			return c, []ChannelID{Temperature}, err
		},
	},
	"tmp102": {
		address:  tmp102Address,
		channels: []ChannelID{Temperature},
		build: func(bus i2c.Bus, _ config.SensorConfig) (Converter, []ChannelID, error) {
			c, err := NewTMP102(bus)
			return c, []ChannelID{Temperature}, err
		},
	},
	"tsl2561": {
		address:  tsl2561Address,
		channels: []ChannelID{Light},
		build: func(bus i2c.Bus, cfg config.SensorConfig) (Converter, []ChannelID, error) {
			integ := cfg.IntegrationTime
			if integ == 0 {
				integ = tsl2561Integ101
			}
			c, err := NewTSL2561(bus, integ)
			return c, []ChannelID{Light}, err
		},
	},
	"adxl345": {
		address:  adxl345Address,
		channels: []ChannelID{AccelX, AccelY, AccelZ},
		build: func(bus i2c.Bus, cfg config.SensorConfig) (Converter, []ChannelID, error) {
			c, err := NewADXL345(bus, cfg.Range)
			return c, []ChannelID{AccelX, AccelY, AccelZ}, err
		},
	},
	"ads1115": {
		address:  ads1115Address,
		channels: ads1115Inputs,
		build: func(bus i2c.Bus, cfg config.SensorConfig) (Converter, []ChannelID, error) {
			inputs, chans, err := ads1115Channels(cfg.Channels)
			if err != nil {
				return nil, nil, err
			}
			c, err := NewADS1115(bus, inputs, cfg.SampleRate)
			return c, chans, err
		},
	},
}

// Drivers returns the known driver names, sorted.
func Drivers() []string {
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DriverChannels returns the channels a driver can provide.
func DriverChannels(name string) ([]ChannelID, bool) {
	d, ok := drivers[strings.ToLower(name)]
	return d.channels, ok
}

// Open opens and detects one hardware sensor. When the driver is unknown or
// the device fails detection it returns a Null sensor together with the error;
// the caller decides whether to log and carry on.
func Open(cfg config.SensorConfig, open i2c.Opener, logger *zap.Logger) (Sensor, error) {
	name := strings.ToLower(cfg.Driver)
	d, ok := drivers[name]
	if !ok {
		return NewNull(name), fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	enabled, cal, err := channelSettings(cfg, d.channels)
	if err != nil {
		return NewNull(name), fmt.Errorf("%s: %w", name, err)
	}
	addr := d.address
	if cfg.Address != 0 {
		addr = uint16(cfg.Address)
	}
	bus, err := open(cfg.Bus, addr)
	if err != nil {
		return NewNull(name, enabled...), fmt.Errorf("%s: %w: %v", name, ErrDeviceAbsent, err)
	}
	conv, chans, err := d.build(bus, cfg)
	if err != nil {
		_ = bus.Close()
		return NewNull(name, enabled...), err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return NewMachine(name, conv, chans,
		WithLogger(logger.With(zap.String("driver", name), zap.Uint16("address", addr))),
		WithPhaseTimeout(time.Duration(cfg.PhaseTimeoutMs)*time.Millisecond),
		WithEnabled(enabled...),
		WithCalibration(cal),
		WithCloser(bus),
	), nil
}

// OpenSimulated returns a Fake providing the sensor's enabled channels.
func OpenSimulated(cfg config.SensorConfig, seed int64) (Sensor, error) {
	name := strings.ToLower(cfg.Driver)
	d, ok := drivers[name]
	if !ok {
		return NewNull(name), fmt.Errorf("unknown driver %q", cfg.Driver)
	}
	enabled, _, err := channelSettings(cfg, d.channels)
	if err != nil {
		return NewNull(name), fmt.Errorf("%s: %w", name, err)
	}
	return NewFake(name, seed, enabled...), nil
}

// OpenAll opens every enabled sensor of cfg. A sensor that fails to open is
// logged and kept as a Null so its channels report invalid. A channel belongs
// to the first sensor that provides it; a later sensor offering the same
// channel is closed and kept as a Null without channels.
func OpenAll(cfg config.Config, open i2c.Opener, logger *zap.Logger) []Sensor {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []Sensor
	claimed := make(map[ChannelID]string)
	for i, sc := range cfg.Sensors {
		if !sc.Enabled {
			continue
		}
		var (
			s   Sensor
			err error
		)
		if cfg.SensorType == config.SensorTypeSimulation {
			s, err = OpenSimulated(sc, time.Now().UnixNano()+int64(i))
		} else {
			s, err = Open(sc, open, logger)
		}
		if err != nil {
			if errors.Is(err, ErrDeviceAbsent) {
				logger.Warn("sensor not detected, disabled", zap.String("driver", sc.Driver), zap.Error(err))
			} else {
				logger.Error("sensor setup failed", zap.String("driver", sc.Driver), zap.Error(err))
			}
			out = append(out, s)
			continue
		}
		if ch, owner, ok := firstClaimed(claimed, s.Channels()); ok {
			logger.Error("channel already provided by another sensor, disabled",
				zap.String("driver", s.Name()), zap.String("channel", string(ch)), zap.String("owner", owner))
			if err := s.Close(); err != nil {
				logger.Warn("sensor close failed", zap.String("driver", s.Name()), zap.Error(err))
			}
			out = append(out, NewNull(s.Name()))
			continue
		}
		for _, ch := range s.Channels() {
			claimed[ch] = s.Name()
		}
		logger.Info("sensor ready", zap.String("driver", s.Name()),
			zap.Strings("channels", channelNames(s.Channels())))
		out = append(out, s)
	}
	return out
}

func firstClaimed(claimed map[ChannelID]string, chs []ChannelID) (ChannelID, string, bool) {
	for _, ch := range chs {
		if owner, ok := claimed[ch]; ok {
			return ch, owner, true
		}
	}
	return "", "", false
}

func channelNames(chs []ChannelID) []string {
	out := make([]string, len(chs))
	for i, c := range chs {
		out[i] = string(c)
	}
	return out
}
