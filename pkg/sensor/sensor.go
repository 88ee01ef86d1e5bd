package sensor

import (
	"errors"
	"fmt"
	"time"
)

// ChannelID names one measured quantity.
type ChannelID string

const (
	AccelX      ChannelID = "accel_x"
	AccelY      ChannelID = "accel_y"
	AccelZ      ChannelID = "accel_z"
	Light       ChannelID = "light"
	Temperature ChannelID = "temperature"
	Pressure    ChannelID = "pressure"
	Humidity    ChannelID = "humidity"
	ADC0        ChannelID = "adc0"
	ADC1        ChannelID = "adc1"
	ADC2        ChannelID = "adc2"
	ADC3        ChannelID = "adc3"
)

// Channels lists every known channel in record order.
var Channels = []ChannelID{AccelX, AccelY, AccelZ, Light, Temperature, Pressure, Humidity, ADC0, ADC1, ADC2, ADC3}

// ParseChannel validates a channel name.
func ParseChannel(s string) (ChannelID, error) {
	for _, c := range Channels {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown channel %q", s)
}

var (
	// ErrDeviceAbsent means the device failed detection; the sensor stays disabled.
	ErrDeviceAbsent = errors.New("sensor: device absent")
	// ErrDegenerate means a compensation divisor was zero; the previous values are kept.
	ErrDegenerate = errors.New("sensor: degenerate compensation")
)

// Reading is one completed measurement of one channel.
type Reading struct {
	Channel   ChannelID `json:"channel"`
	Value     float64   `json:"value"`
	Timestamp float64   `json:"timestamp"`
}

// Timestamp converts t to float seconds since the epoch.
func Timestamp(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Sensor is the capability set every channel provider offers to the scheduler.
// Poll must never block on hardware.
type Sensor interface {
	Name() string
	Channels() []ChannelID
	Poll(now time.Time) []Reading
	Current(ch ChannelID) (float64, bool)
	Valid() bool
	Close() error
}

// Null stands in for a disabled or absent device.
type Null struct {
	name     string
	channels []ChannelID
}

func NewNull(name string, channels ...ChannelID) *Null {
	return &Null{name: name, channels: channels}
}

func (n *Null) Name() string                      { return n.name }
func (n *Null) Channels() []ChannelID             { return n.channels }
func (n *Null) Poll(time.Time) []Reading          { return nil }
func (n *Null) Current(ChannelID) (float64, bool) { return 0, false }
func (n *Null) Valid() bool                       { return false }
func (n *Null) Close() error                      { return nil }
