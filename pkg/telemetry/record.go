// Package telemetry is the JSON record exchanged between the sampler and its
// subscribers.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/sensor"
)

// ErrNoTimestamp is returned for a record without a timestamp.
var ErrNoTimestamp = errors.New("telemetry: record has no timestamp")

// Record is one snapshot of a device's channels. Absent channels are nil and
// left out of the JSON.
type Record struct {
	Timestamp   *float64           `json:"timestamp,omitempty"`
	DeviceID    string             `json:"deviceID,omitempty"`
	Topic       string             `json:"topic,omitempty"`
	Accel       []float64          `json:"accel,omitempty"`
	Light       *float64           `json:"light,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	Pressure    *float64           `json:"pressure,omitempty"`
	Humidity    *float64           `json:"humidity,omitempty"`
	ADC         map[string]float64 `json:"adc,omitempty"`
}

// New builds a record from channel values. accel is set only when all three
// axes are present.
func New(deviceID, topic string, ts float64, values map[sensor.ChannelID]float64) Record {
	r := Record{Timestamp: &ts, DeviceID: deviceID, Topic: topic}
	x, okx := values[sensor.AccelX]
	y, oky := values[sensor.AccelY]
	z, okz := values[sensor.AccelZ]
	if okx && oky && okz {
		r.Accel = []float64{x, y, z}
	}
	ptr := func(ch sensor.ChannelID) *float64 {
		if v, ok := values[ch]; ok {
			return &v
		}
		return nil
	}
	r.Light = ptr(sensor.Light)
	r.Temperature = ptr(sensor.Temperature)
	r.Pressure = ptr(sensor.Pressure)
	r.Humidity = ptr(sensor.Humidity)
	for _, ch := range []sensor.ChannelID{sensor.ADC0, sensor.ADC1, sensor.ADC2, sensor.ADC3} {
		if v, ok := values[ch]; ok {
			if r.ADC == nil {
				r.ADC = map[string]float64{}
			}
			r.ADC[string(ch)] = v
		}
	}
	return r
}

// Values returns the channels present in r.
func (r Record) Values() map[sensor.ChannelID]float64 {
	out := map[sensor.ChannelID]float64{}
	if len(r.Accel) == 3 {
		out[sensor.AccelX] = r.Accel[0]
		out[sensor.AccelY] = r.Accel[1]
		out[sensor.AccelZ] = r.Accel[2]
	}
	set := func(ch sensor.ChannelID, v *float64) {
		if v != nil {
			out[ch] = *v
		}
	}
	set(sensor.Light, r.Light)
	set(sensor.Temperature, r.Temperature)
	set(sensor.Pressure, r.Pressure)
	set(sensor.Humidity, r.Humidity)
	for name, v := range r.ADC {
		if ch, err := sensor.ParseChannel(name); err == nil {
			out[ch] = v
		}
	}
	return out
}

// Time returns the record timestamp, or the zero time when it has none.
func (r Record) Time() time.Time {
	if r.Timestamp == nil {
		return time.Time{}
	}
	sec, frac := math.Modf(*r.Timestamp)
	return time.Unix(int64(sec), int64(frac*1e9))
}

func Encode(r Record) ([]byte, error) {
	if r.Timestamp == nil {
		return nil, ErrNoTimestamp
	}
	return json.Marshal(r)
}

func Decode(b []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return r, fmt.Errorf("decode record: %w", err)
	}
	if r.Accel != nil && len(r.Accel) != 3 {
		return r, fmt.Errorf("decode record: accel has %d axes", len(r.Accel))
	}
	return r, nil
}
