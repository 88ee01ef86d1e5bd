package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
	"github.com/ericogr/pisensor-mqtt/pkg/mathx"
)

const (
	ads1115Address = 0x48

	pointerConv   = 0x00
	pointerConfig = 0x01

	ads1115OS   = 0x80 // MSB of config: write starts a conversion, read 1 means idle
	ads1115PGAF = 4.096

	ads1115DefaultRate = 128
)

var ads1115Inputs = []ChannelID{ADC0, ADC1, ADC2, ADC3}

// ADS1115 runs one single-shot conversion per enabled input, each as its own phase.
type ADS1115 struct {
	bus    i2c.Bus
	inputs []int
	rate   int
}

// NewADS1115 checks that the config register answers. inputs are the
// single-ended inputs 0-3 to convert, in order.
func NewADS1115(bus i2c.Bus, inputs []int, sampleRate int) (*ADS1115, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("ads1115: no inputs")
	}
	for _, in := range inputs {
		if _, _, err := configForChannel(in, sampleRate); err != nil {
			return nil, fmt.Errorf("ads1115: %w", err)
		}
	}
	if _, err := bus.ReadBlock(pointerConfig, 2); err != nil {
		return nil, fmt.Errorf("ads1115: %w: %v", ErrDeviceAbsent, err)
	}
	if sampleRate == 0 {
		sampleRate = ads1115DefaultRate
	}
	return &ADS1115{bus: bus, inputs: inputs, rate: sampleRate}, nil
}

func (d *ADS1115) Phases() int { return len(d.inputs) }

func (d *ADS1115) Start(k int) error {
	msb, lsb, err := configForChannel(d.inputs[k], d.rate)
	if err != nil {
		return err
	}
	return d.bus.WriteBlock(pointerConfig, []byte{msb, lsb})
}

func (d *ADS1115) Ready(int, time.Duration) (bool, error) {
	b, err := d.bus.ReadBlock(pointerConfig, 2)
	if err != nil {
		return false, err
	}
	return b[0]&ads1115OS != 0, nil
}

func (d *ADS1115) Collect(int) ([]int64, error) {
	b, err := d.bus.ReadBlock(pointerConv, 2)
	if err != nil {
		return nil, err
	}
	return []int64{int64(mathx.Int16BE(b[0], b[1]))}, nil
}

func (d *ADS1115) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != len(d.inputs) {
		return nil, fmt.Errorf("ads1115: want %d raw values, got %d", len(d.inputs), len(raw))
	}
	out := make([]float64, len(raw))
	for i, r := range raw {
		out[i] = float64(r) * ads1115PGAF / 32768.0
	}
	return out, nil
}

// configForChannel builds the single-shot config word for a single-ended
// input at ±4.096V full scale.
func configForChannel(channel, sampleRate int) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("invalid channel %d", channel)
	}
	pga := byte(0x1)
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000
	config |= uint16(mux) << 12
	config |= uint16(pga) << 9
	config |= 1 << 8 // single-shot
	config |= uint16(dr) << 5
	config |= 0x3 // comparator disabled
	return byte(config >> 8), byte(config & 0xFF), nil
}

// ads1115Channels maps configured channel names to inputs, in input order.
func ads1115Channels(names []string) ([]int, []ChannelID, error) {
	if len(names) == 0 {
		return []int{0}, []ChannelID{ADC0}, nil
	}
	want := map[ChannelID]bool{}
	for _, n := range names {
		c, err := ParseChannel(n)
		if err != nil {
			return nil, nil, err
		}
		want[c] = true
	}
	var inputs []int
	var chans []ChannelID
	for i, c := range ads1115Inputs {
		if want[c] {
			inputs = append(inputs, i)
			chans = append(chans, c)
			delete(want, c)
		}
	}
	for c := range want {
		return nil, nil, fmt.Errorf("ads1115 has no channel %q", c)
	}
	return inputs, chans, nil
}
