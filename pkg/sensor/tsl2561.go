package sensor

import (
	"fmt"
	"math"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
	"github.com/ericogr/pisensor-mqtt/pkg/mathx"
)

const (
	tsl2561Address = 0x39 // ADDR SEL floating

	tsl2561RegControl = 0x00
	tsl2561RegTiming  = 0x01
	tsl2561RegData0   = 0x0C
	tsl2561RegData1   = 0x0E

	tsl2561Cmd     = 0x80
	tsl2561CmdWord = 0x20

	tsl2561PowerUp  = 0x03
	tsl2561Gain16x  = 0x10
	tsl2561Integ101 = 1
)

// scale factors normalising counts to the 402ms integration time
var tsl2561Scale = [3]float64{1.0 / 0.034, 1.0 / 0.252, 1.0}

// TSL2561 integrates continuously; each reading reads both ADC channels.
type TSL2561 struct {
	bus   i2c.Bus
	scale float64
}

// NewTSL2561 powers the device up with 16x gain. integration is 0 (13.7ms),
// 1 (101ms) or 2 (402ms).
func NewTSL2561(bus i2c.Bus, integration int) (*TSL2561, error) {
	if integration < 0 || integration > 2 {
		return nil, fmt.Errorf("tsl2561: integration time %d out of range 0-2", integration)
	}
	if err := bus.WriteRegister(tsl2561Cmd|tsl2561RegControl, tsl2561PowerUp); err != nil {
		return nil, fmt.Errorf("tsl2561: %w: %v", ErrDeviceAbsent, err)
	}
	if err := bus.WriteRegister(tsl2561Cmd|tsl2561RegTiming, tsl2561Gain16x|byte(integration)); err != nil {
		return nil, fmt.Errorf("tsl2561: %w: %v", ErrDeviceAbsent, err)
	}
	return &TSL2561{bus: bus, scale: tsl2561Scale[integration]}, nil
}

func (d *TSL2561) Phases() int                            { return 1 }
func (d *TSL2561) Start(int) error                        { return nil }
func (d *TSL2561) Ready(int, time.Duration) (bool, error) { return true, nil }

func (d *TSL2561) Collect(int) ([]int64, error) {
	a0, err := d.bus.ReadBlock(tsl2561Cmd|tsl2561CmdWord|tsl2561RegData0, 2)
	if err != nil {
		return nil, err
	}
	a1, err := d.bus.ReadBlock(tsl2561Cmd|tsl2561CmdWord|tsl2561RegData1, 2)
	if err != nil {
		return nil, err
	}
	return []int64{int64(mathx.Uint16LE(a0[0], a0[1])), int64(mathx.Uint16LE(a1[0], a1[1]))}, nil
}

func (d *TSL2561) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("tsl2561: want 2 raw values, got %d", len(raw))
	}
	return []float64{tsl2561Lux(float64(raw[0])*d.scale, float64(raw[1])*d.scale)}, nil
}

// tsl2561Lux is the datasheet piecewise approximation for the T/FN/CL package.
func tsl2561Lux(ch0, ch1 float64) float64 {
	if ch0 == 0 {
		return 0
	}
	ratio := ch1 / ch0
	switch {
	case ratio > 0 && ratio <= 0.5:
		return 0.0304*ch0 - 0.062*ch0*math.Pow(ratio, 1.4)
	case ratio > 0.5 && ratio <= 0.61:
		return 0.0224*ch0 - 0.031*ch1
	case ratio > 0.61 && ratio <= 0.8:
		return 0.0128*ch0 - 0.0153*ch1
	case ratio > 0.8 && ratio <= 1.3:
		return 0.00146*ch0 - 0.00112*ch1
	}
	return 0
}
