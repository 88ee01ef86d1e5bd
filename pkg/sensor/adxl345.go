package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
	"github.com/ericogr/pisensor-mqtt/pkg/mathx"
)

const (
	adxl345Address = 0x53 // ALT ADDRESS grounded
	adxl345DevID   = 0xE5

	adxl345RegDevID      = 0x00
	adxl345RegPowerCtl   = 0x2D
	adxl345RegDataFormat = 0x31
	adxl345RegDataX0     = 0x32

	adxl345Measure = 0x08
	adxl345FullRes = 0x08

	adxl345LSBPerG = 250.0
)

var adxl345Ranges = map[int]byte{2: 0x00, 4: 0x01, 8: 0x02, 16: 0x03}

// ADXL345 samples continuously; each reading is one 6-byte block read.
type ADXL345 struct {
	bus i2c.Bus
}

// NewADXL345 checks the device id, optionally sets the range in g
// (2, 4, 8 or 16, 0 keeps the power-on default) and starts measuring.
func NewADXL345(bus i2c.Bus, rangeG int) (*ADXL345, error) {
	id, err := bus.ReadRegister(adxl345RegDevID)
	if err != nil {
		return nil, fmt.Errorf("adxl345: %w: %v", ErrDeviceAbsent, err)
	}
	if id != adxl345DevID {
		return nil, fmt.Errorf("adxl345: %w: device id 0x%02X", ErrDeviceAbsent, id)
	}
	if rangeG != 0 {
		code, ok := adxl345Ranges[rangeG]
		if !ok {
			return nil, fmt.Errorf("adxl345: unsupported range %dg", rangeG)
		}
		f, err := bus.ReadRegister(adxl345RegDataFormat)
		if err != nil {
			return nil, fmt.Errorf("adxl345: read data format: %w", err)
		}
		if err := bus.WriteRegister(adxl345RegDataFormat, f&^0x0F|code|adxl345FullRes); err != nil {
			return nil, fmt.Errorf("adxl345: write data format: %w", err)
		}
	}
	if err := bus.WriteRegister(adxl345RegPowerCtl, adxl345Measure); err != nil {
		return nil, fmt.Errorf("adxl345: power on: %w", err)
	}
	return &ADXL345{bus: bus}, nil
}

func (d *ADXL345) Phases() int                            { return 1 }
func (d *ADXL345) Start(int) error                        { return nil }
func (d *ADXL345) Ready(int, time.Duration) (bool, error) { return true, nil }

func (d *ADXL345) Collect(int) ([]int64, error) {
	b, err := d.bus.ReadBlock(adxl345RegDataX0, 6)
	if err != nil {
		return nil, err
	}
	out := make([]int64, 3)
	for i := range out {
		out[i] = int64(mathx.Int16LE(b[2*i], b[2*i+1]))
	}
	return out, nil
}

func (d *ADXL345) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != 3 {
		return nil, fmt.Errorf("adxl345: want 3 raw values, got %d", len(raw))
	}
	out := make([]float64, 3)
	for i, r := range raw {
		out[i] = float64(r) / adxl345LSBPerG
	}
	return out, nil
}
