package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
)

const (
	htu21dAddress = 0x40

	htu21dCmdTrigTemp  = 0xF3 // no-hold temperature trigger
	htu21dCmdTrigHum   = 0xF5 // no-hold humidity trigger
	htu21dCmdSoftReset = 0xFE

	htu21dResetTime = 15 * time.Millisecond
)

// The HTU21D NACKs reads while converting, so readiness is paced by the
// datasheet maximum conversion times instead of a status bit.
var htu21dConversion = [2]time.Duration{50 * time.Millisecond, 16 * time.Millisecond}

// HTU21D converts temperature then humidity in no-hold mode.
type HTU21D struct {
	bus i2c.Bus
}

// NewHTU21D soft resets the device. A rejected reset means the device is absent.
func NewHTU21D(bus i2c.Bus) (*HTU21D, error) {
	if err := bus.WriteCommand(htu21dCmdSoftReset); err != nil {
		return nil, fmt.Errorf("htu21d: %w: %v", ErrDeviceAbsent, err)
	}
	time.Sleep(htu21dResetTime)
	return &HTU21D{bus: bus}, nil
}

func (d *HTU21D) Phases() int { return 2 }

func (d *HTU21D) Start(k int) error {
	if k == 0 {
		return d.bus.WriteCommand(htu21dCmdTrigTemp)
	}
	return d.bus.WriteCommand(htu21dCmdTrigHum)
}

func (d *HTU21D) Ready(k int, elapsed time.Duration) (bool, error) {
	return elapsed >= htu21dConversion[k], nil
}

func (d *HTU21D) Collect(int) ([]int64, error) {
	b, err := d.bus.ReadRaw(3)
	if err != nil {
		return nil, err
	}
	return []int64{int64(b[0])<<8 | int64(b[1])}, nil
}

func (d *HTU21D) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("htu21d: want 2 raw values, got %d", len(raw))
	}
	t := -46.85 + 175.72*float64(raw[0])/65536.0
	h := -6.0 + 125.0*float64(raw[1])/65536.0
	return []float64{t, h}, nil
}
