package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
	"github.com/ericogr/pisensor-mqtt/pkg/mathx"
)

const (
	tmp102Address = 0x49 // AD0 to VCC

	tmp102RegData    = 0x00
	tmp102RegControl = 0x01

	tmp102ControlCR8 = 0xC0 // 8Hz conversion rate
	tmp102ControlEM  = 0x10 // extended (13-bit) mode
)

// TMP102 runs in continuous extended mode; each reading is one register read.
type TMP102 struct {
	bus i2c.Bus
}

func NewTMP102(bus i2c.Bus) (*TMP102, error) {
	if err := bus.WriteBlock(tmp102RegControl, []byte{0x00, tmp102ControlCR8 | tmp102ControlEM}); err != nil {
		return nil, fmt.Errorf("tmp102: %w: %v", ErrDeviceAbsent, err)
	}
	return &TMP102{bus: bus}, nil
}

func (d *TMP102) Phases() int                            { return 1 }
func (d *TMP102) Start(int) error                        { return nil }
func (d *TMP102) Ready(int, time.Duration) (bool, error) { return true, nil }

func (d *TMP102) Collect(int) ([]int64, error) {
	b, err := d.bus.ReadBlock(tmp102RegData, 2)
	if err != nil {
		return nil, err
	}
	return []int64{int64(b[0])<<5 | int64(b[1])>>3}, nil
}

// Compensate reads the 13-bit extended-mode value as two's complement.
func (d *TMP102) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != 1 {
		return nil, fmt.Errorf("tmp102: want 1 raw value, got %d", len(raw))
	}
	return []float64{float64(mathx.SignExtend13(int(raw[0]))) * 0.0625}, nil
}
