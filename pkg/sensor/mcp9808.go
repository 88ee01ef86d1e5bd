package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
)

const (
	mcp9808Address  = 0x18 // A2..A0 grounded; 0x18-0x1F
	mcp9808RegTemp  = 0x05
	mcp9808RegID    = 0x07
	mcp9808DeviceID = 0x04
)

// MCP9808 is a continuously converting thermometer; each reading is one register read.
type MCP9808 struct {
	bus i2c.Bus
}

func NewMCP9808(bus i2c.Bus) (*MCP9808, error) {
	id, err := bus.ReadRegister(mcp9808RegID)
	if err != nil {
		return nil, fmt.Errorf("mcp9808: %w: %v", ErrDeviceAbsent, err)
	}
	if id != mcp9808DeviceID {
		return nil, fmt.Errorf("mcp9808: %w: device id 0x%02X", ErrDeviceAbsent, id)
	}
	return &MCP9808{bus: bus}, nil
}

func (d *MCP9808) Phases() int                            { return 1 }
func (d *MCP9808) Start(int) error                        { return nil }
func (d *MCP9808) Ready(int, time.Duration) (bool, error) { return true, nil }

func (d *MCP9808) Collect(int) ([]int64, error) {
	b, err := d.bus.ReadBlock(mcp9808RegTemp, 2)
	if err != nil {
		return nil, err
	}
	return []int64{int64(b[0])<<8 | int64(b[1])}, nil
}

func (d *MCP9808) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != 1 {
		return nil, fmt.Errorf("mcp9808: want 1 raw value, got %d", len(raw))
	}
	// drop the three alert flag bits; bit 12 is the sign
	res := raw[0] & 0x1FFF
	if res&0x1000 != 0 {
		return []float64{float64(res&0xFFF-4096) / 16.0}, nil
	}
	return []float64{float64(res) / 16.0}, nil
}
