package sensor

import (
	"fmt"
	"time"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
	"github.com/ericogr/pisensor-mqtt/pkg/mathx"
)

const (
	bmp180Address = 0x77
	bmp180ChipID  = 0x55

	bmp180RegAC1     = 0xAA // first of 11 calibration words
	bmp180RegID      = 0xD0
	bmp180RegControl = 0xF4
	bmp180RegResult  = 0xF6

	bmp180CmdTemperature = 0x2E
	bmp180CmdPressure    = 0x34
	bmp180Busy           = 0x20
)

type bmp180Calibration struct {
	AC1, AC2, AC3 int64
	AC4, AC5, AC6 int64
	B1, B2        int64
	MB, MC, MD    int64
}

func parseBMP180Calibration(b []byte) bmp180Calibration {
	s := func(i int) int64 { return int64(mathx.Int16BE(b[i], b[i+1])) }
	u := func(i int) int64 { return int64(mathx.Uint16BE(b[i], b[i+1])) }
	return bmp180Calibration{
		AC1: s(0), AC2: s(2), AC3: s(4),
		AC4: u(6), AC5: u(8), AC6: u(10),
		B1: s(12), B2: s(14),
		MB: s(16), MC: s(18), MD: s(20),
	}
}

// compensate applies the datasheet integer algorithm. Division truncates
// toward zero. B7 is an unsigned 32-bit quantity, so a negative
// intermediate wraps modulo 2^32. Returns °C and hPa.
func (c bmp180Calibration) compensate(ut, up int64, oss uint) (float64, float64, error) {
	x1 := (ut - c.AC6) * c.AC5 / 32768
	if x1+c.MD == 0 {
		return 0, 0, fmt.Errorf("%w: X1+MD", ErrDegenerate)
	}
	x2 := c.MC * 2048 / (x1 + c.MD)
	b5 := x1 + x2
	temperature := float64((b5+8)/16) / 10

	b6 := b5 - 4000
	x1 = c.B2 * (b6 * b6 / 4096) / 2048
	x2 = c.AC2 * b6 / 2048
	x3 := x1 + x2
	b3 := ((c.AC1*4+x3)<<oss + 2) / 4
	x1 = c.AC3 * b6 / 8192
	x2 = c.B1 * (b6 * b6 / 4096) / 65536
	x3 = (x1 + x2 + 2) / 4
	b4 := c.AC4 * (x3 + 32768) / 32768
	if b4 == 0 {
		return 0, 0, fmt.Errorf("%w: B4", ErrDegenerate)
	}
	b7 := int64(uint32((up - b3) * (50000 >> oss)))

	var p int64
	if b7 < 0x80000000 {
		p = b7 * 2 / b4
	} else {
		p = b7 / b4 * 2
	}
	x1 = (p / 256) * (p / 256)
	x1 = x1 * 3038 / 65536
	x2 = -7357 * p / 65536
	pressure := float64(p+(x1+x2+3791)/16) / 100
	return temperature, pressure, nil
}

// BMP180 converts temperature then pressure.
type BMP180 struct {
	bus i2c.Bus
	oss uint
	cal bmp180Calibration
}

// NewBMP180 checks the chip id and reads the factory calibration.
// oss is the pressure oversampling setting, 0 (ultra low power) to 3.
func NewBMP180(bus i2c.Bus, oss int) (*BMP180, error) {
	if oss < 0 || oss > 3 {
		return nil, fmt.Errorf("bmp180: oversampling %d out of range 0-3", oss)
	}
	id, err := bus.ReadRegister(bmp180RegID)
	if err != nil {
		return nil, fmt.Errorf("bmp180: %w: %v", ErrDeviceAbsent, err)
	}
	if id != bmp180ChipID {
		return nil, fmt.Errorf("bmp180: %w: chip id 0x%02X", ErrDeviceAbsent, id)
	}
	data, err := bus.ReadBlock(bmp180RegAC1, 22)
	if err != nil {
		return nil, fmt.Errorf("bmp180: %w: calibration: %v", ErrDeviceAbsent, err)
	}
	return &BMP180{bus: bus, oss: uint(oss), cal: parseBMP180Calibration(data)}, nil
}

func (d *BMP180) Phases() int { return 2 }

func (d *BMP180) Start(k int) error {
	if k == 0 {
		return d.bus.WriteRegister(bmp180RegControl, bmp180CmdTemperature)
	}
	return d.bus.WriteRegister(bmp180RegControl, bmp180CmdPressure+byte(d.oss<<6))
}

func (d *BMP180) Ready(int, time.Duration) (bool, error) {
	st, err := d.bus.ReadRegister(bmp180RegControl)
	if err != nil {
		return false, err
	}
	return st&bmp180Busy == 0, nil
}

func (d *BMP180) Collect(k int) ([]int64, error) {
	if k == 0 {
		b, err := d.bus.ReadBlock(bmp180RegResult, 2)
		if err != nil {
			return nil, err
		}
		return []int64{int64(mathx.Uint16BE(b[0], b[1]))}, nil
	}
	b, err := d.bus.ReadBlock(bmp180RegResult, 3)
	if err != nil {
		return nil, err
	}
	up := (int64(b[0])<<16 + int64(b[1])<<8 + int64(b[2])) >> (8 - d.oss)
	return []int64{up}, nil
}

func (d *BMP180) Compensate(raw []int64) ([]float64, error) {
	if len(raw) != 2 {
		return nil, fmt.Errorf("bmp180: want 2 raw values, got %d", len(raw))
	}
	t, p, err := d.cal.compensate(raw[0], raw[1], d.oss)
	if err != nil {
		return nil, err
	}
	return []float64{t, p}, nil
}
