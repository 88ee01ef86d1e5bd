// Package i2c is the register-level hardware access used by the sensor drivers.
package i2c

import (
	"errors"
	"fmt"
)

// ErrBus marks a failed bus transaction. Drivers treat it as transient.
var ErrBus = errors.New("i2c: bus error")

// Bus is a handle to one device on an I2C bus.
type Bus interface {
	// WriteRegister writes one byte to a register.
	WriteRegister(reg, value byte) error
	// ReadRegister reads one byte from a register.
	ReadRegister(reg byte) (byte, error)
	// ReadBlock reads n consecutive bytes starting at reg.
	ReadBlock(reg byte, n int) ([]byte, error)
	// WriteBlock writes data starting at reg.
	WriteBlock(reg byte, data []byte) error
	// WriteCommand sends a single command byte with no register.
	WriteCommand(cmd byte) error
	// ReadRaw reads n bytes without addressing a register first.
	ReadRaw(n int) ([]byte, error)
	Close() error
}

// Opener opens the device at addr on the named bus.
type Opener func(bus string, addr uint16) (Bus, error)

func busErr(op string, addr uint16, reg byte, err error) error {
	return fmt.Errorf("%w: %s 0x%02X reg 0x%02X: %v", ErrBus, op, addr, reg, err)
}
