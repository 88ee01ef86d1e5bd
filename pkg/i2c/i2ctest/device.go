// Package i2ctest provides an in-memory register file that satisfies i2c.Bus.
package i2ctest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
)

// ErrNoDevice is returned by Opener for an address with no simulated device.
var ErrNoDevice = errors.New("i2ctest: no device at address")

// Write records one register or command write.
type Write struct {
	Reg  byte
	Data []byte
}

// Device simulates a register-addressed I2C device.
type Device struct {
	mu      sync.Mutex
	regs    [256]byte
	raw     [][]byte
	writes  []Write
	fail    error
	failN   int
	closed  bool
	onWrite func(d *Device, reg byte, data []byte)
}

// New returns an empty device.
func New() *Device { return &Device{} }

// Set stores values into consecutive registers starting at reg.
func (d *Device) Set(reg byte, values ...byte) *Device {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, v := range values {
		d.regs[(int(reg)+i)&0xFF] = v
	}
	return d
}

// Reg returns the current content of reg.
func (d *Device) Reg(reg byte) byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.regs[reg]
}

// QueueRaw appends a response for the next ReadRaw call.
func (d *Device) QueueRaw(b ...byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.raw = append(d.raw, b)
}

// OnWrite installs a hook run after every write. Commands arrive with a nil data slice.
func (d *Device) OnWrite(fn func(d *Device, reg byte, data []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onWrite = fn
}

// FailWith makes every following access return err. A nil err clears it.
func (d *Device) FailWith(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
	d.failN = -1
}

// FailNext makes only the next n accesses fail with err.
func (d *Device) FailNext(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
	d.failN = n
}

// Writes returns a copy of the write log.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// check must be called with the lock held.
func (d *Device) check(op string, reg byte) error {
	if d.fail == nil || d.failN == 0 {
		return nil
	}
	if d.failN > 0 {
		d.failN--
	}
	return fmt.Errorf("%w: %s reg 0x%02X: %v", i2c.ErrBus, op, reg, d.fail)
}

func (d *Device) write(op string, reg byte, data []byte) error {
	d.mu.Lock()
	if err := d.check(op, reg); err != nil {
		d.mu.Unlock()
		return err
	}
	for i, v := range data {
		d.regs[(int(reg)+i)&0xFF] = v
	}
	d.writes = append(d.writes, Write{Reg: reg, Data: append([]byte(nil), data...)})
	hook := d.onWrite
	d.mu.Unlock()
	if hook != nil {
		hook(d, reg, data)
	}
	return nil
}

func (d *Device) WriteRegister(reg, value byte) error {
	return d.write("write", reg, []byte{value})
}

func (d *Device) WriteBlock(reg byte, data []byte) error {
	return d.write("write block", reg, data)
}

func (d *Device) WriteCommand(cmd byte) error {
	return d.write("command", cmd, nil)
}

func (d *Device) ReadRegister(reg byte) (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("read", reg); err != nil {
		return 0, err
	}
	return d.regs[reg], nil
}

func (d *Device) ReadBlock(reg byte, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("read block", reg); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = d.regs[(int(reg)+i)&0xFF]
	}
	return out, nil
}

func (d *Device) ReadRaw(n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check("read raw", 0); err != nil {
		return nil, err
	}
	if len(d.raw) == 0 {
		return nil, fmt.Errorf("%w: read raw: nack", i2c.ErrBus)
	}
	b := d.raw[0]
	d.raw = d.raw[1:]
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Opener serves the given devices by address, whatever the bus name.
func Opener(devs map[uint16]*Device) i2c.Opener {
	return func(bus string, addr uint16) (i2c.Bus, error) {
		d, ok := devs[addr]
		if !ok {
			return nil, fmt.Errorf("%w 0x%02X on bus %q", ErrNoDevice, addr, bus)
		}
		return d, nil
	}
}
