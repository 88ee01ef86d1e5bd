package i2c

import (
	"fmt"

	periphi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// PeriphBus drives a device through periph.io.
type PeriphBus struct {
	dev *periphi2c.Dev
	bus periphi2c.BusCloser
}

// OpenPeriph initialises the host drivers and opens addr on the named bus
// ("1" -> /dev/i2c-1). It satisfies Opener.
func OpenPeriph(name string, addr uint16) (Bus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open i2c %q: %w", name, err)
	}
	return &PeriphBus{dev: &periphi2c.Dev{Addr: addr, Bus: bus}, bus: bus}, nil
}

func (p *PeriphBus) WriteRegister(reg, value byte) error {
	if err := p.dev.Tx([]byte{reg, value}, nil); err != nil {
		return busErr("write", p.dev.Addr, reg, err)
	}
	return nil
}

func (p *PeriphBus) ReadRegister(reg byte) (byte, error) {
	buf := make([]byte, 1)
	if err := p.dev.Tx([]byte{reg}, buf); err != nil {
		return 0, busErr("read", p.dev.Addr, reg, err)
	}
	return buf[0], nil
}

func (p *PeriphBus) ReadBlock(reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := p.dev.Tx([]byte{reg}, buf); err != nil {
		return nil, busErr("read block", p.dev.Addr, reg, err)
	}
	return buf, nil
}

func (p *PeriphBus) WriteBlock(reg byte, data []byte) error {
	w := make([]byte, 0, len(data)+1)
	w = append(w, reg)
	w = append(w, data...)
	if err := p.dev.Tx(w, nil); err != nil {
		return busErr("write block", p.dev.Addr, reg, err)
	}
	return nil
}

func (p *PeriphBus) WriteCommand(cmd byte) error {
	if err := p.dev.Tx([]byte{cmd}, nil); err != nil {
		return busErr("command", p.dev.Addr, cmd, err)
	}
	return nil
}

func (p *PeriphBus) ReadRaw(n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := p.dev.Tx(nil, buf); err != nil {
		return nil, busErr("read raw", p.dev.Addr, 0, err)
	}
	return buf, nil
}

func (p *PeriphBus) Close() error {
	if p.bus != nil {
		return p.bus.Close()
	}
	return nil
}
