package i2ctest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/pisensor-mqtt/pkg/i2c"
)

func TestRegisterFile(t *testing.T) {
	d := New().Set(0xAA, 0x01, 0x98, 0xFF)

	b, err := d.ReadRegister(0xAB)
	require.NoError(t, err)
	assert.Equal(t, byte(0x98), b)

	blk, err := d.ReadBlock(0xAA, 3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x98, 0xFF}, blk)

	require.NoError(t, d.WriteBlock(0x10, []byte{1, 2}))
	assert.Equal(t, byte(2), d.Reg(0x11))
	require.NoError(t, d.WriteCommand(0xF3))

	w := d.Writes()
	require.Len(t, w, 2)
	assert.Equal(t, byte(0xF3), w[1].Reg)
	assert.Empty(t, w[1].Data)
}

func TestHooksAndFailures(t *testing.T) {
	d := New()
	d.OnWrite(func(d *Device, reg byte, data []byte) {
		if reg == 0xF4 {
			d.Set(0xF6, 0x6C, 0xFA)
		}
	})
	require.NoError(t, d.WriteRegister(0xF4, 0x2E))
	assert.Equal(t, byte(0x6C), d.Reg(0xF6))

	boom := errors.New("nack")
	d.FailNext(1, boom)
	_, err := d.ReadRegister(0xF4)
	assert.ErrorIs(t, err, i2c.ErrBus)
	_, err = d.ReadRegister(0xF4)
	assert.NoError(t, err)

	d.FailWith(boom)
	assert.Error(t, d.WriteRegister(0, 0))
	assert.Error(t, d.WriteRegister(0, 0))
	d.FailWith(nil)
	assert.NoError(t, d.WriteRegister(0, 0))

	_, err = d.ReadRaw(3)
	assert.ErrorIs(t, err, i2c.ErrBus)
	d.QueueRaw(0x66, 0x1C)
	raw, err := d.ReadRaw(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x66, 0x1C, 0x00}, raw)
}

func TestOpener(t *testing.T) {
	d := New()
	open := Opener(map[uint16]*Device{0x77: d})
	bus, err := open("1", 0x77)
	require.NoError(t, err)
	require.NoError(t, bus.Close())
	assert.True(t, d.Closed())

	_, err = open("1", 0x40)
	assert.ErrorIs(t, err, ErrNoDevice)
}
