package intc

import (
	"testing"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/exception"
	"github.com/stretchr/testify/require"
)

func newTestINTC(t *testing.T) (*INTC, *cpu.Fake) {
	t.Helper()
	c := New(0xFFF48000, nil)
	bus := cpu.NewFake(0x40000000, 0x1000)
	c.Init(bus)
	c.Reset()
	return c, bus
}

func TestPriorityInversionDeferAndReoffer(t *testing.T) {
	c, _ := newTestINTC(t)
	c.Regs.At("psr", 10).PutField("pri", 5)
	c.Regs.At("psr", 20).PutField("pri", 3)
	c.Regs.Scalar("cpr").PutField("pri", 0)

	a := exception.NewExternal(10)
	b := exception.NewExternal(20)

	require.True(t, c.ShouldHandle(a))
	c.GetHandler(a)
	// SWVEC mode (HVEN=0, the reset default): the priority push happens on
	// the handler's first IACKR read, not at handler-address computation.
	_, err := c.Read(c.Addr+iackrOffset, 4)
	require.NoError(t, err)
	require.EqualValues(t, 5, c.Regs.Scalar("cpr").GetField("pri"))

	require.False(t, c.ShouldHandle(b))

	c.RFINotify()
	require.EqualValues(t, 0, c.Regs.Scalar("cpr").GetField("pri"))

	require.True(t, c.ShouldHandle(b))
}

func TestSoftwareIRQQueuesExternal(t *testing.T) {
	c, bus := newTestINTC(t)
	c.SoftwareIRQ(3)
	require.Len(t, bus.Pending, 1)
	require.Equal(t, exception.External, bus.Pending[0].Kind)
}

func TestHWVECHandlerAddress(t *testing.T) {
	c, bus := newTestINTC(t)
	bus.SetRegister(cpu.IVPR, 0x00FF0000)
	c.Regs.Scalar("mcr").PutField("hven", 1)

	exc := exception.NewExternal(7)
	handler := c.GetHandler(exc)
	require.EqualValues(t, 0x00FF0000|(7<<4), handler)
}
