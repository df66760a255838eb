package edma

import (
	"testing"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/stretchr/testify/require"
)

func newTestEDMA(t *testing.T) (*EDMA, *cpu.Fake) {
	t.Helper()
	e := New("eDMA_A", 0xFFF44000, 64, nil)
	bus := cpu.NewFake(0x40000000, 0x10000)
	e.Init(bus)
	e.Reset()
	return e, bus
}

func TestSimpleCopyWithMajorInterrupt(t *testing.T) {
	e, bus := newTestEDMA(t)

	copy(bus.Mem[0:16], []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16})

	t0 := TCD{
		SAddr:  0x40000000,
		DAddr:  0x40000100,
		SSize:  2, // 32-bit
		DSize:  2,
		SOff:   4,
		DOff:   4,
		NBytes: 16,
		CIter:  1,
		BIter:  1,
		IntMaj: true,
	}
	encodeTCD(e.tcdRaw[0], t0)

	e.mu.Lock()
	e.erq |= 1
	e.mu.Unlock()

	e.Service()

	got, err := bus.ReadMemory(0x40000100, 16)
	require.NoError(t, err)
	require.Equal(t, bus.Mem[0:16], got)

	final := decodeTCD(e.tcdRaw[0], false)
	require.True(t, final.Done)
	require.False(t, final.Active)
	require.EqualValues(t, 1, e.irq&1)
}

func TestMisalignedDescriptorRaisesSAE(t *testing.T) {
	e, _ := newTestEDMA(t)

	t0 := TCD{
		SAddr:  0x40000001, // not 4-byte aligned for a 32-bit SSIZE
		DAddr:  0x40000100,
		SSize:  2,
		DSize:  2,
		SOff:   4,
		DOff:   4,
		NBytes: 16,
		CIter:  1,
		BIter:  1,
	}
	encodeTCD(e.tcdRaw[0], t0)

	e.mu.Lock()
	e.erq |= 1
	e.mu.Unlock()

	e.Service()

	require.EqualValues(t, 1, e.Regs.Scalar("esr").GetField("sae"))
	require.EqualValues(t, 1, e.er&1)
}

func TestRoundRobinChannelArbitrationAdvances(t *testing.T) {
	e, _ := newTestEDMA(t)
	e.Regs.Scalar("mcr").PutField("erca", 1)

	for _, ch := range []int{0, 1} {
		t0 := TCD{
			SAddr: 0x40000000, DAddr: 0x40000200 + uint32(ch)*0x100,
			SSize: 2, DSize: 2, SOff: 4, DOff: 4, NBytes: 4, CIter: 1, BIter: 1,
		}
		encodeTCD(e.tcdRaw[ch], t0)
	}
	e.mu.Lock()
	e.erq |= 0b11
	e.mu.Unlock()

	ch, ok := e.selectChannel()
	require.True(t, ok)
	require.Equal(t, 0, ch)

	ch, ok = e.selectChannel()
	require.True(t, ok)
	require.Equal(t, 1, ch)
}
