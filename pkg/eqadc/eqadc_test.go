package eqadc

import (
	"testing"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/stretchr/testify/require"
)

func newTestEQADC(t *testing.T) *EQADC {
	t.Helper()
	e := New("eQADC_A", 0xFFF80000, nil, nil)
	e.Init(cpu.NewFake(0x40000000, 0x1000))
	e.Reset()
	return e
}

// TestSingleConvertProducesMidScaleResult exercises a single
// software-triggered convert of the fixed 2.5 V channel against the
// default 0-5 V rails, which produces 0x7FF, with RFDF/EOQF set and CFTCR0
// cleared back to zero.
func TestSingleConvertProducesMidScaleResult(t *testing.T) {
	e := newTestEQADC(t)

	require.NoError(t, e.Write(e.Addr+cfcrBase, []byte{0, 0, 0, 1})) // CFIFO0 MODE=single-sw-trigger

	word := uint32(1<<31) | uint32(chanMidScale)<<8 // EOQ=1, BN=0, TAG=0, CHAN=42, OFFSET=0
	cmdBytes := []byte{byte(word >> 24), byte(word >> 16), byte(word >> 8), byte(word)}
	require.NoError(t, e.Write(e.Addr+cfprBase, cmdBytes))

	resBytes, err := e.Read(e.Addr+rfprBase, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{0x00, 0x00, 0x07, 0xFF}, resBytes)

	require.NotZero(t, e.Regs.At("cfsr", 0).GetField("eoqf"))
	require.Zero(t, e.Regs.At("cftcr", 0).GetField("count"))
	require.Zero(t, e.Regs.At("cfcr", 0).GetField("mode"))
}

func TestCommandFIFOOverflowRaisesFault(t *testing.T) {
	e := newTestEQADC(t)
	for i := 0; i < cfifoDepth(1)+1; i++ {
		require.NoError(t, e.Write(e.Addr+cfprBase+4, []byte{0, 0, 0, 0}))
	}
	require.NotZero(t, e.Regs.At("cfsr", 1).GetField("cfuf"))
}
