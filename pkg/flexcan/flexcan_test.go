package flexcan

import (
	"testing"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/stretchr/testify/require"
)

func newTestFlexCAN(t *testing.T) *FlexCAN {
	t.Helper()
	f := New("FlexCAN_A", 0xFFFC0000, 40_000_000, 80_000_000, nil, nil)
	f.Init(cpu.NewFake(0x40000000, 0x1000))
	f.Reset()
	return f
}

func mailboxCSOffset(index int) uint32 {
	return mbBase + uint32(index*mailboxBytes)
}

// TestLoopbackDeliversTransmittedFrameToMatchingMailbox exercises how,
// with CTRL[LPB]=1 and SRX_DIS=0, a frame written for
// transmission on one mailbox is immediately observed by a receiving
// mailbox configured with a matching filter, with no external adapter
// involved.
func TestLoopbackDeliversTransmittedFrameToMatchingMailbox(t *testing.T) {
	f := newTestFlexCAN(t)

	// bring the module out of reset and select loop-back mode.
	require.NoError(t, f.Write(f.Addr+mcrOffset, []byte{0, 0, 0, 0})) // MDIS=0
	require.NoError(t, f.Write(f.Addr+ctrlOffset, []byte{0, 0, 0x10, 0}))

	// mailbox 8: receiver armed for ID 0x123, standard frame.
	rx := Mailbox{Code: codeRxEmpty, ID: 0x123 << 18, IDE: false}
	f.putMailbox(8, rx)
	f.mu.Lock()
	f.recomputeFilterCachesLocked()
	f.mu.Unlock()

	// mailbox 0: transmitter loaded with the same ID and a payload.
	tx := Mailbox{Code: codeTxInactive, ID: 0x123 << 18, IDE: false, Length: 2, Data: [8]byte{0xAA, 0xBB}}
	f.putMailbox(0, tx)

	// trigger transmission by writing CODE=Tx-active into mailbox 0's CS word.
	csOff := mailboxCSOffset(0)
	cs := uint32(codeTxActive)<<24 | uint32(2)<<16 // CODE and LENGTH share the CS word
	require.NoError(t, f.Write(f.Addr+uint64(csOff), []byte{byte(cs >> 24), byte(cs >> 16), byte(cs >> 8), byte(cs)}))

	got := f.mailbox(8)
	require.Equal(t, uint8(codeRxFull), got.Code)
	require.Equal(t, uint32(0x123<<18), got.ID)
	require.Equal(t, uint8(2), got.Length)
	require.Equal(t, [8]byte{0xAA, 0xBB}, got.Data)

	sender := f.mailbox(0)
	require.Equal(t, uint8(codeTxInactive), sender.Code)
}

func TestRxFIFOWarnsOnSixthQueuedFrame(t *testing.T) {
	f := newTestFlexCAN(t)
	require.NoError(t, f.Write(f.Addr+mcrOffset, []byte{0, 0, 0, 0}))
	mcr := f.Regs.Scalar("mcr")
	mcr.PutField("fen", 1)
	mcr.PutField("idam", 3) // promiscuous: every frame is FIFO-accepted
	f.mu.Lock()
	f.recomputeFIFOFiltersLocked()
	f.mu.Unlock()

	for i := 0; i < 6; i++ {
		f.mu.Lock()
		f.receiveLocked(CanFrame{ID: uint32(i), Length: 1})
		f.mu.Unlock()
	}

	iflag1 := f.Regs.Scalar("iflag1").GetField("flags")
	require.NotZero(t, iflag1&(1<<6), "expected FIFO warning flag (bit 6) set after sixth queued frame")
	require.Len(t, f.fifoQueue, 6)
}
