package swt

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/ecsm"
	"github.com/cm2350/emufab/pkg/exception"
	"github.com/stretchr/testify/require"
)

func newTestSWT(t *testing.T) (*SWT, *cpu.Fake, *ecsm.ECSM) {
	t.Helper()
	reason := ecsm.New()
	// A high tick rate keeps the test's real-time countdowns short without
	// needing a fake clock.
	s := New(0xFFF38000, reason, 1000, 1000, nil)
	bus := cpu.NewFake(0x40000000, 0x1000)
	s.Init(bus)
	s.Reset()
	return s, bus, reason
}

func writeReg(t *testing.T, s *SWT, addr uint64, offset uint32, v uint32) {
	t.Helper()
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	require.NoError(t, s.Write(addr+uint64(offset), buf))
}

func writeKey(t *testing.T, s *SWT, addr uint64, key uint16) error {
	t.Helper()
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, key)
	return s.Write(addr+skOffset, buf)
}

func TestTimeoutWithoutInterruptEnableQueuesReset(t *testing.T) {
	s, bus, reason := newTestSWT(t)
	addr := s.Addr

	writeReg(t, s, addr, toOffset, 5) // 5 ticks at 1000Hz = 5ms
	writeReg(t, s, addr, crOffset, 1) // WEN=1, ITR=0

	require.Eventually(t, func() bool {
		return len(bus.Pending) > 0
	}, time.Second, time.Millisecond)

	require.Equal(t, exception.Reset, bus.Pending[0].Kind)
	require.Equal(t, ecsm.ReasonSWT, reason.GetReason())
}

func TestFirstTimeoutInterruptsSecondResets(t *testing.T) {
	s, bus, reason := newTestSWT(t)
	addr := s.Addr

	writeReg(t, s, addr, toOffset, 5)
	writeReg(t, s, addr, crOffset, 1|(1<<2)) // WEN=1, ITR=1

	require.Eventually(t, func() bool {
		return len(bus.Pending) > 0
	}, time.Second, time.Millisecond)
	require.Equal(t, exception.WatchdogTimer, bus.Pending[0].Kind)
	require.Equal(t, ecsm.ReasonNone, reason.GetReason())

	require.Eventually(t, func() bool {
		return len(bus.Pending) > 1
	}, time.Second, time.Millisecond)
	require.Equal(t, exception.Reset, bus.Pending[1].Kind)
	require.Equal(t, ecsm.ReasonSWT, reason.GetReason())
}

func TestServiceSequenceRestartsCountdown(t *testing.T) {
	s, bus, _ := newTestSWT(t)
	addr := s.Addr

	writeReg(t, s, addr, toOffset, 50)
	writeReg(t, s, addr, crOffset, 1)

	require.NoError(t, writeKey(t, s, addr, 0xA602))
	require.NoError(t, writeKey(t, s, addr, 0xB480))

	time.Sleep(10 * time.Millisecond)
	require.Empty(t, bus.Pending)
}

func TestWrongServiceKeyResetsSequenceState(t *testing.T) {
	s, _, _ := newTestSWT(t)
	addr := s.Addr
	writeReg(t, s, addr, crOffset, 1)

	require.NoError(t, writeKey(t, s, addr, 0xA602))
	require.NoError(t, writeKey(t, s, addr, 0x0000))
	require.Equal(t, 0, s.keyIndex)
}

func TestHardLockIsStickyAcrossWrites(t *testing.T) {
	s, _, _ := newTestSWT(t)
	addr := s.Addr

	writeReg(t, s, addr, crOffset, 1<<5) // HLK=1
	require.EqualValues(t, 1, s.Regs.Scalar("cr").GetField("hlk"))

	err := s.Write(addr+crOffset, []byte{0, 0, 0, 0})
	require.Error(t, err)
	require.EqualValues(t, 1, s.Regs.Scalar("cr").GetField("hlk"))
}

func TestSoftLockUnlockSequence(t *testing.T) {
	s, _, _ := newTestSWT(t)
	addr := s.Addr

	writeReg(t, s, addr, crOffset, 1<<6) // SLK=1
	require.EqualValues(t, 1, s.Regs.Scalar("cr").GetField("slk"))

	require.NoError(t, writeKey(t, s, addr, 0xC520))
	require.NoError(t, writeKey(t, s, addr, 0xD928))
	require.EqualValues(t, 0, s.Regs.Scalar("cr").GetField("slk"))

	// Now unlocked: an ordinary CR write succeeds.
	require.NoError(t, s.Write(addr+crOffset, []byte{0, 0, 0, 0}))
}
