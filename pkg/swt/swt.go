// Package swt implements the software watchdog timer: the countdown clock,
// the window-protected two-halfword service-key protocol, the HLK/SLK lock
// bits, and the enabled-first-timeout/enabled-second-timeout escalation to
// reset.
package swt

import (
	"encoding/binary"
	"log/slog"
	"sync"
	"time"

	"github.com/cm2350/emufab/pkg/bitfield"
	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/ecsm"
	"github.com/cm2350/emufab/pkg/exception"
	"github.com/cm2350/emufab/pkg/mmio"
)

// SWT is the software watchdog. MCR/TO/WN gate each other (a locked or
// windowed state changes how a write to a sibling register is treated), a
// cross-register protocol the generic bitfield.RegisterSet has no way to
// express, so Write is overridden here the same way INTC overrides it for
// IACKR/EOIR.
type SWT struct {
	*mmio.Peripheral

	mu     sync.Mutex
	ecsm   *ecsm.ECSM
	timer  *mmio.ScaledTimer
	cpuBus cpu.Bus

	extalHz float64
	busHz   float64

	keyIndex    int
	lastKey     uint16
	unlockIndex int
	sticky      bool

	started     time.Time
	periodTicks uint64
}

// New constructs an SWT mapped at addr, clocked from either extalHz (CSL=0)
// or busHz (CSL=1), and wired to reason so a watchdog-triggered reset is
// visible to the rest of the SoC.
func New(addr uint64, reason *ecsm.ECSM, extalHz, busHz float64, logger *slog.Logger) *SWT {
	regs := newRegisterSet()
	s := &SWT{
		Peripheral: mmio.NewPeripheral("SWT", addr, regs, logger),
		ecsm:       reason,
		extalHz:    extalHz,
		busHz:      busHz,
	}
	s.timer = mmio.NewScaledTimer(extalHz, s.handleTimeout)
	return s
}

// Init binds the CPU collaborator used to enqueue WatchdogTimer/Reset
// exceptions.
func (s *SWT) Init(bus cpu.Bus) {
	s.mu.Lock()
	s.cpuBus = bus
	s.mu.Unlock()
	s.Peripheral.Init(bus)
}

// Reset restores power-on register values and stops any running countdown;
// MCR's reset value has WEN clear, so the watchdog does not auto-arm.
func (s *SWT) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Peripheral.Reset()
	s.timer.Stop()
	s.keyIndex = 0
	s.unlockIndex = 0
	s.lastKey = 0
	s.sticky = false
	s.started = time.Time{}
	s.periodTicks = 0
}

// Write intercepts MCR/TO/WN (lock-gated) and SK (the service-key protocol)
// before delegating to the embedded register set.
func (s *SWT) Write(va uint64, data []byte) error {
	offset := uint32(va - s.Addr)
	s.mu.Lock()
	defer s.mu.Unlock()

	switch offset {
	case crOffset, toOffset, wnOffset:
		if s.isLockedLocked() {
			return s.lockViolationLocked(offset, len(data))
		}
		oldHlk := s.Regs.Scalar("cr").GetField("hlk")
		oldWen := s.Regs.Scalar("cr").GetField("wen")
		if err := s.Peripheral.Write(va, data); err != nil {
			return err
		}
		if offset == crOffset {
			if oldHlk != 0 {
				// HLK is a one-way sticky bit: once set it can
				// never be cleared again, even by this write.
				s.Regs.Scalar("cr").PutField("hlk", 1)
			}
			s.syncTimerLocked(oldWen)
		}
		return nil
	case skOffset:
		return s.handleServiceWriteLocked(data)
	default:
		return s.Peripheral.Write(va, data)
	}
}

func (s *SWT) isLockedLocked() bool {
	cr := s.Regs.Scalar("cr")
	return cr.GetField("hlk") != 0 || cr.GetField("slk") != 0
}

// lockViolationLocked handles both a locked CR/TO/WN write and an
// out-of-window or locked service-key write: RIA=1 turns the violation into
// an immediate reset, RIA=0 raises a write bus-error instead.
func (s *SWT) lockViolationLocked(offset uint32, size int) error {
	if s.Regs.Scalar("cr").GetField("ria") != 0 {
		s.queueResetLocked()
		return nil
	}
	return s.Fault(bitfield.NewWriteFault(offset, size), offset, size, true)
}

func (s *SWT) syncTimerLocked(oldWen uint64) {
	wen := s.Regs.Scalar("cr").GetField("wen")
	switch {
	case wen != 0 && oldWen == 0:
		s.restartLocked()
	case wen != 0:
		s.timer.SetFrequency(s.frequencyLocked())
	default:
		s.timer.Stop()
	}
}

func (s *SWT) frequencyLocked() float64 {
	if s.Regs.Scalar("cr").GetField("csl") == 0 {
		return s.extalHz
	}
	return s.busHz
}

func (s *SWT) restartLocked() {
	to := s.Regs.Scalar("to").Raw()
	s.periodTicks = to
	s.started = time.Now()
	s.timer.SetFrequency(s.frequencyLocked())
	s.timer.Start(to)
}

func (s *SWT) elapsedTicksLocked() uint64 {
	return uint64(time.Since(s.started).Seconds() * s.frequencyLocked())
}

// pastWindowLocked reports whether the countdown has descended into the
// serviceable window [0, WN] (spec: a window-protected service write is only
// accepted once the counter has fallen to or below WN).
func (s *SWT) pastWindowLocked() bool {
	wn := s.Regs.Scalar("wn").Raw()
	if wn >= s.periodTicks {
		return true
	}
	return s.elapsedTicksLocked() >= s.periodTicks-wn
}

func (s *SWT) handleServiceWriteLocked(data []byte) error {
	if len(data) != 2 {
		return s.Fault(bitfield.NewAlignmentFault(skOffset, len(data), true), skOffset, len(data), true)
	}
	key := binary.BigEndian.Uint16(data)

	if s.matchUnlockLocked(key) {
		return nil
	}
	if s.isLockedLocked() {
		return s.lockViolationLocked(skOffset, 2)
	}
	if s.Regs.Scalar("cr").GetField("wnd") != 0 && !s.pastWindowLocked() {
		return s.lockViolationLocked(skOffset, 2)
	}
	s.matchServiceLocked(key)
	return nil
}

// matchUnlockLocked recognizes the fixed two-halfword unlock sequence, which
// is accepted regardless of enable state whenever CR[SLK] is set, so a
// soft-locked watchdog can always be reopened; with SLK clear it is not
// treated as an unlock.
func (s *SWT) matchUnlockLocked(key uint16) bool {
	if s.Regs.Scalar("cr").GetField("slk") == 0 {
		s.unlockIndex = 0
		return false
	}
	if s.unlockIndex == 0 {
		if key == unlockKeys[0] {
			s.unlockIndex = 1
			return true
		}
		return false
	}
	s.unlockIndex = 0
	if key == unlockKeys[1] {
		s.Regs.Scalar("cr").PutField("slk", 0)
		return true
	}
	return false
}

// matchServiceLocked advances the service-key state machine: on a complete
// two-halfword match, the countdown restarts and any latched timeout
// escalation clears.
func (s *SWT) matchServiceLocked(key uint16) {
	expected := s.expectedKeyLocked(s.keyIndex)
	if key != expected {
		s.keyIndex = 0
		return
	}
	if s.keyIndex == 0 {
		s.keyIndex = 1
		return
	}
	s.keyIndex = 0
	s.lastKey = key
	s.sticky = false
	s.restartLocked()
}

// expectedKeyLocked returns the idx'th (0 or 1) expected halfword of the
// current service sequence: the fixed pair when MCR[KEY]=0, or the next two
// values of the linear congruential sequence seeded by the last
// successfully written key when MCR[KEY]=1.
func (s *SWT) expectedKeyLocked(idx int) uint16 {
	if s.Regs.Scalar("cr").GetField("key") == 0 {
		return defaultKeys[idx]
	}
	first := deriveNext(s.lastKey)
	if idx == 0 {
		return first
	}
	return deriveNext(first)
}

func deriveNext(k uint16) uint16 {
	return uint16((17*uint32(k) + 3) % 65536)
}

func (s *SWT) queueResetLocked() {
	s.timer.Stop()
	s.sticky = false
	if s.ecsm != nil {
		s.ecsm.SWTReset()
	}
	if s.cpuBus != nil {
		s.cpuBus.EnqueueException(exception.NewReset())
	}
}

// handleTimeout runs on the ScaledTimer's own goroutine when a countdown
// reaches zero: the first timeout (ITR=1) only raises WatchdogTimer and
// restarts, sticky; any timeout after that, or any timeout at all with
// ITR=0, escalates straight to reset.
func (s *SWT) handleTimeout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Regs.Scalar("cr").GetField("wen") == 0 {
		return
	}
	if !s.sticky && s.Regs.Scalar("cr").GetField("itr") != 0 {
		s.sticky = true
		s.Regs.Scalar("cr").PutField("tif", 1)
		if s.cpuBus != nil {
			s.cpuBus.EnqueueException(exception.NewWatchdogTimer())
		}
		s.restartLocked()
		return
	}
	s.queueResetLocked()
}
