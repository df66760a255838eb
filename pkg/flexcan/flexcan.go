// Package flexcan models the FlexCAN 2.0 controller: a 64-entry mailbox
// CAN module with a CODE-driven state machine per mailbox, an optional
// six-deep RxFIFO that repurposes mailboxes 0-7, and transmission routed
// through an external I/O adapter rather than a real bus.
package flexcan

import (
	"log/slog"
	"sync"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/eventmap"
	"github.com/cm2350/emufab/pkg/ioadapter"
	"github.com/cm2350/emufab/pkg/mmio"
)

// Mode is the module's externally observable operating mode, derived from
// MCR[MDIS], MCR[HALT]+MCR[FRZ], CTRL[LOM] and CTRL[LPB]
// rather than stored directly.
type Mode int

const (
	ModeDisable Mode = iota
	ModeFreeze
	ModeNormal
	ModeListenOnly
	ModeLoopBack
)

// FlexCAN is one of the two CAN controllers (spec's SoC map names them
// FlexCAN_A / FlexCAN_B). mu guards mailbox storage and the derived filter
// caches; the embedded Peripheral's own register-set locking (none - single
// threaded MMIO dispatch) is orthogonal to mu, which also protects state
// mutated by the adapter's reception goroutine.
type FlexCAN struct {
	*mmio.Peripheral

	mu  sync.Mutex
	raw [numMailboxes * mailboxBytes]byte

	rxCache     []rxFilterEntry
	rtrCache    []rxFilterEntry
	fifoFilters []fifoFilter
	fifoQueue   []CanFrame

	bitClock *mmio.FreeRunningCounter
	extalHz  float64
	busHz    float64

	adapter *ioadapter.Adapter
	cpuBus  cpu.Bus
}

// New constructs a FlexCAN controller mapped at addr, with transport routed
// through adapter (nil is valid: transmission is then a no-op besides
// mailbox bookkeeping, useful for pure register-level tests).
func New(name string, addr uint64, extalHz, busHz float64, adapter *ioadapter.Adapter, logger *slog.Logger) *FlexCAN {
	regs := newRegisterSet()
	f := &FlexCAN{
		Peripheral: mmio.NewPeripheral(name, addr, regs, logger),
		extalHz:    extalHz,
		busHz:      busHz,
		adapter:    adapter,
	}
	f.bitClock = mmio.NewFreeRunningCounter(f.bitClockHz())
	if adapter != nil {
		go f.driveInbound()
	}
	return f
}

func (f *FlexCAN) Init(bus cpu.Bus) {
	f.mu.Lock()
	f.cpuBus = bus
	f.mu.Unlock()
	f.Peripheral.Init(bus)
}

// Reset is the full (power-on) reset: registers, MDIS and CTRL included,
// and mailbox storage all return to their power-on values. SoftReset() is
// the MCR[SOFT_RST]-triggered variant that preserves MDIS and CTRL.
func (f *FlexCAN) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Peripheral.Reset()
	for i := range f.raw {
		f.raw[i] = 0
	}
	f.rxCache, f.rtrCache, f.fifoFilters, f.fifoQueue = nil, nil, nil, nil
	f.bitClock.Stop()
}

// SoftReset implements MCR[SOFT_RST]: mailbox storage and most registers
// return to their power-on values, but MDIS and CTRL's clock configuration
// survive.
func (f *FlexCAN) SoftReset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	mdis := f.Regs.Scalar("mcr").GetField("mdis")
	ctrl := f.Regs.Scalar("ctrl").Raw()
	f.Regs.Reset()
	f.Regs.Scalar("mcr").PutField("mdis", mdis)
	f.Regs.Scalar("ctrl").SetRaw(ctrl)
	for i := range f.raw {
		f.raw[i] = 0
	}
	f.rxCache, f.rtrCache, f.fifoFilters, f.fifoQueue = nil, nil, nil, nil
}

func (f *FlexCAN) fen() bool {
	return f.Regs.Scalar("mcr").GetField("fen") != 0
}

// mode derives the current operating mode from MCR/CTRL state.
func (f *FlexCAN) mode() Mode {
	mcr := f.Regs.Scalar("mcr")
	if mcr.GetField("mdis") != 0 {
		return ModeDisable
	}
	if mcr.GetField("halt") != 0 || mcr.GetField("frz") != 0 {
		return ModeFreeze
	}
	ctrl := f.Regs.Scalar("ctrl")
	if ctrl.GetField("lpb") != 0 {
		return ModeLoopBack
	}
	if ctrl.GetField("lom") != 0 {
		return ModeListenOnly
	}
	return ModeNormal
}

// bitClockHz computes the nominal CAN bit rate from CTRL's timing fields:
// sclk = (bus-or-extal clock) / (PRESDIV+1), f = sclk /
// (SYNC+PROPSEG+PSEG1+PSEG2+4). SYNC is fixed at 1 time quantum.
func (f *FlexCAN) bitClockHz() float64 {
	ctrl := f.Regs.Scalar("ctrl")
	src := f.extalHz
	if ctrl.GetField("clksrc") != 0 {
		src = f.busHz
	}
	presdiv := float64(ctrl.GetField("presdiv"))
	sclk := src / (presdiv + 1)
	quanta := 1 + float64(ctrl.GetField("propseg")) + float64(ctrl.GetField("pseg1")) + float64(ctrl.GetField("pseg2")) + 4
	if quanta <= 0 {
		return sclk
	}
	return sclk / quanta
}

func (f *FlexCAN) mailboxRaw(i int) []byte {
	return f.raw[i*mailboxBytes : (i+1)*mailboxBytes]
}

func (f *FlexCAN) mailbox(i int) Mailbox {
	return decodeMailbox(f.mailboxRaw(i))
}

func (f *FlexCAN) putMailbox(i int, m Mailbox) {
	encodeMailbox(f.mailboxRaw(i), m)
}

func (f *FlexCAN) raiseMailbox(index int) {
	flagReg, maskReg := "iflag1", "imask1"
	bit := index
	if index >= 32 {
		flagReg, maskReg = "iflag2", "imask2"
		bit = index - 32
	}
	status := f.Regs.Scalar(flagReg)
	mask := f.Regs.Scalar(maskReg)
	cur := status.GetField("flags")
	if cur&(1<<uint(bit)) != 0 {
		return
	}
	status.PutField("flags", cur|(1<<uint(bit)))
	if mask.GetField("mask")&(1<<uint(bit)) != 0 && f.IntSink != nil {
		entry := eventmap.MustLookup(f.Name, "mailbox", index)
		f.IntSink.RaiseInterrupt(entry.Interrupt)
	}
}

func (f *FlexCAN) raiseFIFOWarning() { f.raiseMailbox(6) }
func (f *FlexCAN) raiseFIFOOverflow() {
	f.raiseMailbox(7)
}

// Read intercepts the mailbox region (a raw byte array, not a
// RegisterSet-described field layout) and the live bit-clock TIMER
// register; everything else goes through the embedded register set.
func (f *FlexCAN) Read(va uint64, size int) ([]byte, error) {
	offset := uint32(va - f.Addr)
	f.mu.Lock()
	defer f.mu.Unlock()
	if offset == timerOffset && size == 4 {
		v := uint32(f.bitClock.Value())
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}, nil
	}
	if offset >= mbBase && offset < regionSize {
		rel := offset - mbBase
		if int(rel)+size > len(f.raw) {
			return f.Peripheral.Read(va, size)
		}
		out := make([]byte, size)
		copy(out, f.raw[rel:int(rel)+size])
		return out, nil
	}
	return f.Peripheral.Read(va, size)
}

// Write intercepts the mailbox region, the TIMER register, MCR (to detect
// SOFT_RST/FEN/MBFEN changes that invalidate the filter caches, and mode
// transitions that start/stop the bit clock), and IFLAG1 (to detect the
// MB5 clear that dequeues the next RxFIFO frame).
func (f *FlexCAN) Write(va uint64, data []byte) error {
	offset := uint32(va - f.Addr)
	f.mu.Lock()
	defer f.mu.Unlock()

	if offset == timerOffset && len(data) == 4 {
		v := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		f.bitClock.SetValue(uint64(v))
		return nil
	}

	if offset >= mbBase && offset < regionSize {
		rel := offset - mbBase
		if int(rel)+len(data) > len(f.raw) {
			return f.Peripheral.Write(va, data)
		}
		mbIndex := int(rel) / mailboxBytes
		codeTouched := int(rel)%mailboxBytes == 0 && len(data) >= 1
		before := byte(0)
		if codeTouched {
			before = f.raw[mbIndex*mailboxBytes]
		}
		copy(f.raw[rel:int(rel)+len(data)], data)
		if codeTouched && f.raw[mbIndex*mailboxBytes] != before {
			f.handleMailboxWriteLocked(mbIndex)
		}
		if mbIndex == 6 || mbIndex == 7 {
			f.recomputeFIFOFiltersLocked()
		}
		return nil
	}

	wasMDIS := f.Regs.Scalar("mcr").GetField("mdis")
	wasSoftRst := f.Regs.Scalar("mcr").GetField("soft_rst")

	if offset == iflag1Offset && len(data) == 4 {
		before := f.Regs.Scalar("iflag1").GetField("flags")
		if err := f.Peripheral.Write(va, data); err != nil {
			return err
		}
		after := f.Regs.Scalar("iflag1").GetField("flags")
		if before&(1<<5) != 0 && after&(1<<5) == 0 {
			f.dequeueFIFOLocked()
		}
		return nil
	}

	if err := f.Peripheral.Write(va, data); err != nil {
		return err
	}

	if offset == mcrOffset {
		mcr := f.Regs.Scalar("mcr")
		if mcr.GetField("soft_rst") != 0 && wasSoftRst == 0 {
			mcr.PutField("soft_rst", 0)
			f.softResetInlineLocked()
		}
		if mcr.GetField("mdis") != wasMDIS {
			if mcr.GetField("mdis") != 0 {
				f.bitClock.Stop()
			} else {
				f.bitClock.Start()
			}
		}
		f.recomputeFilterCachesLocked()
		f.recomputeFIFOFiltersLocked()
	}
	if offset == ctrlOffset {
		f.bitClock.SetFrequency(f.bitClockHz())
	}

	return nil
}

// softResetInlineLocked is Write's path into SoftReset's effect without
// re-entering the mutex (Write already holds f.mu).
func (f *FlexCAN) softResetInlineLocked() {
	mdis := f.Regs.Scalar("mcr").GetField("mdis")
	ctrl := f.Regs.Scalar("ctrl").Raw()
	f.Regs.Reset()
	f.Regs.Scalar("mcr").PutField("mdis", mdis)
	f.Regs.Scalar("ctrl").SetRaw(ctrl)
	for i := range f.raw {
		f.raw[i] = 0
	}
	f.rxCache, f.rtrCache, f.fifoFilters, f.fifoQueue = nil, nil, nil, nil
}

// handleMailboxWriteLocked reacts to a CODE byte change: recompute the
// filter caches, and if the new CODE requests transmission, drive it.
func (f *FlexCAN) handleMailboxWriteLocked(index int) {
	f.recomputeFilterCachesLocked()
	m := f.mailbox(index)
	if m.Code == codeTxActive || m.Code == codeTxRTRSending {
		f.transmitLocked(index)
	}
}

// transmitLocked drives one mailbox's transmission: timestamp
// capture, external emission through the adapter, CODE post-processing,
// and - when SRX_DIS=0 in Normal or Loop-back mode - self-reception.
func (f *FlexCAN) transmitLocked(index int) {
	m := f.mailbox(index)
	m.Timestamp = uint16(f.bitClock.Value())
	f.putMailbox(index, m)

	frame := CanFrame{ID: m.ID, IDE: m.IDE, RTR: m.RTR, Length: m.Length, Data: m.Data}
	if f.adapter != nil && f.mode() != ModeLoopBack {
		f.adapter.Broadcast(encodeFrame(frame))
	}

	next := m
	switch m.Code {
	case codeTxActive:
		next.Code = codeTxInactive
	case codeTxRTRSending:
		next.Code = codeTxTRTR
	}
	f.putMailbox(index, next)
	f.recomputeFilterCachesLocked()
	f.raiseMailbox(index)

	mode := f.mode()
	srxDis := f.Regs.Scalar("mcr").GetField("srx_dis") != 0
	if !srxDis && (mode == ModeNormal || mode == ModeLoopBack) {
		f.receiveLocked(frame)
	}
}

// driveInbound is the goroutine draining the adapter's inbound channel
// (frames injected by the outside world) into reception, for the lifetime
// of the adapter.
func (f *FlexCAN) driveInbound() {
	for payload := range f.adapter.Inbound() {
		frame, ok := decodeFrame(payload)
		if !ok {
			continue
		}
		f.mu.Lock()
		if f.mode() == ModeNormal || f.mode() == ModeListenOnly {
			f.receiveLocked(frame)
		}
		f.mu.Unlock()
	}
}
