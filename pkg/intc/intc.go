// Package intc implements the integrated interrupt controller: priority
// arbitration, HWVEC/SWVEC vector addressing, the nested priority stack,
// the deferred-interrupt queue, and the eight software-triggered
// interrupts.
package intc

import (
	"encoding/binary"
	"log/slog"
	"sync"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/eventmap"
	"github.com/cm2350/emufab/pkg/exception"
	"github.com/cm2350/emufab/pkg/mmio"
)

// INTC is the SoC's interrupt controller. Its state is touched from the
// main emulator loop and from peripheral timer callbacks running on
// auxiliary goroutines (SWT, FlexCAN), so every operation below takes its
// own mutex; because the call graph never nests (a callback never calls
// back into a locked INTC method while still holding the lock), a plain
// sync.Mutex suffices.
type INTC struct {
	*mmio.Peripheral

	mu sync.Mutex

	vtba   uint32
	iackr  uint32
	curExc *exception.Exception

	savedPrio []uint8
	deferred  []*exception.Exception

	callbacks map[eventmap.InterruptSource][]func(*exception.Exception)

	cpuBus cpu.Bus
}

// New constructs an INTC mapped at addr.
func New(addr uint64, logger *slog.Logger) *INTC {
	regs := newRegisterSet()
	c := &INTC{
		Peripheral: mmio.NewPeripheral("INTC", addr, regs, logger),
		callbacks:  make(map[eventmap.InterruptSource][]func(*exception.Exception)),
	}
	regs.AddFieldCallback("sscir", "set", c.sscirUpdate)
	regs.AddBlockCallback("cpr", c.cprUpdate)
	return c
}

// Init binds the CPU collaborator used to read IVPR/IVOR and enqueue
// exceptions.
func (c *INTC) Init(bus cpu.Bus) {
	c.cpuBus = bus
	c.Peripheral.Init(bus)
}

// Reset clears the priority stack, deferred queue, and IACKR/current
// exception state.
func (c *INTC) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Peripheral.Reset()
	c.vtba = 0
	c.iackr = 0
	c.curExc = nil
	c.savedPrio = nil
	c.deferred = nil
}

// Read services MMIO reads. IACKR and EOIR can't be expressed as plain
// bitfield registers - they have side effects the generic register set
// doesn't model - so they're intercepted here; everything else (MCR, CPR,
// SSCIR, PSR) goes through the embedded register set.
func (c *INTC) Read(va uint64, size int) ([]byte, error) {
	offset := va - c.Addr
	c.mu.Lock()
	defer c.mu.Unlock()
	switch offset {
	case iackrOffset:
		if c.Regs.Scalar("mcr").GetField("hven") == 0 {
			// In SWVEC mode, reading IACKR is the interrupt
			// acknowledge signal.
			c.signalIACK()
		}
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, c.iackr)
		return buf, nil
	case eoirOffset:
		return []byte{0, 0, 0, 0}, nil
	default:
		return c.Peripheral.Read(va, size)
	}
}

// Write services MMIO writes, with the same IACKR/EOIR interception as
// Read.
func (c *INTC) Write(va uint64, data []byte) error {
	offset := va - c.Addr
	c.mu.Lock()
	defer c.mu.Unlock()
	switch offset {
	case iackrOffset:
		vtes := c.Regs.Scalar("mcr").GetField("vtes")
		raw := binary.BigEndian.Uint32(data)
		vtba := raw & vtbaMask[vtes]
		c.vtba = vtba >> vtbaShift[vtes]
		intvec := c.iackr &^ vtbaMask[vtes]
		c.iackr = vtba | intvec
		return nil
	case eoirOffset:
		c.signalEOIR()
		return nil
	default:
		return c.Peripheral.Write(va, data)
	}
}

// ShouldHandle reports whether exc's PSR priority is at or above the
// current CPR. A false result parks exc on the deferred queue for later
// re-offer.
func (c *INTC) ShouldHandle(exc *exception.Exception) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shouldHandleLocked(exc)
}

func (c *INTC) shouldHandleLocked(exc *exception.Exception) bool {
	prio := c.excPrio(exc)
	cpr := c.Regs.Scalar("cpr").GetField("pri")
	ok := prio >= cpr
	if !ok {
		c.Logger.Debug("deferring interrupt", "source", exc.Source, "priority", prio, "cpr", cpr)
		c.deferred = append(c.deferred, exc)
	}
	return ok
}

func (c *INTC) excPrio(exc *exception.Exception) uint64 {
	reg := c.Regs.At("psr", int(exc.Source))
	if reg == nil {
		return MinPrio
	}
	return reg.GetField("pri")
}

// GetHandler computes the physical handler address for exc, pushes the
// current priority onto the stack in HWVEC mode, and updates IACKR.
func (c *INTC) GetHandler(exc *exception.Exception) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.curExc = exc

	vtes := c.Regs.Scalar("mcr").GetField("vtes")
	ivpr := c.cpuBus.GetRegister(cpu.IVPR) &^ 0xFFFF
	intsrc := exc.Source

	vtba := (c.vtba << vtbaShift[vtes]) & vtbaMask[vtes]
	intvec := (intsrc << intvecShift[vtes]) & intvecMask[vtes]
	c.iackr = vtba | intvec

	var handler uint64
	if c.Regs.Scalar("mcr").GetField("hven") != 0 {
		c.signalIACK()
		handler = ivpr | uint64(intsrc<<4)
	} else {
		ivor := cpu.IVORBase + cpu.Register(exc.Descriptor().IVOR)
		handler = ivpr | (c.cpuBus.GetRegister(ivor) & 0x0000FFFC)
	}

	for _, cb := range c.callbacks[eventmap.InterruptSource(exc.Source)] {
		cb(exc)
	}
	return handler
}

// RFINotify pops the priority stack, re-evaluates the deferred queue, and
// clears the current-exception slot. Called on return-from-interrupt; this
// is a distinct pop trigger from an EOIR write (signalEOIR), not an alias
// for it - software may return from an interrupt without ever writing
// EOIR, and CPR must still unwind.
func (c *INTC) RFINotify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.popPriorityLocked()
	c.curExc = nil
}

// SoftwareIRQ implements software_irq(n): it is equivalent to an MMIO
// write of 1 to SSCIRn[SET], going through the same callback path.
func (c *INTC) SoftwareIRQ(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	reg := c.Regs.At("sscir", n)
	if reg == nil {
		return
	}
	reg.PutField("set", 1)
	c.sscirUpdateLocked(n)
}

func (c *INTC) sscirUpdate(idx int) {
	// Invoked synchronously from within Write, which already holds c.mu.
	c.sscirUpdateLocked(idx)
}

func (c *INTC) sscirUpdateLocked(idx int) {
	reg := c.Regs.At("sscir", idx)
	if reg.GetField("set") == 0 {
		return
	}
	reg.PutField("set", 0)
	reg.PutField("clr", 1)
	entry := eventmap.MustLookup("INTC", "software_irq", idx)
	exc := exception.NewExternal(uint32(entry.Interrupt))
	if c.cpuBus != nil {
		c.cpuBus.EnqueueException(exc)
	}
}

func (c *INTC) cprUpdate(idx int) {
	c.checkDelayedExcs()
}

func (c *INTC) checkDelayedExcs() {
	saved := c.deferred
	c.deferred = nil
	for _, exc := range saved {
		if c.shouldHandleLocked(exc) && c.cpuBus != nil {
			c.cpuBus.EnqueueException(exc)
		}
	}
}

func (c *INTC) signalIACK() {
	c.savedPrio = append(c.savedPrio, uint8(c.Regs.Scalar("cpr").GetField("pri")))
	c.Regs.Scalar("cpr").PutField("pri", c.excPrio(c.curExc))
}

func (c *INTC) signalEOIR() {
	c.popPriorityLocked()
}

// popPriorityLocked pops the priority stack back into CPR (or resets CPR to
// MinPrio if the stack is empty) and re-evaluates the deferred queue. Both
// RFINotify and an EOIR write pop independently of each other.
func (c *INTC) popPriorityLocked() {
	if n := len(c.savedPrio); n > 0 {
		last := c.savedPrio[n-1]
		c.savedPrio = c.savedPrio[:n-1]
		c.Regs.Scalar("cpr").PutField("pri", uint64(last))
	} else {
		c.Regs.Scalar("cpr").PutField("pri", MinPrio)
	}
	c.checkDelayedExcs()
}

// AddCallback registers a peripheral-specific hook fired whenever src is
// dispatched via GetHandler.
func (c *INTC) AddCallback(src eventmap.InterruptSource, cb func(*exception.Exception)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[src] = append(c.callbacks[src], cb)
}

// RaiseInterrupt implements mmio.IntSink: peripherals reach INTC only
// through this narrow handle.
func (c *INTC) RaiseInterrupt(src eventmap.InterruptSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exc := exception.NewExternal(uint32(src))
	if c.cpuBus != nil {
		c.cpuBus.EnqueueException(exc)
	}
}
