// Package mmio is the peripheral bus adapter: it binds a register set to a
// physical address range, converts partial/misaligned accesses into the
// matching PowerPC bus exceptions, and exposes the event() entry point that
// turns a peripheral-local state change into an interrupt or DMA request
// via the event map.
package mmio

import (
	"log/slog"

	"github.com/cm2350/emufab/pkg/bitfield"
	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/eventmap"
	"github.com/cm2350/emufab/pkg/exception"
)

// IntSink is the narrow handle a peripheral uses to raise an interrupt
// source, implemented by INTC.
type IntSink interface {
	RaiseInterrupt(src eventmap.InterruptSource)
}

// DMASink is the narrow handle a peripheral uses to assert a DMA request
// line, implemented by the eDMA engine.
type DMASink interface {
	RequestDMA(req eventmap.DMARequest)
}

// Peripheral is the common base every MMIO-mapped module embeds. It owns
// the register set, the bus range, and the logger; peripheral-specific
// logic lives in the embedding type.
type Peripheral struct {
	Name string
	Addr uint64
	Regs *bitfield.RegisterSet

	Logger *slog.Logger

	IntSink IntSink
	DMASink DMASink

	cpu cpu.Bus
}

// NewPeripheral constructs a base bound to [addr, addr+regs.Size).
func NewPeripheral(name string, addr uint64, regs *bitfield.RegisterSet, logger *slog.Logger) *Peripheral {
	if logger == nil {
		logger = slog.Default()
	}
	return &Peripheral{Name: name, Addr: addr, Regs: regs, Logger: logger.With("peripheral", name)}
}

// Init binds the CPU collaborator. Must be called once before any
// EnqueueException-dependent behavior; peripherals must not retain cpu
// references before this call.
func (p *Peripheral) Init(bus cpu.Bus) {
	p.cpu = bus
}

// Reset restores every register to its power-on value.
func (p *Peripheral) Reset() {
	p.Regs.Reset()
}

// Contains reports whether va falls in this peripheral's mapped range.
func (p *Peripheral) Contains(va uint64) bool {
	return va >= p.Addr && va < p.Addr+uint64(p.Regs.Size)
}

// Read services an MMIO read at va. Accesses of 8 bytes or more are
// debugger/workspace originated; they are silently segmented
// into 4-byte chunks with PPC bus-error suppression (a chunk that is not
// exactly one register reads as zeros), though a placeholder's
// Unimplemented fault is never suppressed.
func (p *Peripheral) Read(va uint64, size int) ([]byte, error) {
	offset := uint32(va - p.Addr)
	if size >= 8 {
		return p.readSegmented(offset, size)
	}
	data, err := p.Regs.Read(offset, size, false)
	if err != nil {
		return nil, p.translate(err, offset, size, false)
	}
	return data, nil
}

// Write services an MMIO write at va, applying the same ≥8-byte
// segmentation rule as Read.
func (p *Peripheral) Write(va uint64, data []byte) error {
	offset := uint32(va - p.Addr)
	if len(data) >= 8 {
		return p.writeSegmented(offset, data)
	}
	if err := p.Regs.Write(offset, data, false); err != nil {
		return p.translate(err, offset, len(data), true)
	}
	return nil
}

func (p *Peripheral) readSegmented(offset uint32, size int) ([]byte, error) {
	out := make([]byte, 0, size)
	remaining := size
	o := offset
	for remaining > 0 {
		chunk := 4
		if remaining < chunk {
			chunk = remaining
		}
		data, err := p.Regs.Read(o, chunk, true)
		if err != nil {
			// only Unimplemented survives origin suppression
			return nil, err
		}
		out = append(out, data...)
		o += uint32(chunk)
		remaining -= chunk
	}
	return out, nil
}

func (p *Peripheral) writeSegmented(offset uint32, data []byte) error {
	o := offset
	for len(data) > 0 {
		chunk := 4
		if len(data) < chunk {
			chunk = len(data)
		}
		if err := p.Regs.Write(o, data[:chunk], true); err != nil {
			return err
		}
		data = data[chunk:]
		o += uint32(chunk)
	}
	return nil
}

// translate turns a bitfield.BusFault into the matching CPU exception and
// enqueues it. Bus faults are raised synchronously by peripheral code;
// alignment faults become Alignment exceptions and read/write bus faults
// become DataStorage exceptions (never MachineCheck); the instruction
// retires with the fault. Unimplemented faults are never
// exceptions - they propagate to the emulator's top level untranslated.
func (p *Peripheral) translate(err error, offset uint32, size int, write bool) error {
	bf, ok := err.(*bitfield.BusFault)
	if !ok || p.cpu == nil {
		return err
	}
	va := p.Addr + uint64(offset)
	switch bf.Kind {
	case "alignment":
		p.cpu.EnqueueException(exception.NewAlignment(va, p.cpu.PC()))
	case "bus":
		var esr uint32
		if write {
			esr = 1 << 25 // ESR[ST]: fault occurred on a store
		}
		p.cpu.EnqueueException(exception.NewDataStorage(va, esr, va))
	}
	return bf
}

// Fault translates an error produced outside the normal Regs.Read/Write
// path (a peripheral enforcing a cross-register protocol, e.g. SWT's
// lock/window-violation checks) into the matching CPU exception, the same
// way Read/Write do internally.
func (p *Peripheral) Fault(err error, offset uint32, size int, write bool) error {
	return p.translate(err, offset, size, write)
}

// SignalEvent implements the event() entry point for all three dispatch
// shapes (scalar/per-channel/bit-indexed): the caller has already resolved
// which status/mask field to examine (indexing into the right channel's
// register for the per-channel and bit-indexed shapes). An interrupt is
// queued only on a 0->1 status transition with the mask bit set; if the
// event maps to a DMA request and a DMASink is attached, the DMA request is
// issued instead and the status bit is left clear, since the DMA engine -
// not the CPU - acknowledges the source.
func (p *Peripheral) SignalEvent(name string, channel int, status *bitfield.Register, statusField string, mask *bitfield.Register, maskField string) bool {
	if status.GetField(statusField) != 0 {
		return false
	}
	status.PutField(statusField, 1)
	if mask.GetField(maskField) == 0 {
		return false
	}
	entry := eventmap.MustLookup(p.Name, name, channel)
	if entry.HasDMA && p.DMASink != nil {
		p.DMASink.RequestDMA(entry.DMA)
		status.PutField(statusField, 0)
		return true
	}
	if entry.HasInterrupt && p.IntSink != nil {
		p.IntSink.RaiseInterrupt(entry.Interrupt)
		return true
	}
	return false
}
