// Package cpu defines the narrow seam between the peripheral fabric and the
// PowerPC core itself. The core's instruction decoder/executor, MMU, and
// clock tree are out of scope; this package only names the
// operations peripherals and INTC need from whatever implements them.
package cpu

import "github.com/cm2350/emufab/pkg/exception"

// Register names an opaque CPU register the fabric reads or writes by id.
// MSR, SRR0/1, CSRR0/1, MCSRR0/1, DSRR0/1, ESR, MCSR, DEAR, MCAR, IVPR, and
// one IVOR per exception class are all addressed this way; their internal
// layout is the CPU's concern, not the fabric's.
type Register int

const (
	MSR Register = iota
	SRR0
	SRR1
	CSRR0
	CSRR1
	MCSRR0
	MCSRR1
	DSRR0
	DSRR1
	ESR
	MCSR
	DEAR
	MCAR
	IVPR
	IVORBase // IVORBase+n addresses IVORn
)

// Instruction describes the instruction currently being retired, as needed
// by fault handlers to populate ESR bits.
type Instruction struct {
	PC    uint64
	Raw   []byte
	VLE   bool
	Write bool // true if the faulting access was a store
}

// TLBEntry is the subset of a data-MMU translation peripherals need to
// decide cacheability and write-through behavior.
type TLBEntry struct {
	PA               uint64
	CacheInhibited   bool
	WriteThrough     bool
	Guarded          bool
}

// MemRange describes one physically-backed range (spec's ram_ranges()).
type MemRange struct {
	Start, End uint64
}

// ReadBusError and WriteBusError are returned by Bus.ReadMemory/WriteMemory
// when the access targets unmapped or protected memory.
type ReadBusError struct{ VA uint64 }
type WriteBusError struct{ VA uint64 }

func (e *ReadBusError) Error() string  { return "cpu: read bus error" }
func (e *WriteBusError) Error() string { return "cpu: write bus error" }

// Bus is the collaborator interface the fabric consumes. Implementations
// live outside this module's scope; a deterministic test double is
// provided as Fake in this package for unit tests.
type Bus interface {
	GetRegister(id Register) uint64
	SetRegister(id Register, v uint64)

	PC() uint64
	SetPC(va uint64)

	CurInstr() Instruction

	ReadMemory(va uint64, size int) ([]byte, error)
	WriteMemory(va uint64, data []byte) error

	TranslateInstr(va uint64) (pa uint64, vle bool, err error)
	TranslateData(va uint64) (TLBEntry, error)

	EnqueueException(exc *exception.Exception)

	// SystemTime returns seconds-since-boot on the emulator's scaled
	// clock, used by peripherals that pace timers against it instead of
	// the wall clock.
	SystemTime() float64

	RAMRanges() []MemRange
}
