// Package exception implements the closed taxonomy of PowerPC e200
// exception variants the core dispatches through. Each variant is a value
// of the Exception type tagged by Kind, carrying whatever payload its class
// requires; there is no inheritance chain to switch on, only a Kind field
// and a side table of per-Kind metadata.
package exception

import "errors"

// ErrUnimplemented is returned by Dispatch for exception kinds whose setup
// is intentionally left undefined until a target ABI is chosen (Doorbell,
// Hypercall, LRAT variants). They remain enumerated so callers can name
// them, but raising them is refused rather than guessed at.
var ErrUnimplemented = errors.New("exception: unimplemented until target ABI is defined")

// Kind enumerates every exception variant the fabric can raise.
type Kind int

const (
	Reset Kind = iota
	CriticalInput
	MachineCheck
	DataStorage
	InstructionStorage
	External
	Alignment
	Program
	FloatUnavailable
	SystemCall
	APUnavailable
	Decrementer
	FixedIntervalTimer
	WatchdogTimer
	DataTLB
	InstructionTLB
	Debug
	SpeEfpuUnavailable
	EfpuDataException
	EfpuRoundException
	Performance
	Doorbell
	CriticalDoorbell
	GuestDoorbell
	Hypercall
	HyperPriv
	LRAT
	MceNMI
	MceInstructionFetchBusError
	MceDataReadBusError
	MceWriteBusError
)

// PriorityClass groups exceptions by which save/restore register pair and
// MSR semantics they use.
type PriorityClass int

const (
	StandardPrio PriorityClass = iota
	CriticalPrio
	DebugPrio
	GuestPrio
	MachineCheckPrio
)

// SaveRegs names the SRR/CSRR/MCSRR/DSRR pair an exception class saves
// context into.
type SaveRegs int

const (
	SRR SaveRegs = iota
	CSRR
	MCSRR
	DSRR
)

// Descriptor is the static, per-Kind metadata: priority class, IVOR
// selector, the MSR bits the exception clears on entry, and which
// save/restore register pair it uses.
type Descriptor struct {
	Kind         Kind
	Name         string
	Priority     PriorityClass
	IVOR         int
	MSRClearMask uint64
	SaveRegs     SaveRegs
	// Unimplemented marks a Kind whose dispatch is refused by Dispatch.
	Unimplemented bool
}

// msrBit computes a single-bit MSR clear mask, matching the e200 MSR layout
// (bit numbers big-endian, bit 0 = MSB).
func msrBit(bit uint) uint64 { return uint64(1) << (63 - bit) }

const (
	msrEE  = 48
	msrPR  = 49
	msrFP  = 50
	msrME  = 52
	msrFE0 = 56
	msrDWE = 57 // also UBLE
	msrDE  = 58
	msrIS  = 58
	msrFE1 = 60
	msrGS  = 61
	msrCE  = 51
)

// descriptors is the exhaustive table; it is compile-time data, consulted
// rather than branched on throughout the package.
var descriptors = map[Kind]Descriptor{
	Reset:                       {Reset, "Reset", MachineCheckPrio, 0, ^uint64(0), MCSRR, false},
	CriticalInput:               {CriticalInput, "CriticalInput", CriticalPrio, 0, msrBit(msrEE) | msrBit(msrCE), CSRR, false},
	MachineCheck:                {MachineCheck, "MachineCheck", MachineCheckPrio, 1, msrBit(msrME), MCSRR, false},
	DataStorage:                 {DataStorage, "DataStorage", StandardPrio, 2, msrBit(msrEE), SRR, false},
	InstructionStorage:          {InstructionStorage, "InstructionStorage", StandardPrio, 3, msrBit(msrEE), SRR, false},
	External:                    {External, "ExternalInput", StandardPrio, 4, msrBit(msrEE), SRR, false},
	Alignment:                   {Alignment, "Alignment", StandardPrio, 5, msrBit(msrEE), SRR, false},
	Program:                     {Program, "Program", StandardPrio, 6, msrBit(msrEE), SRR, false},
	FloatUnavailable:            {FloatUnavailable, "FloatingPointUnavailable", StandardPrio, 7, msrBit(msrEE), SRR, false},
	SystemCall:                  {SystemCall, "SystemCall", StandardPrio, 8, msrBit(msrEE), SRR, false},
	APUnavailable:               {APUnavailable, "AuxProcessorUnavailable", StandardPrio, 9, msrBit(msrEE), SRR, false},
	Decrementer:                 {Decrementer, "Decrementer", StandardPrio, 10, msrBit(msrEE), SRR, false},
	FixedIntervalTimer:          {FixedIntervalTimer, "FixedIntervalTimer", StandardPrio, 11, msrBit(msrEE), SRR, false},
	WatchdogTimer:               {WatchdogTimer, "WatchdogTimer", CriticalPrio, 12, msrBit(msrEE) | msrBit(msrCE), CSRR, false},
	DataTLB:                     {DataTLB, "DataTlbError", StandardPrio, 13, msrBit(msrEE), SRR, false},
	InstructionTLB:              {InstructionTLB, "InstructionTlbError", StandardPrio, 14, msrBit(msrEE), SRR, false},
	Debug:                       {Debug, "Debug", DebugPrio, 15, msrBit(msrEE) | msrBit(msrDE), DSRR, false},
	SpeEfpuUnavailable:          {SpeEfpuUnavailable, "SpeApUnavailable", StandardPrio, 32, msrBit(msrEE), SRR, false},
	EfpuDataException:           {EfpuDataException, "EfpuDataException", StandardPrio, 33, msrBit(msrEE), SRR, false},
	EfpuRoundException:          {EfpuRoundException, "EfpuRoundException", StandardPrio, 34, msrBit(msrEE), SRR, false},
	Performance:                 {Performance, "PerformanceMonitor", StandardPrio, 35, msrBit(msrEE), SRR, false},
	Doorbell:                    {Doorbell, "Doorbell", StandardPrio, 36, msrBit(msrEE), SRR, true},
	CriticalDoorbell:            {CriticalDoorbell, "CriticalDoorbell", CriticalPrio, 37, msrBit(msrEE) | msrBit(msrCE), CSRR, true},
	GuestDoorbell:                {GuestDoorbell, "GuestDoorbell", GuestPrio, 38, msrBit(msrEE), SRR, true},
	Hypercall:                   {Hypercall, "Hypercall", StandardPrio, 40, msrBit(msrEE), SRR, true},
	HyperPriv:                   {HyperPriv, "HypervisorPrivilege", StandardPrio, 41, msrBit(msrEE), SRR, true},
	LRAT:                        {LRAT, "LRATError", StandardPrio, 42, msrBit(msrEE), SRR, true},
	MceNMI:                      {MceNMI, "MceNonMaskableInterrupt", MachineCheckPrio, 1, msrBit(msrME), MCSRR, false},
	MceInstructionFetchBusError: {MceInstructionFetchBusError, "MceInstructionFetchBusError", MachineCheckPrio, 1, msrBit(msrME), MCSRR, false},
	MceDataReadBusError:         {MceDataReadBusError, "MceDataReadBusError", MachineCheckPrio, 1, msrBit(msrME), MCSRR, false},
	MceWriteBusError:            {MceWriteBusError, "MceWriteBusError", MachineCheckPrio, 1, msrBit(msrME), MCSRR, false},
}

// DescriptorOf looks up the static metadata for a Kind. An Exception stores
// only its Kind; Exception.Descriptor derives the metadata from it.
func DescriptorOf(k Kind) Descriptor {
	return descriptors[k]
}

// Exception is a single pending or in-flight exception instance. Only the
// payload fields relevant to its Kind are meaningful; see the constructors.
type Exception struct {
	Kind Kind

	// External: the interrupt source number (0..479).
	Source uint32

	// DataStorage/InstructionStorage/Alignment/DataTLB/InstructionTLB/Debug:
	// the faulting effective address.
	VA uint64
	// Program counter at the time of the fault, for bus-fault context.
	PC uint64

	ESR  uint32
	MCSR uint32
	DEAR uint64
	MCAR uint64
}

func (e *Exception) Descriptor() Descriptor { return DescriptorOf(e.Kind) }

// Equal reports whether two exceptions are the same pending instance for
// dedup purposes: same Kind and same distinguishing payload.
func (e *Exception) Equal(o *Exception) bool {
	if o == nil || e.Kind != o.Kind {
		return false
	}
	switch e.Kind {
	case External:
		return e.Source == o.Source
	case DataStorage, InstructionStorage, Alignment, DataTLB, InstructionTLB:
		return e.VA == o.VA
	default:
		return true
	}
}

func NewReset() *Exception         { return &Exception{Kind: Reset} }
func NewCriticalInput() *Exception { return &Exception{Kind: CriticalInput} }

func NewMachineCheck(mcsr uint32, mcar uint64) *Exception {
	return &Exception{Kind: MachineCheck, MCSR: mcsr, MCAR: mcar}
}

func NewDataStorage(va uint64, esr uint32, dear uint64) *Exception {
	return &Exception{Kind: DataStorage, VA: va, ESR: esr, DEAR: dear}
}

func NewInstructionStorage(va uint64, esr uint32) *Exception {
	return &Exception{Kind: InstructionStorage, VA: va, ESR: esr}
}

// NewExternal builds the exception INTC queues for a peripheral or
// software-triggered interrupt source.
func NewExternal(source uint32) *Exception {
	return &Exception{Kind: External, Source: source}
}

func NewAlignment(va, pc uint64) *Exception {
	return &Exception{Kind: Alignment, VA: va, PC: pc}
}

func NewProgram(esr uint32) *Exception           { return &Exception{Kind: Program, ESR: esr} }
func NewFloatUnavailable() *Exception            { return &Exception{Kind: FloatUnavailable} }
func NewSystemCall() *Exception                  { return &Exception{Kind: SystemCall} }
func NewAPUnavailable() *Exception                { return &Exception{Kind: APUnavailable} }
func NewDecrementer() *Exception                 { return &Exception{Kind: Decrementer} }
func NewFixedIntervalTimer() *Exception          { return &Exception{Kind: FixedIntervalTimer} }
func NewWatchdogTimer() *Exception                { return &Exception{Kind: WatchdogTimer} }
func NewDataTLB(va uint64, esr uint32) *Exception { return &Exception{Kind: DataTLB, VA: va, ESR: esr} }
func NewInstructionTLB(va uint64) *Exception      { return &Exception{Kind: InstructionTLB, VA: va} }
func NewDebug() *Exception                        { return &Exception{Kind: Debug} }
func NewSpeEfpuUnavailable() *Exception            { return &Exception{Kind: SpeEfpuUnavailable} }
func NewEfpuDataException() *Exception             { return &Exception{Kind: EfpuDataException} }
func NewEfpuRoundException() *Exception            { return &Exception{Kind: EfpuRoundException} }
func NewPerformance() *Exception                   { return &Exception{Kind: Performance} }

func NewMceInstructionFetchBusError(mcar uint64) *Exception {
	return &Exception{Kind: MceInstructionFetchBusError, MCAR: mcar}
}

func NewMceDataReadBusError(mcar uint64) *Exception {
	return &Exception{Kind: MceDataReadBusError, MCAR: mcar}
}

func NewMceWriteBusError(mcar uint64) *Exception {
	return &Exception{Kind: MceWriteBusError, MCAR: mcar}
}

// Dispatch validates that k's setup is defined before a caller builds and
// queues an Exception of that Kind. Doorbell/Hypercall/LRAT variants are
// enumerated (Kind values exist, Descriptor lookups work) but refuse
// dispatch until a target ABI defines their payload.
func Dispatch(k Kind) error {
	if DescriptorOf(k).Unimplemented {
		return ErrUnimplemented
	}
	return nil
}
