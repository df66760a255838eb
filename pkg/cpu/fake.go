package cpu

import "github.com/cm2350/emufab/pkg/exception"

// Fake is a deterministic, single-threaded Bus implementation backed by a
// flat byte slice, used by peripheral package tests that need a CPU
// collaborator without pulling in a real decoder/executor.
type Fake struct {
	Regs    map[Register]uint64
	Mem     []byte
	Base    uint64
	pc      uint64
	Pending []*exception.Exception
	Now     float64
	Ranges  []MemRange
}

// NewFake allocates a Fake CPU with size bytes of RAM starting at base.
func NewFake(base uint64, size int) *Fake {
	return &Fake{
		Regs:   make(map[Register]uint64),
		Mem:    make([]byte, size),
		Base:   base,
		Ranges: []MemRange{{Start: base, End: base + uint64(size)}},
	}
}

func (f *Fake) GetRegister(id Register) uint64    { return f.Regs[id] }
func (f *Fake) SetRegister(id Register, v uint64) { f.Regs[id] = v }

func (f *Fake) PC() uint64        { return f.pc }
func (f *Fake) SetPC(va uint64)   { f.pc = va }

func (f *Fake) CurInstr() Instruction { return Instruction{PC: f.pc} }

func (f *Fake) offset(va uint64, size int) (int, bool) {
	if va < f.Base || va+uint64(size) > f.Base+uint64(len(f.Mem)) {
		return 0, false
	}
	return int(va - f.Base), true
}

func (f *Fake) ReadMemory(va uint64, size int) ([]byte, error) {
	off, ok := f.offset(va, size)
	if !ok {
		return nil, &ReadBusError{VA: va}
	}
	out := make([]byte, size)
	copy(out, f.Mem[off:off+size])
	return out, nil
}

func (f *Fake) WriteMemory(va uint64, data []byte) error {
	off, ok := f.offset(va, len(data))
	if !ok {
		return &WriteBusError{VA: va}
	}
	copy(f.Mem[off:off+len(data)], data)
	return nil
}

func (f *Fake) TranslateInstr(va uint64) (uint64, bool, error) { return va, false, nil }
func (f *Fake) TranslateData(va uint64) (TLBEntry, error)      { return TLBEntry{PA: va}, nil }

func (f *Fake) EnqueueException(exc *exception.Exception) {
	f.Pending = append(f.Pending, exc)
}

func (f *Fake) SystemTime() float64    { return f.Now }
func (f *Fake) RAMRanges() []MemRange  { return f.Ranges }
