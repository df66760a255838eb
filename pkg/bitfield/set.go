package bitfield

import (
	"encoding/binary"
)

// Endian selects the byte order used to encode/decode register values on
// the wire. It tracks the CPU's current endian mode, chosen once at
// peripheral construction.
type Endian int

const (
	BigEndian Endian = iota
	LittleEndian
)

func (e Endian) order() binary.ByteOrder {
	if e == LittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// block is one named, offset-anchored run of identically-shaped registers:
// Count==1 for a scalar register, Count>1 for a channel/index array (INTC's
// SSCIR bank, eDMA's per-channel TCDs, FlexCAN's mailboxes).
type block struct {
	name     string
	offset   uint32
	elemSize int
	regs     []*Register
}

func (b *block) end() uint32 {
	return b.offset + uint32(b.elemSize*len(b.regs))
}

// BlockCallback is invoked after a successful write to any register in a
// block, with idx the array index (0 for a scalar block).
type BlockCallback func(idx int)

// SetCallback is invoked after any successful write anywhere in the set.
type SetCallback func(blockName string, idx int)

// RegisterSet is an offset-addressed collection of registers forming one
// peripheral's MMIO image. It enforces alignment (an access must land
// entirely within one declared register, at a naturally aligned offset),
// applies the register's access-class rules, and dispatches callbacks in
// field -> block -> whole-set order after a successful write.
type RegisterSet struct {
	Size   uint32
	Endian Endian

	blocks []*block

	fieldCallbacks map[string][]func(idx int) // key: blockName + "." + fieldName
	blockCallbacks map[string][]BlockCallback
	setCallbacks   []SetCallback
}

// NewRegisterSet creates an empty set spanning [0, size) bytes.
func NewRegisterSet(size uint32, endian Endian) *RegisterSet {
	return &RegisterSet{
		Size:           size,
		Endian:         endian,
		fieldCallbacks: make(map[string][]func(idx int)),
		blockCallbacks: make(map[string][]BlockCallback),
	}
}

// AddScalar binds a single register at offset under name.
func (rs *RegisterSet) AddScalar(name string, offset uint32, reg *Register) {
	rs.blocks = append(rs.blocks, &block{name: name, offset: offset, elemSize: reg.ByteWidth, regs: []*Register{reg}})
}

// AddArray binds a homogeneous array of registers starting at offset,
// stepping by elemSize bytes per element, under name.
func (rs *RegisterSet) AddArray(name string, offset uint32, elemSize int, regs []*Register) {
	rs.blocks = append(rs.blocks, &block{name: name, offset: offset, elemSize: elemSize, regs: regs})
}

// Reset restores every register in the set to its power-on value.
func (rs *RegisterSet) Reset() {
	for _, b := range rs.blocks {
		for _, r := range b.regs {
			r.Reset()
		}
	}
}

// Block returns the named block's registers for peripheral-internal use
// (bypassing MMIO access-class enforcement).
func (rs *RegisterSet) Block(name string) []*Register {
	for _, b := range rs.blocks {
		if b.name == name {
			return b.regs
		}
	}
	return nil
}

// Scalar returns the single register in a scalar block.
func (rs *RegisterSet) Scalar(name string) *Register {
	regs := rs.Block(name)
	if len(regs) != 1 {
		return nil
	}
	return regs[0]
}

// At returns the i'th register of an array block.
func (rs *RegisterSet) At(name string, i int) *Register {
	regs := rs.Block(name)
	if i < 0 || i >= len(regs) {
		return nil
	}
	return regs[i]
}

// AddFieldCallback registers a callback fired after a successful write to
// the register (at any index, for arrays) that declares fieldName in
// blockName.
func (rs *RegisterSet) AddFieldCallback(blockName, fieldName string, cb func(idx int)) {
	key := blockName + "." + fieldName
	rs.fieldCallbacks[key] = append(rs.fieldCallbacks[key], cb)
}

// AddBlockCallback registers a callback fired after any successful write
// to blockName, regardless of which field changed.
func (rs *RegisterSet) AddBlockCallback(blockName string, cb BlockCallback) {
	rs.blockCallbacks[blockName] = append(rs.blockCallbacks[blockName], cb)
}

// AddSetCallback registers a callback fired after any successful write
// anywhere in the set.
func (rs *RegisterSet) AddSetCallback(cb SetCallback) {
	rs.setCallbacks = append(rs.setCallbacks, cb)
}

func (rs *RegisterSet) find(offset uint32, size int, write bool) (*block, int, error) {
	for _, b := range rs.blocks {
		if offset < b.offset || offset >= b.end() {
			continue
		}
		rel := offset - b.offset
		idx := int(rel) / b.elemSize
		local := int(rel) % b.elemSize
		if local != 0 || size != b.elemSize {
			return nil, 0, NewAlignmentFault(offset, size, write)
		}
		return b, idx, nil
	}
	return nil, 0, NewAlignmentFault(offset, size, write)
}

func (rs *RegisterSet) fire(b *block, idx int) {
	for _, f := range b.regs[idx].Fields {
		key := b.name + "." + f.Name
		for _, cb := range rs.fieldCallbacks[key] {
			cb(idx)
		}
	}
	for _, cb := range rs.blockCallbacks[b.name] {
		cb(idx)
	}
	for _, cb := range rs.setCallbacks {
		cb(b.name, idx)
	}
}

// Read services one naturally-sized MMIO read. origin suppresses the
// alignment/read bus-fault (but never an Unimplemented fault) for
// debugger/workspace accesses.
func (rs *RegisterSet) Read(offset uint32, size int, origin bool) ([]byte, error) {
	if offset >= rs.Size || uint64(offset)+uint64(size) > uint64(rs.Size) {
		if origin {
			return make([]byte, size), nil
		}
		return nil, NewReadFault(offset, size)
	}
	b, idx, err := rs.find(offset, size, false)
	if err != nil {
		if origin {
			return make([]byte, size), nil
		}
		return nil, err
	}
	v, err := b.regs[idx].Read()
	if err != nil {
		if bf, ok := err.(*BusFault); ok && origin && bf.Kind != "unimplemented" {
			return make([]byte, size), nil
		}
		return nil, err
	}
	out := make([]byte, size)
	putUint(rs.Endian.order(), out, v, size)
	return out, nil
}

// Write services one naturally-sized MMIO write, then dispatches
// field/block/set callbacks in that order. origin suppresses bus faults the
// same way Read does.
func (rs *RegisterSet) Write(offset uint32, data []byte, origin bool) error {
	size := len(data)
	if offset >= rs.Size || uint64(offset)+uint64(size) > uint64(rs.Size) {
		if origin {
			return nil
		}
		return NewWriteFault(offset, size)
	}
	b, idx, err := rs.find(offset, size, true)
	if err != nil {
		if origin {
			return nil
		}
		return err
	}
	v := getUint(rs.Endian.order(), data)
	if err := b.regs[idx].Write(v); err != nil {
		if bf, ok := err.(*BusFault); ok && origin && bf.Kind != "unimplemented" {
			return nil
		}
		return err
	}
	rs.fire(b, idx)
	return nil
}

func putUint(order binary.ByteOrder, out []byte, v uint64, size int) {
	switch size {
	case 1:
		out[0] = byte(v)
	case 2:
		order.PutUint16(out, uint16(v))
	case 4:
		order.PutUint32(out, uint32(v))
	case 8:
		order.PutUint64(out, v)
	}
}

func getUint(order binary.ByteOrder, data []byte) uint64 {
	switch len(data) {
	case 1:
		return uint64(data[0])
	case 2:
		return uint64(order.Uint16(data))
	case 4:
		return uint64(order.Uint32(data))
	case 8:
		return order.Uint64(data)
	}
	return 0
}
