package intc

import "github.com/cm2350/emufab/pkg/bitfield"

const (
	MaxSWInterrupts = 8
	MaxInterrupts   = 480
	MinPrio         = 0
	MaxPrio         = 15

	hwVecOffsetSize = 0x10

	mcrOffset   = 0x0000
	cprOffset   = 0x0008
	iackrOffset = 0x0010
	eoirOffset  = 0x0018
	sscirOffset = 0x0020
	psrOffset   = 0x0040

	regionSize = 0x4000
)

// IACKR packs (VTBA, INTVEC); the field widths/shifts depend on MCR[VTES],
// which selects between two datasheet-defined layouts.
var (
	vtbaMask    = [2]uint32{0xFFFFF800, 0xFFFFF000}
	vtbaShift   = [2]uint{11, 12}
	intvecMask  = [2]uint32{0x000007FC, 0x00000FF8}
	intvecShift = [2]uint{2, 3}
)

func newRegisterSet() *bitfield.RegisterSet {
	rs := bitfield.NewRegisterSet(regionSize, bitfield.BigEndian)

	mcr := bitfield.NewRegister("mcr", 4, 0,
		bitfield.Field{Name: "hven", BitOffset: 0, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "pad1", BitOffset: 1, BitWidth: 4, Access: bitfield.Const},
		bitfield.Field{Name: "vtes", BitOffset: 5, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "pad0", BitOffset: 6, BitWidth: 26, Access: bitfield.Const},
	)
	rs.AddScalar("mcr", mcrOffset, mcr)

	cpr := bitfield.NewRegister("cpr", 4, MaxPrio,
		bitfield.Field{Name: "pri", BitOffset: 0, BitWidth: 4, Access: bitfield.RW},
		bitfield.Field{Name: "pad0", BitOffset: 4, BitWidth: 28, Access: bitfield.Const},
	)
	rs.AddScalar("cpr", cprOffset, cpr)

	sscir := make([]*bitfield.Register, MaxSWInterrupts)
	for i := range sscir {
		sscir[i] = bitfield.NewRegister("sscirn", 1, 0,
			bitfield.Field{Name: "clr", BitOffset: 0, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "set", BitOffset: 1, BitWidth: 1, Access: bitfield.RW},
			bitfield.Field{Name: "pad0", BitOffset: 2, BitWidth: 6, Access: bitfield.Const},
		)
	}
	rs.AddArray("sscir", sscirOffset, 1, sscir)

	psr := make([]*bitfield.Register, MaxInterrupts)
	for i := range psr {
		psr[i] = bitfield.NewRegister("psrn", 1, 0,
			bitfield.Field{Name: "pri", BitOffset: 0, BitWidth: 4, Access: bitfield.RW},
			bitfield.Field{Name: "pad0", BitOffset: 4, BitWidth: 4, Access: bitfield.Const},
		)
	}
	rs.AddArray("psr", psrOffset, 1, psr)

	return rs
}
