// Package edma implements the enhanced DMA transfer-control-descriptor
// engine: group/channel priority arbitration, descriptor validation,
// minor/major loop execution, scatter-gather, and channel linking.
package edma

import "github.com/cm2350/emufab/pkg/bitfield"

const (
	mcrOffset   = 0x00
	esrOffset   = 0x04
	erqOffset   = 0x08
	eeiOffset   = 0x10
	serqrOffset = 0x18
	cerqrOffset = 0x19
	seeirOffset = 0x1A
	ceeirOffset = 0x1B
	cirqrOffset = 0x1C
	cerOffset   = 0x1D
	ssbrOffset  = 0x1E
	cdsbrOffset = 0x1F
	irqOffset   = 0x20
	erOffset    = 0x28
	dchpriBase  = 0x30

	tcdBase  = 0x1000
	tcdBytes = 32

	channelsPerGroup = 16
)

func newRegisterSet(numChannels int) *bitfield.RegisterSet {
	size := uint32(tcdBase + numChannels*tcdBytes)
	rs := bitfield.NewRegisterSet(size, bitfield.BigEndian)

	mcr := bitfield.NewRegister("mcr", 4, 0,
		bitfield.Field{Name: "erca", BitOffset: 0, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "erga", BitOffset: 1, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "hoe", BitOffset: 2, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "halt", BitOffset: 3, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "clm", BitOffset: 4, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "emlm", BitOffset: 5, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "pad0", BitOffset: 6, BitWidth: 26, Access: bitfield.Const},
	)
	rs.AddScalar("mcr", mcrOffset, mcr)

	esr := bitfield.NewRegister("esr", 4, 0,
		bitfield.Field{Name: "vld", BitOffset: 0, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "gpe", BitOffset: 1, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "cpe", BitOffset: 2, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "sae", BitOffset: 3, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "soe", BitOffset: 4, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "dae", BitOffset: 5, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "doe", BitOffset: 6, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "nce", BitOffset: 7, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "sge", BitOffset: 8, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "sbe", BitOffset: 9, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "dbe", BitOffset: 10, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "errchn", BitOffset: 11, BitWidth: 6, Access: bitfield.RO},
		bitfield.Field{Name: "pad0", BitOffset: 17, BitWidth: 15, Access: bitfield.Const},
	)
	rs.AddScalar("esr", esrOffset, esr)

	dchpri := make([]*bitfield.Register, numChannels)
	for i := range dchpri {
		dchpri[i] = bitfield.NewRegister("dchpri", 1, uint64(i%channelsPerGroup),
			bitfield.Field{Name: "chpri", BitOffset: 0, BitWidth: 4, Access: bitfield.RW},
			bitfield.Field{Name: "dpa", BitOffset: 4, BitWidth: 1, Access: bitfield.RW},
			bitfield.Field{Name: "ecp", BitOffset: 5, BitWidth: 1, Access: bitfield.RW},
			bitfield.Field{Name: "pad0", BitOffset: 6, BitWidth: 2, Access: bitfield.Const},
		)
	}
	rs.AddArray("dchpri", dchpriBase, 1, dchpri)

	return rs
}
