package flexcan

import "github.com/cm2350/emufab/pkg/bitfield"

const (
	mcrOffset      = 0x00
	ctrlOffset     = 0x04
	timerOffset    = 0x08
	rxgmaskOffset  = 0x0C
	rx14maskOffset = 0x10
	rx15maskOffset = 0x14
	esrOffset      = 0x18
	imask1Offset   = 0x1C
	imask2Offset   = 0x20
	iflag1Offset   = 0x24
	iflag2Offset   = 0x28
	rximrBase      = 0x2C

	mbBase        = 0x1000
	numMailboxes  = 64
	fifoMailboxes = 8 // mailboxes 0-7 double as the six-deep RxFIFO + its filter table (6/7)

	regionSize = mbBase + numMailboxes*mailboxBytes
)

func newRegisterSet() *bitfield.RegisterSet {
	rs := bitfield.NewRegisterSet(regionSize, bitfield.BigEndian)

	mcr := bitfield.NewRegister("mcr", 4, 1<<0|1<<4, // MDIS=1, NOT_RDY=1 at reset (module starts disabled)
		bitfield.Field{Name: "mdis", BitOffset: 0, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "frz", BitOffset: 1, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "halt", BitOffset: 2, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "soft_rst", BitOffset: 3, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "not_rdy", BitOffset: 4, BitWidth: 1, Access: bitfield.RO},
		bitfield.Field{Name: "fen", BitOffset: 5, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "mbfen", BitOffset: 6, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "srx_dis", BitOffset: 7, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "idam", BitOffset: 8, BitWidth: 2, Access: bitfield.RW},
		bitfield.Field{Name: "mdisack", BitOffset: 10, BitWidth: 1, Access: bitfield.RO},
		bitfield.Field{Name: "pad0", BitOffset: 11, BitWidth: 21, Access: bitfield.Const},
	)
	rs.AddScalar("mcr", mcrOffset, mcr)

	ctrl := bitfield.NewRegister("ctrl", 4, 0,
		bitfield.Field{Name: "presdiv", BitOffset: 0, BitWidth: 8, Access: bitfield.RW},
		bitfield.Field{Name: "propseg", BitOffset: 8, BitWidth: 3, Access: bitfield.RW},
		bitfield.Field{Name: "lom", BitOffset: 11, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "lpb", BitOffset: 12, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "tsyn", BitOffset: 13, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "clksrc", BitOffset: 14, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "pseg1", BitOffset: 15, BitWidth: 3, Access: bitfield.RW},
		bitfield.Field{Name: "pseg2", BitOffset: 18, BitWidth: 3, Access: bitfield.RW},
		bitfield.Field{Name: "pad0", BitOffset: 21, BitWidth: 11, Access: bitfield.Const},
	)
	rs.AddScalar("ctrl", ctrlOffset, ctrl)

	rs.AddScalar("rxgmask", rxgmaskOffset, bitfield.NewRegister("rxgmask", 4, 0xFFFFFFFF,
		bitfield.Field{Name: "mask", BitOffset: 0, BitWidth: 32, Access: bitfield.RW}))
	rs.AddScalar("rx14mask", rx14maskOffset, bitfield.NewRegister("rx14mask", 4, 0xFFFFFFFF,
		bitfield.Field{Name: "mask", BitOffset: 0, BitWidth: 32, Access: bitfield.RW}))
	rs.AddScalar("rx15mask", rx15maskOffset, bitfield.NewRegister("rx15mask", 4, 0xFFFFFFFF,
		bitfield.Field{Name: "mask", BitOffset: 0, BitWidth: 32, Access: bitfield.RW}))

	esr := bitfield.NewRegister("esr", 4, 0,
		bitfield.Field{Name: "bus_off", BitOffset: 0, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "error", BitOffset: 1, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "wakeup", BitOffset: 2, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "pad0", BitOffset: 3, BitWidth: 29, Access: bitfield.Const},
	)
	rs.AddScalar("esr", esrOffset, esr)

	rs.AddScalar("imask1", imask1Offset, bitfield.NewRegister("imask1", 4, 0,
		bitfield.Field{Name: "mask", BitOffset: 0, BitWidth: 32, Access: bitfield.RW}))
	rs.AddScalar("imask2", imask2Offset, bitfield.NewRegister("imask2", 4, 0,
		bitfield.Field{Name: "mask", BitOffset: 0, BitWidth: 32, Access: bitfield.RW}))
	rs.AddScalar("iflag1", iflag1Offset, bitfield.NewRegister("iflag1", 4, 0,
		bitfield.Field{Name: "flags", BitOffset: 0, BitWidth: 32, Access: bitfield.W1C}))
	rs.AddScalar("iflag2", iflag2Offset, bitfield.NewRegister("iflag2", 4, 0,
		bitfield.Field{Name: "flags", BitOffset: 0, BitWidth: 32, Access: bitfield.W1C}))

	rximr := make([]*bitfield.Register, numMailboxes)
	for i := range rximr {
		rximr[i] = bitfield.NewRegister("rximr", 4, 0xFFFFFFFF,
			bitfield.Field{Name: "mask", BitOffset: 0, BitWidth: 32, Access: bitfield.RW})
	}
	rs.AddArray("rximr", rximrBase, 4, rximr)

	return rs
}
