package swt

import "github.com/cm2350/emufab/pkg/bitfield"

const (
	crOffset = 0x00
	toOffset = 0x04
	wnOffset = 0x08
	skOffset = 0x0C

	regionSize = 0x4000

	defaultTO = 0x0000FFFF
)

// defaultKeys and unlockKeys are the two fixed two-halfword sequences SWT
// recognizes: the reset-service sequence used when MCR[KEY]=0, and the
// soft-lock unlock sequence, accepted whenever CR[SLK] is set.
var (
	defaultKeys = [2]uint16{0xA602, 0xB480}
	unlockKeys  = [2]uint16{0xC520, 0xD928}
)

func newRegisterSet() *bitfield.RegisterSet {
	rs := bitfield.NewRegisterSet(regionSize, bitfield.BigEndian)

	cr := bitfield.NewRegister("cr", 4, 0,
		bitfield.Field{Name: "wen", BitOffset: 0, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "wnd", BitOffset: 1, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "itr", BitOffset: 2, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "csl", BitOffset: 3, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "key", BitOffset: 4, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "hlk", BitOffset: 5, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "slk", BitOffset: 6, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "ria", BitOffset: 7, BitWidth: 1, Access: bitfield.RW},
		bitfield.Field{Name: "tif", BitOffset: 8, BitWidth: 1, Access: bitfield.W1C},
		bitfield.Field{Name: "pad0", BitOffset: 9, BitWidth: 23, Access: bitfield.Const},
	)
	rs.AddScalar("cr", crOffset, cr)

	to := bitfield.NewRegister("to", 4, defaultTO,
		bitfield.Field{Name: "value", BitOffset: 0, BitWidth: 32, Access: bitfield.RW},
	)
	rs.AddScalar("to", toOffset, to)

	wn := bitfield.NewRegister("wn", 4, 0,
		bitfield.Field{Name: "value", BitOffset: 0, BitWidth: 32, Access: bitfield.RW},
	)
	rs.AddScalar("wn", wnOffset, wn)

	sk := bitfield.NewRegister("sk", 2, 0,
		bitfield.Field{Name: "value", BitOffset: 0, BitWidth: 16, Access: bitfield.WO},
	)
	rs.AddScalar("sk", skOffset, sk)

	return rs
}
