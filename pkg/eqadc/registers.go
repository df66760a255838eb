package eqadc

import "github.com/cm2350/emufab/pkg/bitfield"

const (
	numCFIFO = 6

	cfcrBase  = 0x00
	cfsrBase  = 0x18
	rfsrBase  = 0x30
	cftcrBase = 0x48
	cfprBase  = 0x60 // write-only push port, intercepted
	rfprBase  = 0x78 // read-only pop port, intercepted

	regionSize = 0x90
)

// cfifoDepth returns a CFIFO's command-queue capacity: CFIFO0 is 8 deep,
// CFIFO1-5 are 4 deep. Result FIFOs are uniformly 4 deep.
func cfifoDepth(i int) int {
	if i == 0 {
		return 8
	}
	return 4
}

const resultFIFODepth = 4

// CFCR mode values: 15 values encoding (single|continuous) x
// (sw-trigger|low|high|falling|rising|any-edge), plus disabled. Only the
// two software-triggered modes are driven automatically by this model;
// hardware-trigger modes are decoded but never self-fire (no external
// trigger source is modeled).
const (
	modeDisabled            = 0
	modeSingleSWTrigger     = 1
	modeContinuousSWTrigger = 2
)

func newRegisterSet() *bitfield.RegisterSet {
	rs := bitfield.NewRegisterSet(regionSize, bitfield.BigEndian)

	cfcr := make([]*bitfield.Register, numCFIFO)
	cfsr := make([]*bitfield.Register, numCFIFO)
	rfsr := make([]*bitfield.Register, numCFIFO)
	cftcr := make([]*bitfield.Register, numCFIFO)
	for i := 0; i < numCFIFO; i++ {
		cfcr[i] = bitfield.NewRegister("cfcr", 4, 0,
			bitfield.Field{Name: "mode", BitOffset: 0, BitWidth: 4, Access: bitfield.RW},
			bitfield.Field{Name: "pad0", BitOffset: 4, BitWidth: 28, Access: bitfield.Const},
		)
		cfsr[i] = bitfield.NewRegister("cfsr", 4, 1, // CFFF=1 at reset (FIFO starts empty, has room)
			bitfield.Field{Name: "cfff", BitOffset: 0, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "eoqf", BitOffset: 1, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "cfuf", BitOffset: 2, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "pad0", BitOffset: 3, BitWidth: 29, Access: bitfield.Const},
		)
		rfsr[i] = bitfield.NewRegister("rfsr", 4, 0,
			bitfield.Field{Name: "rfdf", BitOffset: 0, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "rfof", BitOffset: 1, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "torf", BitOffset: 2, BitWidth: 1, Access: bitfield.W1C},
			bitfield.Field{Name: "pad0", BitOffset: 3, BitWidth: 29, Access: bitfield.Const},
		)
		cftcr[i] = bitfield.NewRegister("cftcr", 4, 0,
			bitfield.Field{Name: "count", BitOffset: 0, BitWidth: 8, Access: bitfield.RO},
			bitfield.Field{Name: "pad0", BitOffset: 8, BitWidth: 24, Access: bitfield.Const},
		)
	}
	rs.AddArray("cfcr", cfcrBase, 4, cfcr)
	rs.AddArray("cfsr", cfsrBase, 4, cfsr)
	rs.AddArray("rfsr", rfsrBase, 4, rfsr)
	rs.AddArray("cftcr", cftcrBase, 4, cftcr)

	return rs
}
