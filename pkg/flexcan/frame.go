package flexcan

import "encoding/binary"

// CanFrame is the wire-level frame exchanged with the external I/O adapter,
// using a fixed-struct framing style rather than a general object codec.
type CanFrame struct {
	ID     uint32
	IDE    bool
	RTR    bool
	Length uint8
	Data   [8]byte
}

// frameWireSize is ID(4) + flags(1) + length(1) + data(8).
const frameWireSize = 4 + 1 + 1 + 8

func encodeFrame(f CanFrame) []byte {
	buf := make([]byte, frameWireSize)
	binary.BigEndian.PutUint32(buf[0:4], f.ID)
	var flags byte
	if f.IDE {
		flags |= 1
	}
	if f.RTR {
		flags |= 2
	}
	buf[4] = flags
	buf[5] = f.Length
	copy(buf[6:14], f.Data[:])
	return buf
}

func decodeFrame(buf []byte) (CanFrame, bool) {
	if len(buf) < frameWireSize {
		return CanFrame{}, false
	}
	var f CanFrame
	f.ID = binary.BigEndian.Uint32(buf[0:4])
	f.IDE = buf[4]&1 != 0
	f.RTR = buf[4]&2 != 0
	f.Length = buf[5]
	copy(f.Data[:], buf[6:14])
	return f, true
}
