package eqadc

import (
	"encoding/binary"
	"math"
)

// sampleWireSize is channel(2) + voltage(4), the external adapter's
// `{channel:u16, voltage:f32}` framing.
const sampleWireSize = 2 + 4

func encodeSample(channel uint16, voltage float32) []byte {
	buf := make([]byte, sampleWireSize)
	binary.BigEndian.PutUint16(buf[0:2], channel)
	binary.BigEndian.PutUint32(buf[2:6], math.Float32bits(voltage))
	return buf
}

func decodeSample(buf []byte) (uint16, float64, bool) {
	if len(buf) < sampleWireSize {
		return 0, 0, false
	}
	channel := binary.BigEndian.Uint16(buf[0:2])
	voltage := math.Float32frombits(binary.BigEndian.Uint32(buf[2:6]))
	return channel, float64(voltage), true
}
