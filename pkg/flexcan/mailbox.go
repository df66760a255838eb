package flexcan

import "encoding/binary"

// CODE values classify a mailbox's role (exact bit patterns are this
// model's own choice - no wire format depends on them, only the CODE
// transitions in flexcan.go and filter.go do).
const (
	codeInactive     = 0x0
	codeRxBusy       = 0x1
	codeRxFull       = 0x2
	codeRxEmpty      = 0x4
	codeRxOverrun    = 0x6
	codeTxInactive   = 0x8
	codeTxAbort      = 0x9
	codeTxTRTR       = 0xA // Tx-RTR: armed auto-reply
	codeTxActive     = 0xC
	codeTxRTRSending = 0xE
)

const mailboxBytes = 16

// Mailbox is the decoded form of one 16-byte mailbox slot.
type Mailbox struct {
	Code      uint8
	IDE       bool
	RTR       bool
	Length    uint8
	Timestamp uint16
	Priority  uint8
	ID        uint32
	Data      [8]byte
}

func decodeMailbox(raw []byte) Mailbox {
	var m Mailbox
	cs := binary.BigEndian.Uint32(raw[0:4])
	m.Code = uint8((cs >> 24) & 0xF)
	m.IDE = cs&(1<<23) != 0
	m.RTR = cs&(1<<22) != 0
	m.Length = uint8((cs >> 16) & 0xF)
	m.Timestamp = uint16(cs & 0xFFFF)

	idWord := binary.BigEndian.Uint32(raw[4:8])
	m.Priority = uint8(idWord & 0x7)
	m.ID = idWord >> 3

	copy(m.Data[:], raw[8:16])
	return m
}

func encodeMailbox(raw []byte, m Mailbox) {
	var cs uint32
	cs |= uint32(m.Code&0xF) << 24
	if m.IDE {
		cs |= 1 << 23
	}
	if m.RTR {
		cs |= 1 << 22
	}
	cs |= uint32(m.Length&0xF) << 16
	cs |= uint32(m.Timestamp)
	binary.BigEndian.PutUint32(raw[0:4], cs)

	idWord := (m.ID << 3) | uint32(m.Priority&0x7)
	binary.BigEndian.PutUint32(raw[4:8], idWord)

	copy(raw[8:16], m.Data[:])
}

// standardID returns the mailbox's 11-bit standard identifier, the top bits
// of the stored 29-bit field.
func (m Mailbox) standardID() uint32 {
	return m.ID >> 18
}
