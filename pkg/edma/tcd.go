package edma

import "encoding/binary"

// TCD is the decoded form of one channel's 32-byte transfer control
// descriptor. Reads/writes against the MMIO TCD region operate
// on the raw 32 bytes directly; TCD is only materialized when the engine
// validates or executes a channel.
type TCD struct {
	SAddr uint32
	SOff  int16
	SSize uint8
	DSize uint8

	// NBytes is the true per-minor-loop byte count, already separated from
	// the minor-loop-offset bits per MCR[EMLM]/SMLOE/DMLOE.
	NBytes  uint32
	SMLOE   bool
	DMLOE   bool
	MLOff   int32
	SLast   int32
	DAddr   uint32
	DOff    int16
	CIter   uint16
	BIter   uint16
	ELinkCh uint8 // shared minor-loop link channel (CITER/BITER E_LINK)
	ELink   bool

	DLastSga int32

	Start      bool
	Active     bool
	Done       bool
	MajorELink bool
	ESG        bool
	DReq       bool
	IntHalf    bool
	IntMaj     bool
	LinkCh     uint8 // MAJOR.LINKCH
}

// sizeBits maps a 3-bit SSIZE/DSIZE transfer-size code to its beat width in
// bits, or ok=false for a reserved code.
func sizeBits(code uint8) (int, bool) {
	switch code {
	case 0:
		return 8, true
	case 1:
		return 16, true
	case 2:
		return 32, true
	case 3:
		return 64, true
	case 5:
		return 256, true
	default:
		return 0, false
	}
}

// decodeTCD unpacks 32 raw bytes into a TCD, applying the EMLM-dependent
// NBYTES layout.
func decodeTCD(raw []byte, emlm bool) TCD {
	var t TCD
	be := binary.BigEndian

	t.SAddr = be.Uint32(raw[0x00:])
	t.SOff = int16(be.Uint16(raw[0x04:]))
	attr := be.Uint16(raw[0x06:])
	t.SSize = uint8((attr >> 8) & 0x7)
	t.DSize = uint8(attr & 0x7)

	nbytesRaw := be.Uint32(raw[0x08:])
	t.SMLOE = emlm && nbytesRaw&(1<<31) != 0
	t.DMLOE = emlm && nbytesRaw&(1<<30) != 0
	if t.SMLOE || t.DMLOE {
		mloff := int32(nbytesRaw<<2) >> 13 // sign-extend bits 29..11 (19-bit field)
		t.MLOff = mloff
		t.NBytes = nbytesRaw & 0x3FF
	} else if emlm {
		t.NBytes = nbytesRaw & 0x3FFFFFFF
	} else if nbytesRaw == 0 {
		t.NBytes = 0 // caller treats 0 && !EMLM as 2^32 bytes
	} else {
		t.NBytes = nbytesRaw
	}

	t.SLast = int32(be.Uint32(raw[0x0C:]))
	t.DAddr = be.Uint32(raw[0x10:])
	t.DOff = int16(be.Uint16(raw[0x14:]))

	citer := be.Uint16(raw[0x16:])
	t.ELink = citer&0x8000 != 0
	if t.ELink {
		t.ELinkCh = uint8((citer >> 9) & 0x3F)
		t.CIter = citer & 0x1FF
	} else {
		t.CIter = citer & 0x7FFF
	}

	t.DLastSga = int32(be.Uint32(raw[0x18:]))

	csr := be.Uint16(raw[0x1C:])
	t.Start = csr&(1<<0) != 0
	t.Active = csr&(1<<1) != 0
	t.Done = csr&(1<<2) != 0
	t.MajorELink = csr&(1<<3) != 0
	t.ESG = csr&(1<<4) != 0
	t.DReq = csr&(1<<5) != 0
	t.IntHalf = csr&(1<<6) != 0
	t.IntMaj = csr&(1<<7) != 0
	t.LinkCh = uint8((csr >> 8) & 0x3F)

	biter := be.Uint16(raw[0x1E:])
	if biter&0x8000 != 0 {
		t.BIter = biter & 0x1FF
	} else {
		t.BIter = biter & 0x7FFF
	}

	return t
}

// encodeTCD packs t back into raw (32 bytes), preserving the SMLOE/DMLOE/
// MLOFF layout of NBYTES the descriptor was decoded with.
func encodeTCD(raw []byte, t TCD) {
	be := binary.BigEndian

	be.PutUint32(raw[0x00:], t.SAddr)
	be.PutUint16(raw[0x04:], uint16(t.SOff))
	attr := (uint16(t.SSize) << 8) | uint16(t.DSize)
	be.PutUint16(raw[0x06:], attr)

	var nbytesRaw uint32
	if t.SMLOE || t.DMLOE {
		if t.SMLOE {
			nbytesRaw |= 1 << 31
		}
		if t.DMLOE {
			nbytesRaw |= 1 << 30
		}
		nbytesRaw |= (uint32(t.MLOff) & 0x7FFFF) << 11
		nbytesRaw |= t.NBytes & 0x3FF
	} else {
		nbytesRaw = t.NBytes
	}
	be.PutUint32(raw[0x08:], nbytesRaw)

	be.PutUint32(raw[0x0C:], uint32(t.SLast))
	be.PutUint32(raw[0x10:], t.DAddr)
	be.PutUint16(raw[0x14:], uint16(t.DOff))

	var citer uint16
	if t.ELink {
		citer = 0x8000 | (uint16(t.ELinkCh&0x3F) << 9) | (t.CIter & 0x1FF)
	} else {
		citer = t.CIter & 0x7FFF
	}
	be.PutUint16(raw[0x16:], citer)

	be.PutUint32(raw[0x18:], uint32(t.DLastSga))

	var csr uint16
	if t.Start {
		csr |= 1 << 0
	}
	if t.Active {
		csr |= 1 << 1
	}
	if t.Done {
		csr |= 1 << 2
	}
	if t.MajorELink {
		csr |= 1 << 3
	}
	if t.ESG {
		csr |= 1 << 4
	}
	if t.DReq {
		csr |= 1 << 5
	}
	if t.IntHalf {
		csr |= 1 << 6
	}
	if t.IntMaj {
		csr |= 1 << 7
	}
	csr |= uint16(t.LinkCh&0x3F) << 8
	be.PutUint16(raw[0x1C:], csr)

	var biter uint16
	if t.ELink {
		biter = 0x8000 | (uint16(t.ELinkCh&0x3F) << 9) | (t.BIter & 0x1FF)
	} else {
		biter = t.BIter & 0x7FFF
	}
	be.PutUint16(raw[0x1E:], biter)
}

// effectiveNBytes returns the number of bytes one minor loop transfers,
// resolving the EMLM=0/NBYTES=0 "2^32 bytes" edge case to the largest size
// this emulator can realistically buffer in one step.
func (t TCD) effectiveNBytes() uint32 {
	if t.NBytes == 0 && !t.SMLOE && !t.DMLOE {
		return 1 << 31
	}
	return t.NBytes
}
