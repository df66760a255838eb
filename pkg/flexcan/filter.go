package flexcan

// rxFilterEntry is one entry of the mailbox filter cache, recomputed
// whenever a mailbox's CODE byte changes. The caches track which mailboxes
// are currently eligible receivers, not the mailbox storage itself, so
// reception doesn't have to rescan CODE bytes on every frame.
type rxFilterEntry struct {
	index int
	id    uint32
	ide   bool
}

// recomputeFilterCaches rebuilds the Rx-eligible and Tx-RTR-armed mailbox
// caches from current mailbox storage. Called after any write that could
// have changed a CODE byte (mirrors eDMA's TCD-region write interception:
// detect the mutation, then re-derive dependent state).
func (f *FlexCAN) recomputeFilterCachesLocked() {
	f.rxCache = f.rxCache[:0]
	f.rtrCache = f.rtrCache[:0]

	start := 0
	if f.fen() {
		start = fifoMailboxes // mailboxes 0-7 belong to the FIFO, not individual reception
	}
	for i := start; i < numMailboxes; i++ {
		m := f.mailbox(i)
		switch m.Code {
		case codeRxEmpty, codeRxFull, codeRxOverrun:
			f.rxCache = append(f.rxCache, rxFilterEntry{index: i, id: m.ID, ide: m.IDE})
		case codeTxTRTR:
			f.rtrCache = append(f.rtrCache, rxFilterEntry{index: i, id: m.ID, ide: m.IDE})
		}
	}
}

// fifoFilter is one decoded RxFIFO acceptance filter.
type fifoFilter struct {
	id   uint32
	ide  bool
	bits int // number of significant ID bits compared (29, 11 or 8)
}

// recomputeFIFOFiltersLocked decodes the eight-word filter table stored in
// mailboxes 6 and 7's raw bytes, per the IDAM-selected format: format A is
// one 32-bit filter per word (8 filters), format B is two
// 16-bit filters per word (16 filters, standard IDs only), format C is four
// 8-bit filters per word (32 filters, top byte of a standard ID only), and
// format D accepts every frame regardless of ID.
func (f *FlexCAN) recomputeFIFOFiltersLocked() {
	f.fifoFilters = f.fifoFilters[:0]
	idam := f.Regs.Scalar("mcr").GetField("idam")
	if idam == 3 {
		return // format D: promiscuous, no per-filter table needed
	}

	raw := make([]byte, 0, 32)
	raw = append(raw, f.mailboxRaw(6)...)
	raw = append(raw, f.mailboxRaw(7)...)

	switch idam {
	case 0: // format A: one 32-bit filter per word
		for w := 0; w < 8; w++ {
			word := be32(raw[w*4 : w*4+4])
			ide := word&(1<<2) != 0
			id := word >> 3
			if ide {
				f.fifoFilters = append(f.fifoFilters, fifoFilter{id: id & ExtendedMask, ide: true, bits: 29})
			} else {
				f.fifoFilters = append(f.fifoFilters, fifoFilter{id: (id >> 18) & StandardMask, ide: false, bits: 11})
			}
		}
	case 1: // format B: two 16-bit filters per word, standard IDs only
		for w := 0; w < 8; w++ {
			word := be32(raw[w*4 : w*4+4])
			hi := uint16(word >> 16)
			lo := uint16(word)
			f.fifoFilters = append(f.fifoFilters,
				fifoFilter{id: uint32(hi>>5) & StandardMask, ide: false, bits: 11},
				fifoFilter{id: uint32(lo>>5) & StandardMask, ide: false, bits: 11},
			)
		}
	case 2: // format C: four 8-bit filters per word, top byte of a standard ID
		for w := 0; w < 8; w++ {
			word := be32(raw[w*4 : w*4+4])
			for shift := 24; shift >= 0; shift -= 8 {
				f.fifoFilters = append(f.fifoFilters, fifoFilter{id: (word >> uint(shift)) & 0xFF, ide: false, bits: 8})
			}
		}
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func (ff fifoFilter) matches(frame CanFrame) bool {
	if ff.ide != frame.IDE {
		return false
	}
	switch ff.bits {
	case 11:
		return ff.id == (frame.ID>>18)&StandardMask
	case 8:
		return ff.id == (frame.ID>>21)&0xFF
	case 29:
		return ff.id == frame.ID&ExtendedMask
	default:
		return true
	}
}

// matchFIFOLocked reports whether frame is accepted by the RxFIFO filter
// table (format D always matches).
func (f *FlexCAN) matchFIFOLocked(frame CanFrame) bool {
	if f.Regs.Scalar("mcr").GetField("idam") == 3 {
		return true
	}
	for _, ff := range f.fifoFilters {
		if ff.matches(frame) {
			return true
		}
	}
	return false
}

// matchMaskLocked reports whether frame's ID passes the mailbox's
// configured mask: the individual RXIMR when MBFEN=1, else the legacy
// RXGMASK/RX14MASK/RX15MASK set (mailboxes 14 and 15 get their own legacy
// mask, every other mailbox shares RXGMASK). A mask bit of 1 means "this ID
// bit must match"; 0 means "don't care".
func (f *FlexCAN) matchMaskLocked(index int, entry rxFilterEntry, frame CanFrame) bool {
	if entry.ide != frame.IDE {
		return false
	}
	var mask uint32
	if f.Regs.Scalar("mcr").GetField("mbfen") != 0 {
		mask = uint32(f.Regs.At("rximr", index).GetField("mask"))
	} else {
		switch index {
		case 14:
			mask = uint32(f.Regs.Scalar("rx14mask").GetField("mask"))
		case 15:
			mask = uint32(f.Regs.Scalar("rx15mask").GetField("mask"))
		default:
			mask = uint32(f.Regs.Scalar("rxgmask").GetField("mask"))
		}
	}
	return (entry.id & mask) == (frame.ID & mask)
}

// receiveLocked implements the five-step reception algorithm: FIFO
// acceptance, then the Tx-RTR auto-answer cache, then the Rx filter
// cache in ascending mailbox order, then overrun handling for an
// already-occupied match, and finally silent discard.
func (f *FlexCAN) receiveLocked(frame CanFrame) {
	if f.fen() && f.matchFIFOLocked(frame) {
		f.enqueueFIFOLocked(frame)
		return
	}

	if frame.RTR {
		for _, e := range f.rtrCache {
			if e.ide == frame.IDE && e.id == frame.ID {
				f.answerRTRLocked(e.index)
				return
			}
		}
	}

	occupied := -1
	for _, e := range f.rxCache {
		if !f.matchMaskLocked(e.index, e, frame) {
			continue
		}
		m := f.mailbox(e.index)
		if m.Code == codeRxEmpty {
			m.Code = codeRxFull
			m.IDE = frame.IDE
			m.RTR = frame.RTR
			m.Length = frame.Length
			m.Data = frame.Data
			m.ID = frame.ID
			m.Timestamp = uint16(f.bitClock.Value())
			f.putMailbox(e.index, m)
			f.recomputeFilterCachesLocked()
			f.raiseMailbox(e.index)
			return
		}
		if occupied < 0 {
			occupied = e.index
		}
	}
	if occupied < 0 {
		return // no mailbox claims this ID: discard.
	}
	// every match is already occupied: overrun the first, newest frame wins.
	m := f.mailbox(occupied)
	m.Code = codeRxOverrun
	m.IDE = frame.IDE
	m.RTR = frame.RTR
	m.Length = frame.Length
	m.Data = frame.Data
	m.ID = frame.ID
	m.Timestamp = uint16(f.bitClock.Value())
	f.putMailbox(occupied, m)
	f.recomputeFilterCachesLocked()
	f.raiseMailbox(occupied)
}

func (f *FlexCAN) answerRTRLocked(index int) {
	m := f.mailbox(index)
	m.Code = codeTxActive
	f.putMailbox(index, m)
	f.recomputeFilterCachesLocked()
	f.transmitLocked(index)
}

// enqueueFIFOLocked appends frame to the six-deep RxFIFO queue. A sixth
// queued frame raises the FIFO-warning source (resolving Open Question #1
// in favor of warning at the 6th, not the 5th); a seventh is dropped and
// raises the overflow source instead.
func (f *FlexCAN) enqueueFIFOLocked(frame CanFrame) {
	if len(f.fifoQueue) >= 6 {
		f.raiseFIFOOverflow()
		return
	}
	wasEmpty := len(f.fifoQueue) == 0
	f.fifoQueue = append(f.fifoQueue, frame)
	if len(f.fifoQueue) == 6 {
		f.raiseFIFOWarning()
	}
	if wasEmpty {
		f.loadFIFOHeadLocked()
		f.raiseMailbox(5) // MB5: FIFO message-available
	}
}

// loadFIFOHeadLocked copies the queue's current head into mailbox 0's raw
// storage, the address software actually reads RxFIFO data from.
func (f *FlexCAN) loadFIFOHeadLocked() {
	if len(f.fifoQueue) == 0 {
		return
	}
	head := f.fifoQueue[0]
	m := Mailbox{Code: codeRxFull, IDE: head.IDE, RTR: head.RTR, Length: head.Length, ID: head.ID, Data: head.Data, Timestamp: uint16(f.bitClock.Value())}
	f.putMailbox(0, m)
}

// dequeueFIFOLocked pops the current head, called when software clears the
// MB5 message-available flag to acknowledge it has read mailbox 0.
func (f *FlexCAN) dequeueFIFOLocked() {
	if len(f.fifoQueue) == 0 {
		return
	}
	f.fifoQueue = f.fifoQueue[1:]
	if len(f.fifoQueue) > 0 {
		f.loadFIFOHeadLocked()
		f.raiseMailbox(5)
	}
}
