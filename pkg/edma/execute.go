package edma

import "github.com/cm2350/emufab/pkg/eventmap"

// Service performs at most one minor loop: arbitrate, validate if this is a
// fresh activation, transfer one NBYTES beat group, and update CITER/major
// loop bookkeeping. Callers (pkg/soc's run loop) call this once per
// scheduling quantum.
func (e *EDMA) Service() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.halted() || e.cpuBus == nil {
		return
	}
	ch, ok := e.selectChannel()
	if !ok {
		return
	}
	e.executeMinorLoop(ch)
}

type errKind struct {
	field string
	bit   string
}

// validateLocked checks the descriptor-validation table. On
// failure it marks ESR, sets the channel's ER bit, raises the engine's
// shared error interrupt source, and halts the engine if MCR[HOE] is set.
func (e *EDMA) validateLocked(ch int, t *TCD) bool {
	fail := func(bit string) bool {
		esr := e.Regs.Scalar("esr")
		esr.PutField("vld", 1)
		esr.PutField(bit, 1)
		esr.PutField("errchn", uint64(ch))
		e.er |= 1 << uint(ch)
		e.raiseSource("error", -1)
		if e.Regs.Scalar("mcr").GetField("hoe") != 0 {
			e.Regs.Scalar("mcr").PutField("halt", 1)
		}
		return false
	}

	ssize, ok := sizeBits(t.SSize)
	if !ok || t.SAddr%uint32(ssize/8) != 0 {
		return fail("sae")
	}
	if t.SOff%int16(ssize/8) != 0 {
		return fail("soe")
	}
	dsize, ok := sizeBits(t.DSize)
	if !ok || t.DAddr%uint32(dsize/8) != 0 {
		return fail("dae")
	}
	if t.DOff%int16(dsize/8) != 0 {
		return fail("doe")
	}
	maxSize := ssize
	if dsize > maxSize {
		maxSize = dsize
	}
	nbytes := t.effectiveNBytes()
	if t.CIter == 0 || t.CIter != t.BIter || nbytes%uint32(maxSize/8) != 0 {
		return fail("nce")
	}
	if t.ESG && uint32(t.DLastSga)%32 != 0 {
		return fail("sge")
	}
	return true
}

func (e *EDMA) executeMinorLoop(ch int) {
	emlm := e.emlm()
	t := decodeTCD(e.tcdRaw[ch], emlm)

	if !t.Active {
		if !e.validateLocked(ch, &t) {
			return
		}
		t.Start = false
		t.Done = false
		t.Active = true
	}

	nbytes := int(t.effectiveNBytes())
	src, err := e.cpuBus.ReadMemory(uint64(t.SAddr), nbytes)
	if err != nil {
		t.Active = false // ACTIVE is cleared on an aborted transfer
		encodeTCD(e.tcdRaw[ch], t)
		e.failBeat(ch, "sbe")
		return
	}
	if err := e.cpuBus.WriteMemory(uint64(t.DAddr), src); err != nil {
		t.Active = false
		encodeTCD(e.tcdRaw[ch], t)
		e.failBeat(ch, "dbe")
		return
	}

	t.CIter--
	if t.CIter > 0 {
		t.SAddr = uint32(int32(t.SAddr) + int32(t.SOff))
		t.DAddr = uint32(int32(t.DAddr) + int32(t.DOff))
		if t.IntHalf && t.CIter == t.BIter/2 {
			e.raiseSource("complete", ch)
		}
		if t.MajorELink {
			e.setTCDField(int(t.LinkCh), func(lt *TCD) { lt.Start = true })
		}
	} else {
		t.SAddr = uint32(int32(t.SAddr) + t.SLast)
		t.DAddr = uint32(int32(t.DAddr) + t.DLastSga)
		t.CIter = t.BIter
		t.Done = true
		t.Active = false
		if t.IntMaj {
			e.raiseSource("complete", ch)
		}
		if t.DReq {
			e.erq &^= 1 << uint(ch)
		}
		if t.MajorELink {
			e.setTCDField(int(t.LinkCh), func(lt *TCD) { lt.Start = true })
		}
		if t.ESG {
			if next, err := e.cpuBus.ReadMemory(uint64(uint32(t.DLastSga)), tcdBytes); err == nil {
				copy(e.tcdRaw[ch], next)
				nt := decodeTCD(e.tcdRaw[ch], emlm)
				nt.Start = true
				encodeTCD(e.tcdRaw[ch], nt)
			}
		}
	}

	encodeTCD(e.tcdRaw[ch], t)
}

func (e *EDMA) failBeat(ch int, bit string) {
	esr := e.Regs.Scalar("esr")
	esr.PutField("vld", 1)
	esr.PutField(bit, 1)
	esr.PutField("errchn", uint64(ch))
	e.er |= 1 << uint(ch)
	e.raiseSource("error", -1)
}

func (e *EDMA) raiseSource(event string, channel int) {
	entry := eventmap.MustLookup(e.Name, event, channel)
	if !entry.HasInterrupt {
		return
	}
	e.irq |= 1 << uint(maxInt(channel, 0))
	if e.IntSink != nil {
		e.IntSink.RaiseInterrupt(entry.Interrupt)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
