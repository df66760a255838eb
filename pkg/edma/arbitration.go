package edma

// groupOf returns ch's fixed group index (group assignment is static:
// sixteen channels per group - type A has four groups, type B has two).
func (e *EDMA) groupOf(ch int) int {
	return ch / channelsPerGroup
}

func (e *EDMA) groupPrio(g int) uint64 {
	// The group's priority is the minimum DCHPRI.chpri among its sixteen
	// channels' registers is not how real hardware encodes it, but group
	// priority in this model is carried directly on a per-group basis via
	// channel 0 of the group's own DCHPRI entry, matching how GPRI is
	// banked per group on the real eDMA_A/eDMA_B controllers.
	return e.Regs.At("dchpri", g*channelsPerGroup).GetField("chpri")
}

// groupOrder returns the numGroups group indices in the order arbitration
// should examine them this round.
func (e *EDMA) groupOrder() []int {
	order := make([]int, e.numGroups)
	if e.Regs.Scalar("mcr").GetField("erga") != 0 {
		for i := range order {
			order[i] = (e.rrGroup + i) % e.numGroups
		}
		return order
	}
	for i := range order {
		order[i] = i
	}
	// Fixed priority: sort descending by groupPrio, stable on index so
	// duplicate priorities still produce a deterministic order. Duplicate
	// group priorities are not flagged in ESR.GPE by this model.
	for i := 1; i < len(order); i++ {
		for j := i; j > 0 && e.groupPrio(order[j]) > e.groupPrio(order[j-1]); j-- {
			order[j], order[j-1] = order[j-1], order[j]
		}
	}
	return order
}

// selectInGroup picks the highest-priority pending channel within group g,
// honoring fixed or round-robin channel arbitration.
func (e *EDMA) selectInGroup(g int) (int, bool) {
	base := g * channelsPerGroup
	if e.Regs.Scalar("mcr").GetField("erca") != 0 {
		start := e.rrChannel[g]
		for i := 0; i < channelsPerGroup; i++ {
			ch := base + (start+i)%channelsPerGroup
			if e.pendingLocked(ch) {
				e.rrChannel[g] = (ch - base + 1) % channelsPerGroup
				return ch, true
			}
		}
		return 0, false
	}

	best := -1
	var bestPrio uint64
	for i := 0; i < channelsPerGroup; i++ {
		ch := base + i
		if !e.pendingLocked(ch) {
			continue
		}
		prio := e.Regs.At("dchpri", ch).GetField("chpri")
		if best == -1 || prio > bestPrio {
			best, bestPrio = ch, prio
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// selectChannel resolves the next channel to service across all groups.
func (e *EDMA) selectChannel() (int, bool) {
	for _, g := range e.groupOrder() {
		if ch, ok := e.selectInGroup(g); ok {
			if e.Regs.Scalar("mcr").GetField("erga") != 0 {
				e.rrGroup = (g + 1) % e.numGroups
			}
			return ch, true
		}
	}
	return 0, false
}
