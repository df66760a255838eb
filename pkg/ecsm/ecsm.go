// Package ecsm is a minimal shim for the error/configuration status
// module's reset-reason latch. A full ECSM register file (pad control,
// ECC-scrub registers) is out of scope; only the sticky "why did we
// reset" flag that SWT's second timeout sets is modeled.
package ecsm

import "sync"

// Reason names why the last SoC reset was asserted.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonSWT
)

// ECSM holds the sticky reset-reason flag.
type ECSM struct {
	mu     sync.Mutex
	reason Reason
}

// New returns an ECSM with no latched reset reason.
func New() *ECSM {
	return &ECSM{}
}

// SWTReset latches that the watchdog caused the last reset.
func (e *ECSM) SWTReset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reason = ReasonSWT
}

// GetReason returns and does not clear the latched reset reason; it survives
// until a SoC-level reset clears it via Clear.
func (e *ECSM) GetReason() Reason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reason
}

// Clear resets the latch, called during SoC reset sequencing.
func (e *ECSM) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reason = ReasonNone
}
