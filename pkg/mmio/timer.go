package mmio

import (
	"sync"
	"time"
)

// ScaledTimer paces a single-shot or periodic callback against a declared
// tick frequency rather than the wall clock directly, so SWT's countdown
// does not hand-roll its own tick math. FlexCAN's bit clock uses
// FreeRunningCounter instead.
type ScaledTimer struct {
	mu       sync.Mutex
	freqHz   float64
	timer    *time.Timer
	callback func()
}

// NewScaledTimer builds a timer ticking at freqHz, invoking callback (on
// an auxiliary goroutine) when a started countdown reaches zero.
func NewScaledTimer(freqHz float64, callback func()) *ScaledTimer {
	return &ScaledTimer{freqHz: freqHz, callback: callback}
}

func (t *ScaledTimer) durationFor(ticks uint64) time.Duration {
	if t.freqHz <= 0 {
		return 0
	}
	seconds := float64(ticks) / t.freqHz
	return time.Duration(seconds * float64(time.Second))
}

// Start (re)arms the timer to fire after ticks ticks, canceling any
// in-flight countdown first.
func (t *ScaledTimer) Start(ticks uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.timer = time.AfterFunc(t.durationFor(ticks), t.callback)
}

// Stop cancels any pending countdown.
func (t *ScaledTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// SetFrequency updates the tick rate used by future Start calls.
func (t *ScaledTimer) SetFrequency(freqHz float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.freqHz = freqHz
}

// FreeRunningCounter models a counter that advances continuously at a
// declared tick frequency (FlexCAN's bit-clock timer), read on demand
// rather than via callback.
type FreeRunningCounter struct {
	mu      sync.Mutex
	freqHz  float64
	epoch   time.Time
	offset  uint64
	running bool
}

// NewFreeRunningCounter builds a stopped counter ticking at freqHz.
func NewFreeRunningCounter(freqHz float64) *FreeRunningCounter {
	return &FreeRunningCounter{freqHz: freqHz}
}

// Start begins (or resumes) advancing the counter from its current value.
func (c *FreeRunningCounter) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch = time.Now()
	c.running = true
}

// Stop freezes the counter at its current value.
func (c *FreeRunningCounter) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = c.valueLocked()
	c.running = false
}

// SetFrequency updates the tick rate, latching the current value first so
// elapsed time under the old rate isn't rescaled.
func (c *FreeRunningCounter) SetFrequency(freqHz float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.offset = c.valueLocked()
		c.epoch = time.Now()
	}
	c.freqHz = freqHz
}

func (c *FreeRunningCounter) valueLocked() uint64 {
	if !c.running {
		return c.offset
	}
	elapsed := time.Since(c.epoch).Seconds()
	return c.offset + uint64(elapsed*c.freqHz)
}

// Value returns the current tick count.
func (c *FreeRunningCounter) Value() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.valueLocked()
}

// SetValue overwrites the counter (FlexCAN TIMER register write sets the
// offset without stopping the clock).
func (c *FreeRunningCounter) SetValue(v uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = v
	c.epoch = time.Now()
}
