// Package eventmap is the static, exhaustive table mapping a peripheral
// event to an interrupt source and/or a DMA request. Peripheral code never
// hard-codes interrupt source numbers; it asks this package.
//
// The table's shape is software interrupts first, then one contiguous
// block of sources per peripheral instance, in SoC wiring order.
package eventmap

import "fmt"

// InterruptSource is a 9-bit SoC peripheral interrupt vector number,
// disjoint from CPU-fault vectors.
type InterruptSource uint32

// DMARequest identifies one of the eDMA engine's hardware request lines.
type DMARequest uint32

// Key identifies one peripheral event. Channel is -1 for non-indexed
// events (e.g. a peripheral's single error source).
type Key struct {
	Peripheral string
	Event      string
	Channel    int
}

// Entry is the resolved mapping for a Key; either field may be the zero
// value's absence, tracked via the Has* booleans.
type Entry struct {
	Interrupt    InterruptSource
	HasInterrupt bool
	DMA          DMARequest
	HasDMA       bool
}

var table = make(map[Key]Entry)

func reg(peripheral, event string, channel int, src InterruptSource, hasSrc bool, dma DMARequest, hasDMA bool) {
	table[Key{peripheral, event, channel}] = Entry{Interrupt: src, HasInterrupt: hasSrc, DMA: dma, HasDMA: hasDMA}
}

func regInt(peripheral, event string, channel int, src InterruptSource) {
	reg(peripheral, event, channel, src, true, 0, false)
}

func regIntDMA(peripheral, event string, channel int, src InterruptSource, dma DMARequest) {
	reg(peripheral, event, channel, src, true, dma, true)
}

// next is a running allocator for interrupt source numbers, assigned in
// contiguous blocks per peripheral.
var next InterruptSource

func alloc() InterruptSource {
	s := next
	next++
	return s
}

func init() {
	// INTC's eight software-triggered sources come first.
	for i := 0; i < 8; i++ {
		regInt("INTC", "software_irq", i, alloc())
	}

	// SWT: single interrupt source (timeout, when ITR=1).
	regInt("SWT", "interrupt", -1, alloc())

	// eDMA: one controller pair (A, B), each with an error source and one
	// source per channel, 1:1 with its own DMA request line.
	for _, group := range []string{"eDMA_A", "eDMA_B"} {
		regInt(group, "error", -1, alloc())
		for ch := 0; ch < 64; ch++ {
			regInt(group, "complete", ch, alloc())
		}
	}

	// FlexCAN: two controllers, each with bus-off/error/wakeup sources and
	// one source per mailbox (message buffer interrupt). The RxFIFO's
	// message-available, warning and overflow events use the mailbox 5, 6
	// and 7 sources; they have no sources of their own.
	for _, ctrl := range []string{"FlexCAN_A", "FlexCAN_B"} {
		regInt(ctrl, "bus_off", -1, alloc())
		regInt(ctrl, "error", -1, alloc())
		regInt(ctrl, "wakeup", -1, alloc())
		for mb := 0; mb < 64; mb++ {
			regInt(ctrl, "mailbox", mb, alloc())
		}
	}

	// eQADC: two ADC front ends, each with a shared fault source
	// (TORF/RFOF/CFUF) and, per CFIFO, CFFF/RFDF/EOQF sources. RFDF also
	// maps to an eDMA request line, used whenever the eQADC has a DMA sink
	// attached (there is no per-CFIFO DMA-enable bit); those request
	// numbers are allocated per CFIFO and are independent of the eDMA
	// interrupt sources above.
	var dmaNext DMARequest
	for _, adc := range []string{"eQADC_A", "eQADC_B"} {
		regInt(adc, "fifo_fault", -1, alloc())
		for cf := 0; cf < 6; cf++ {
			regInt(adc, "cfff", cf, alloc())
			regInt(adc, "eoqf", cf, alloc())
			regIntDMA(adc, "rfdf", cf, alloc(), dmaNext)
			dmaNext++
		}
	}
}

// Lookup resolves a Key against the table. ok is false for a genuinely
// undeclared event - a configuration error, detectable at startup.
func Lookup(peripheral, event string, channel int) (Entry, bool) {
	e, ok := table[Key{peripheral, event, channel}]
	return e, ok
}

// MustLookup panics on a missing entry. Peripherals call it when they raise
// an event, so a missing mapping fails loudly at its first use; nothing
// checks the table at construction time.
func MustLookup(peripheral, event string, channel int) Entry {
	e, ok := Lookup(peripheral, event, channel)
	if !ok {
		panic(fmt.Sprintf("eventmap: no entry for %s/%s[%d]", peripheral, event, channel))
	}
	return e
}
