// Package eqadc models the eQADC command/result FIFO front end: six command
// FIFOs feeding two indirectly-addressed ADC blocks, six result FIFOs, a
// linear conversion against a named analog channel bank, and ADC-to-DMA
// request routing.
package eqadc

import (
	"log/slog"
	"sync"

	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/eventmap"
	"github.com/cm2350/emufab/pkg/ioadapter"
	"github.com/cm2350/emufab/pkg/mmio"
)

const numChannels = 256

// Reserved analog channel bank entries.
const (
	chanVRH       = 40
	chanVRL       = 41
	chanMidScale  = 42 // 2.5 V
	chan75Percent = 43 // 3.75 V
	chan25Percent = 44 // 1.25 V
)

const numADCConfigs = 16 // offset 0 (standard) plus 8..15 (alternate 0-7); 1-7 unused

// adcConfig is this model's stand-in for the 128-byte indirect ADC register
// space's result-formatting bits; exact offsets within that space are not
// specified, so configuration is addressed directly by CFG_OFFSET instead.
type adcConfig struct {
	resultEnable bool
	maxCode      uint16
	signExtend   bool
}

// adc is one of the two ADC blocks an eQADC front end drives.
type adc struct {
	configs  [numADCConfigs]adcConfig
	channels [numChannels]float64
}

func newADC() *adc {
	a := &adc{}
	for i := range a.configs {
		a.configs[i] = adcConfig{resultEnable: true, maxCode: 0xFFF}
	}
	a.channels[chanVRH] = 5.0
	a.channels[chanVRL] = 0.0
	a.channels[chanMidScale] = 2.5
	a.channels[chan75Percent] = 3.75
	a.channels[chan25Percent] = 1.25
	return a
}

func configIndex(offset uint8) int {
	if offset == 0 {
		return 0
	}
	return int(offset - 7) // 8..15 -> 1..8
}

// EQADC is one command/result FIFO front end (spec names two instances,
// eQADC_A / eQADC_B, each driving its own ADC0/ADC1 pair).
type EQADC struct {
	*mmio.Peripheral

	mu sync.Mutex

	adcs [2]*adc

	cmdQueue [numCFIFO][]uint32
	resQueue [numCFIFO][]uint32

	adapter *ioadapter.Adapter
	cpuBus  cpu.Bus
}

func New(name string, addr uint64, adapter *ioadapter.Adapter, logger *slog.Logger) *EQADC {
	regs := newRegisterSet()
	e := &EQADC{
		Peripheral: mmio.NewPeripheral(name, addr, regs, logger),
		adcs:       [2]*adc{newADC(), newADC()},
		adapter:    adapter,
	}
	if adapter != nil {
		go e.driveInbound()
	}
	return e
}

func (e *EQADC) Init(bus cpu.Bus) {
	e.mu.Lock()
	e.cpuBus = bus
	e.mu.Unlock()
	e.Peripheral.Init(bus)
}

func (e *EQADC) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Peripheral.Reset()
	for i := 0; i < numCFIFO; i++ {
		e.cmdQueue[i] = nil
		e.resQueue[i] = nil
	}
}

// driveInbound applies externally-delivered (channel, voltage) samples to
// both ADC blocks' channel banks.
func (e *EQADC) driveInbound() {
	for payload := range e.adapter.Inbound() {
		ch, voltage, ok := decodeSample(payload)
		if !ok {
			continue
		}
		e.mu.Lock()
		for _, a := range e.adcs {
			a.channels[ch] = voltage
		}
		e.mu.Unlock()
	}
}

// Read intercepts the RFPR pop ports (reading dequeues); everything else
// goes through the embedded register set.
func (e *EQADC) Read(va uint64, size int) ([]byte, error) {
	offset := uint32(va - e.Addr)
	if offset >= rfprBase && offset < rfprBase+numCFIFO*4 && size == 4 {
		idx := int(offset-rfprBase) / 4
		e.mu.Lock()
		defer e.mu.Unlock()
		var v uint32
		if len(e.resQueue[idx]) > 0 {
			v = e.resQueue[idx][0]
			e.resQueue[idx] = e.resQueue[idx][1:]
			if len(e.resQueue[idx]) == 0 {
				e.Regs.At("rfsr", idx).PutField("rfdf", 0)
			}
		}
		return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}, nil
	}
	return e.Peripheral.Read(va, size)
}

// Write intercepts the CFPR push ports; everything else goes through the
// embedded register set.
func (e *EQADC) Write(va uint64, data []byte) error {
	offset := uint32(va - e.Addr)
	if offset >= cfprBase && offset < cfprBase+numCFIFO*4 && len(data) == 4 {
		idx := int(offset-cfprBase) / 4
		word := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
		e.mu.Lock()
		e.pushCommandLocked(idx, word)
		e.mu.Unlock()
		return nil
	}
	return e.Peripheral.Write(va, data)
}

func (e *EQADC) pushCommandLocked(idx int, word uint32) {
	cfsr := e.Regs.At("cfsr", idx)
	if len(e.cmdQueue[idx]) >= cfifoDepth(idx) {
		cfsr.PutField("cfuf", 1)
		e.raiseShared("fifo_fault")
		return
	}
	e.cmdQueue[idx] = append(e.cmdQueue[idx], word)
	if len(e.cmdQueue[idx]) >= cfifoDepth(idx) {
		cfsr.PutField("cfff", 0)
	}
	mode := e.Regs.At("cfcr", idx).GetField("mode")
	if mode == modeSingleSWTrigger || mode == modeContinuousSWTrigger {
		e.drainLocked(idx)
	}
}

// drainLocked executes queued commands on CFIFO idx in order until EOQ is
// observed or the queue empties.
func (e *EQADC) drainLocked(idx int) {
	cftcr := e.Regs.At("cftcr", idx)
	for len(e.cmdQueue[idx]) > 0 {
		word := e.cmdQueue[idx][0]
		e.cmdQueue[idx] = e.cmdQueue[idx][1:]
		cftcr.PutField("count", cftcr.GetField("count")+1)

		cmd := decodeCommand(word)
		e.executeLocked(idx, cmd)

		if cmd.EOQ {
			e.Regs.At("cfsr", idx).PutField("eoqf", 1)
			e.raisePerCFIFO(idx, "eoqf")
			cfcr := e.Regs.At("cfcr", idx)
			if cfcr.GetField("mode") == modeSingleSWTrigger {
				cftcr.PutField("count", 0)
				cfcr.PutField("mode", modeDisabled)
			}
			break
		}
	}
	e.Regs.At("cfsr", idx).PutField("cfff", 1)
	e.raisePerCFIFO(idx, "cfff")
}

func (e *EQADC) executeLocked(cfifoIdx int, cmd Command) {
	a := e.adcs[0]
	if cmd.ADC1 {
		a = e.adcs[1]
	}
	switch cmd.Shape {
	case shapeConvert:
		e.convertLocked(cfifoIdx, a, cmd)
	case shapeWrite:
		e.writeADCLocked(a, cmd)
	case shapeRead:
		e.readADCLocked(cfifoIdx, a, cmd)
	}
}

// convertLocked implements the linear conversion formula:
// result = floor(((sample-VRL)/(VRH-VRL)) * max_code), saturating at the
// rails, pushed to the Result FIFO named by TAG.
func (e *EQADC) convertLocked(cfifoIdx int, a *adc, cmd Command) {
	cfg := a.configs[configIndex(cmd.Offset)]
	if !cfg.resultEnable {
		return
	}
	sample := a.channels[cmd.Chan]
	vrl, vrh := a.channels[chanVRL], a.channels[chanVRH]
	span := vrh - vrl
	var frac float64
	if span > 0 {
		frac = (sample - vrl) / span
	}
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	result := uint32(frac * float64(cfg.maxCode))
	if result > uint32(cfg.maxCode) {
		result = uint32(cfg.maxCode)
	}

	if cmd.Tag == nullTag || int(cmd.Tag) >= numCFIFO {
		return
	}
	e.pushResultLocked(int(cmd.Tag), result)
}

func (e *EQADC) writeADCLocked(a *adc, cmd Command) {
	idx := configIndex(cmd.Offset)
	if idx < 0 || idx >= numADCConfigs {
		return
	}
	a.configs[idx] = adcConfig{
		resultEnable: cmd.Value&1 != 0,
		maxCode:      maxCodeFor((cmd.Value >> 1) & 0x3),
		signExtend:   cmd.Value&(1<<3) != 0,
	}
}

func maxCodeFor(sel uint16) uint16 {
	switch sel {
	case 1:
		return 0x3FF
	case 2:
		return 0x7FF
	default:
		return 0xFFF
	}
}

func (e *EQADC) readADCLocked(cfifoIdx int, a *adc, cmd Command) {
	idx := configIndex(cmd.Offset)
	if idx < 0 || idx >= numADCConfigs {
		return
	}
	cfg := a.configs[idx]
	var v uint16
	if cfg.resultEnable {
		v |= 1
	}
	tag := cmd.ReadTag
	if tag == nullTag || int(tag) >= numCFIFO {
		return
	}
	e.pushResultLocked(int(tag), uint32(v))
}

func (e *EQADC) pushResultLocked(tag int, value uint32) {
	if len(e.resQueue[tag]) >= resultFIFODepth {
		e.Regs.At("rfsr", tag).PutField("rfof", 1)
		e.raiseShared("fifo_fault")
		return
	}
	e.resQueue[tag] = append(e.resQueue[tag], value)
	e.Regs.At("rfsr", tag).PutField("rfdf", 1)
	e.raisePerCFIFO(tag, "rfdf")
}

func (e *EQADC) raisePerCFIFO(idx int, event string) {
	if e.IntSink == nil {
		return
	}
	entry := eventmap.MustLookup(e.Name, event, idx)
	if entry.HasDMA && e.DMASink != nil {
		e.DMASink.RequestDMA(entry.DMA)
		return
	}
	if entry.HasInterrupt {
		e.IntSink.RaiseInterrupt(entry.Interrupt)
	}
}

func (e *EQADC) raiseShared(event string) {
	if e.IntSink == nil {
		return
	}
	entry := eventmap.MustLookup(e.Name, event, -1)
	if entry.HasInterrupt {
		e.IntSink.RaiseInterrupt(entry.Interrupt)
	}
}
