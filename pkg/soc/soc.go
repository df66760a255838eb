// Package soc wires the individual peripheral packages into one address
// space: it builds the module table, dispatches bus accesses to the owning
// peripheral, and sequences reset (construct once, reset many times).
package soc

import (
	"fmt"
	"log/slog"

	"github.com/cm2350/emufab/internal/config"
	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/ecsm"
	"github.com/cm2350/emufab/pkg/edma"
	"github.com/cm2350/emufab/pkg/eqadc"
	"github.com/cm2350/emufab/pkg/flexcan"
	"github.com/cm2350/emufab/pkg/intc"
	"github.com/cm2350/emufab/pkg/ioadapter"
	"github.com/cm2350/emufab/pkg/swt"
)

// Default MPC5674-class peripheral base addresses. The SIU/FMPLL/eMIOS
// modules are not implemented here; only their strap/clock inputs feed
// this package.
const (
	addrINTC    = 0xFFF48000
	addrSWT     = 0xFFF38000
	addrEDMA_A  = 0xFFF44000
	addrEDMA_B  = 0xFFF54000
	addrFlexCANBase = 0xFFFC0000
	flexCANStride   = 0x4000
	addrEQADCBase   = 0xFFF80000
	eqadcStride     = 0x4000
)

// module is one entry of the dispatch table: an address range backed by a
// peripheral's Read/Write.
type module struct {
	name string
	lo   uint64
	hi   uint64
	rw   interface {
		Read(va uint64, size int) ([]byte, error)
		Write(va uint64, data []byte) error
	}
	resettable interface{ Reset() }
}

// SoC is the fully wired machine: every peripheral instance plus the
// dispatch table built from their mapped ranges.
type SoC struct {
	INTC *intc.INTC
	SWT  *swt.SWT
	EDMA [2]*edma.EDMA
	FlexCAN map[string]*flexcan.FlexCAN
	EQADC   map[string]*eqadc.EQADC

	ecsm       *ecsm.ECSM
	lastReason ecsm.Reason

	modules []module
}

// New constructs every peripheral from cfg, wires their IntSink/DMASink
// collaborators to INTC/eDMA_A, and returns the fully assembled SoC. No
// peripheral is reset yet; call Reset once a cpu.Bus is available via Init.
func New(cfg *config.Config, logger *slog.Logger) (*SoC, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &SoC{
		ecsm:    ecsm.New(),
		FlexCAN: make(map[string]*flexcan.FlexCAN),
		EQADC:   make(map[string]*eqadc.EQADC),
	}

	s.INTC = intc.New(addrINTC, logger)
	s.SWT = swt.New(addrSWT, s.ecsm, cfg.ExtalHz, cfg.BusHz, logger)
	s.SWT.IntSink = s.INTC

	s.EDMA[0] = edma.New("eDMA_A", addrEDMA_A, 64, logger)
	s.EDMA[1] = edma.New("eDMA_B", addrEDMA_B, 32, logger)
	for _, e := range s.EDMA {
		e.IntSink = s.INTC
	}

	i := 0
	for name, fc := range cfg.FlexCAN {
		adapter, err := ioadapter.New("FlexCAN_"+name, fmt.Sprintf("%s:%d", fc.Host, fc.Port), fc.AnalysisOnly, logger)
		if err != nil {
			return nil, fmt.Errorf("soc: flexcan %q: %w", name, err)
		}
		addr := uint64(addrFlexCANBase + i*flexCANStride)
		controller := flexcan.New("FlexCAN_"+name, addr, cfg.ExtalHz, cfg.BusHz, adapter, logger)
		controller.IntSink = s.INTC
		controller.DMASink = s.EDMA[0]
		s.FlexCAN[name] = controller
		i++
	}

	i = 0
	for name, eq := range cfg.EQADC {
		adapter, err := ioadapter.New("eQADC_"+name, fmt.Sprintf("%s:%d", eq.Host, eq.Port), eq.AnalysisOnly, logger)
		if err != nil {
			return nil, fmt.Errorf("soc: eqadc %q: %w", name, err)
		}
		addr := uint64(addrEQADCBase + i*eqadcStride)
		front := eqadc.New("eQADC_"+name, addr, adapter, logger)
		front.IntSink = s.INTC
		front.DMASink = s.EDMA[0]
		s.EQADC[name] = front
		i++
	}

	s.buildModules()
	return s, nil
}

func (s *SoC) buildModules() {
	s.modules = s.modules[:0]
	add := func(name string, addr uint64, size uint64, rw interface {
		Read(va uint64, size int) ([]byte, error)
		Write(va uint64, data []byte) error
	}, resettable interface{ Reset() }) {
		s.modules = append(s.modules, module{name: name, lo: addr, hi: addr + size, rw: rw, resettable: resettable})
	}

	add("INTC", addrINTC, uint64(s.INTC.Regs.Size), s.INTC, s.INTC)
	add("SWT", addrSWT, uint64(s.SWT.Regs.Size), s.SWT, s.SWT)
	add("eDMA_A", addrEDMA_A, uint64(s.EDMA[0].Regs.Size), s.EDMA[0], s.EDMA[0])
	add("eDMA_B", addrEDMA_B, uint64(s.EDMA[1].Regs.Size), s.EDMA[1], s.EDMA[1])

	for name, fc := range s.FlexCAN {
		add("FlexCAN_"+name, fc.Addr, uint64(fc.Regs.Size), fc, fc)
	}
	for name, eq := range s.EQADC {
		add("eQADC_"+name, eq.Addr, uint64(eq.Regs.Size), eq, eq)
	}
}

// Init binds the CPU collaborator to every peripheral, required before
// Read/Write can translate a bus fault into a CPU exception.
func (s *SoC) Init(bus cpu.Bus) {
	s.INTC.Init(bus)
	s.SWT.Init(bus)
	s.EDMA[0].Init(bus)
	s.EDMA[1].Init(bus)
	for _, fc := range s.FlexCAN {
		fc.Init(bus)
	}
	for _, eq := range s.EQADC {
		eq.Init(bus)
	}
}

// Reset restores every peripheral's registers to power-on state and clears
// the ECSM reset-reason latch. The latched reason survives across the reset
// that reports it (LastResetReason returns it until the next Reset).
func (s *SoC) Reset() {
	for _, m := range s.modules {
		m.resettable.Reset()
	}
	s.lastReason = s.ecsm.GetReason()
	s.ecsm.Clear()
}

// LastResetReason reports why the SoC's previous reset was asserted
// (ecsm.ReasonNone if the previous reset was not watchdog-triggered).
func (s *SoC) LastResetReason() ecsm.Reason {
	return s.lastReason
}

// Read dispatches a bus read to the peripheral mapping va, or reports an
// unmapped address.
func (s *SoC) Read(va uint64, size int) ([]byte, error) {
	m, err := s.lookup(va)
	if err != nil {
		return nil, err
	}
	return m.rw.Read(va, size)
}

// Write dispatches a bus write to the peripheral mapping va, or reports an
// unmapped address.
func (s *SoC) Write(va uint64, data []byte) error {
	m, err := s.lookup(va)
	if err != nil {
		return err
	}
	return m.rw.Write(va, data)
}

func (s *SoC) lookup(va uint64) (module, error) {
	for _, m := range s.modules {
		if va >= m.lo && va < m.hi {
			return m, nil
		}
	}
	return module{}, fmt.Errorf("soc: unmapped address %#x", va)
}
