// Command cm2350 wires a config file into a running SoC: load the
// peripheral configuration, construct every module, reset, and block
// servicing external I/O until interrupted.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cm2350/emufab/internal/config"
	"github.com/cm2350/emufab/pkg/cpu"
	"github.com/cm2350/emufab/pkg/soc"
)

func main() {
	configPath := flag.String("config", "cm2350.ini", "path to the peripheral configuration file")
	ramSize := flag.Int("ram", 1<<20, "size in bytes of the fake RAM backing the bus stub")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(*configPath, *ramSize, logger); err != nil {
		logger.Error("cm2350 exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, ramSize int, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	machine, err := soc.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("constructing SoC: %w", err)
	}

	// The core instruction-execution loop is out of scope; a fake bus
	// stub is enough to let peripherals service
	// MMIO and raise bus faults against something.
	bus := cpu.NewFake(0x40000000, ramSize)
	machine.Init(bus)
	machine.Reset()

	logger.Info("cm2350 ready", "flexcan_instances", len(machine.FlexCAN), "eqadc_instances", len(machine.EQADC))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("cm2350 shutting down")
	return nil
}
