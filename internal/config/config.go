// Package config loads the emulator's peripheral configuration from an INI
// file, one section per peripheral instance, using gopkg.in/ini.v1 to pull
// typed keys out of each *ini.Section.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"
)

// FlexCANConfig is one FlexCAN controller's external transport binding.
type FlexCANConfig struct {
	Host         string
	Port         int
	AnalysisOnly bool
}

// EQADCConfig is one eQADC front end's external transport binding.
type EQADCConfig struct {
	Host         string
	Port         int
	AnalysisOnly bool
}

// Config is the full SoC-level configuration: clock tree inputs and one
// transport binding per externally-visible peripheral instance.
type Config struct {
	ExtalHz float64
	BusHz   float64

	// SIU strap registers, read once at reset to seed boot-mode-dependent
	// peripheral state. The SIU module itself is out of core scope, but the
	// strap values are ordinary configuration.
	SIUStraps map[string]uint32

	FlexCAN map[string]FlexCANConfig
	EQADC   map[string]EQADCConfig
}

// Load parses file (a path, []byte, or io.Reader — anything ini.Load
// accepts) into a Config. Expected sections: [fmpll] (extal_hz, bus_hz),
// [siu_straps] (arbitrary key=value uint32 pairs), and one
// [flexcan.<name>] / [eqadc.<name>] section per instance (host, port,
// analysis_only).
func Load(file any) (*Config, error) {
	f, err := ini.Load(file)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		ExtalHz:   40_000_000,
		BusHz:     80_000_000,
		SIUStraps: make(map[string]uint32),
		FlexCAN:   make(map[string]FlexCANConfig),
		EQADC:     make(map[string]EQADCConfig),
	}

	if sec, err := f.GetSection("fmpll"); err == nil {
		if sec.HasKey("extal_hz") {
			cfg.ExtalHz = sec.Key("extal_hz").MustFloat64(cfg.ExtalHz)
		}
		if sec.HasKey("bus_hz") {
			cfg.BusHz = sec.Key("bus_hz").MustFloat64(cfg.BusHz)
		}
	}

	if sec, err := f.GetSection("siu_straps"); err == nil {
		for _, key := range sec.Keys() {
			v, err := key.Uint()
			if err != nil {
				return nil, fmt.Errorf("config: siu_straps.%s: %w", key.Name(), err)
			}
			cfg.SIUStraps[key.Name()] = uint32(v)
		}
	}

	for _, section := range f.Sections() {
		name := section.Name()
		switch {
		case hasPrefix(name, "flexcan."):
			cfg.FlexCAN[name[len("flexcan."):]] = FlexCANConfig{
				Host:         section.Key("host").MustString("127.0.0.1"),
				Port:         section.Key("port").MustInt(0),
				AnalysisOnly: section.Key("analysis_only").MustBool(false),
			}
		case hasPrefix(name, "eqadc."):
			cfg.EQADC[name[len("eqadc."):]] = EQADCConfig{
				Host:         section.Key("host").MustString("127.0.0.1"),
				Port:         section.Key("port").MustInt(0),
				AnalysisOnly: section.Key("analysis_only").MustBool(false),
			}
		}
	}

	return cfg, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
