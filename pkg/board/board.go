// Package board describes board identity and card slot wiring.
//
// A board [Config] names the slots a board provides, the signal lines wired
// to each slot's card-detect and write-protect contacts and the block device
// minor number each slot is exposed under. Configurations start from a
// built-in preset and may be overridden by a TOML board file:
//
//	name = "freedom-k64f"
//
//	[[slot]]
//	slot = 0
//	minor = 0
//	card_detect = "PTE6"
//	write_protect = "PTE27"
//	image = "card0.img"
package board

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ardnew/softsd/pkg"
	"github.com/ardnew/softsd/slot/hal"
)

// DefaultBlockSize is the block size used when a slot does not set one.
const DefaultBlockSize = 512

// Preset board names.
const (
	NameFreedomK64F = "freedom-k64f"
	NameGeneric     = "generic"
)

// SlotConfig wires one card slot.
type SlotConfig struct {
	Slot         int      `toml:"slot"`                  // Controller slot index
	Minor        int      `toml:"minor"`                 // Block device minor number
	CardDetect   hal.Line `toml:"card_detect"`           // Presence line, active low
	WriteProtect hal.Line `toml:"write_protect"`         // Write-protect line, active high
	Image        string   `toml:"image,omitempty"`       // Card image path backing the controller
	BlockSize    uint32   `toml:"block_size"`            // Card block size in bytes
	QueueDepth   int      `toml:"queue_depth,omitempty"` // Notification queue depth, 0 for direct delivery
}

// Config describes a board.
type Config struct {
	Name     string       `toml:"name"`
	MaxSlots int          `toml:"max_slots"`
	Slots    []SlotConfig `toml:"slot"`
}

// FreedomK64F returns the preset for the NXP FRDM-K64F board: one SDHC
// slot with card detect on PTE6.
func FreedomK64F() Config {
	return Config{
		Name:     NameFreedomK64F,
		MaxSlots: 1,
		Slots: []SlotConfig{{
			Slot:         0,
			Minor:        0,
			CardDetect:   "PTE6",
			WriteProtect: "PTE27",
			BlockSize:    DefaultBlockSize,
		}},
	}
}

// Generic returns a preset with room for four slots and none wired.
func Generic() Config {
	return Config{
		Name:     NameGeneric,
		MaxSlots: 4,
	}
}

var presets = map[string]func() Config{
	NameFreedomK64F: FreedomK64F,
	NameGeneric:     Generic,
}

// Preset returns the preset named name. An empty name selects the
// FRDM-K64F preset.
func Preset(name string) (Config, error) {
	if name == "" {
		return FreedomK64F(), nil
	}
	fn, ok := presets[name]
	if !ok {
		return Config{}, fmt.Errorf("unrecognized board %q: %w", name, pkg.ErrInvalidParameter)
	}
	return fn(), nil
}

// Presets returns the preset names in sorted order.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads a TOML board file. The file's name key selects the preset it
// overrides; a file listing [[slot]] tables replaces the preset's slots.
func Load(path string) (Config, error) {
	var header struct {
		Name string `toml:"name"`
	}
	md, err := toml.DecodeFile(path, &header)
	if err != nil {
		return Config{}, fmt.Errorf("board file %s: %w", path, err)
	}

	cfg, err := Preset(header.Name)
	if err != nil {
		return Config{}, err
	}
	if md.IsDefined("slot") {
		cfg.Slots = nil
	}

	md, err = toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("board file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("board file %s: unknown keys %s: %w",
			path, strings.Join(keys, ", "), pkg.ErrInvalidParameter)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyDefaults fills unset slot fields.
func (c *Config) applyDefaults() {
	for i := range c.Slots {
		if c.Slots[i].BlockSize == 0 {
			c.Slots[i].BlockSize = DefaultBlockSize
		}
	}
}

// Validate checks the configuration for wiring errors.
func (c *Config) Validate() error {
	if c.MaxSlots <= 0 {
		return invalid("max_slots", "must be positive")
	}
	if len(c.Slots) == 0 {
		return invalid("slot", "no slots configured")
	}
	if len(c.Slots) > c.MaxSlots {
		return invalid("slot", fmt.Sprintf("%d slots configured, board has %d", len(c.Slots), c.MaxSlots))
	}

	slots := make(map[int]bool, len(c.Slots))
	minors := make(map[int]bool, len(c.Slots))
	for i := range c.Slots {
		s := &c.Slots[i]
		if err := s.Validate(c.MaxSlots); err != nil {
			return err
		}
		if slots[s.Slot] {
			return invalid("slot", fmt.Sprintf("slot %d configured twice", s.Slot))
		}
		if minors[s.Minor] {
			return invalid("minor", fmt.Sprintf("minor %d used twice", s.Minor))
		}
		slots[s.Slot] = true
		minors[s.Minor] = true
	}
	return nil
}

// Validate checks one slot against a board with maxSlots slots.
func (s *SlotConfig) Validate(maxSlots int) error {
	switch {
	case s.Slot < 0 || s.Slot >= maxSlots:
		return invalid("slot", fmt.Sprintf("slot %d out of range [0, %d)", s.Slot, maxSlots))
	case s.Minor < 0:
		return invalid("minor", fmt.Sprintf("minor %d is negative", s.Minor))
	case s.CardDetect == "":
		return invalid("card_detect", "line not set")
	case s.WriteProtect == "":
		return invalid("write_protect", "line not set")
	case s.CardDetect == s.WriteProtect:
		return invalid("write_protect", "shares line with card_detect")
	case s.BlockSize < DefaultBlockSize || s.BlockSize&(s.BlockSize-1) != 0:
		return invalid("block_size", fmt.Sprintf("%d is not a power of two >= %d", s.BlockSize, DefaultBlockSize))
	case s.QueueDepth < 0:
		return invalid("queue_depth", "must not be negative")
	}
	return nil
}

// Slot returns the configuration of slot index, if present.
func (c *Config) Slot(index int) (SlotConfig, bool) {
	for _, s := range c.Slots {
		if s.Slot == index {
			return s, true
		}
	}
	return SlotConfig{}, false
}

// Encode writes the configuration as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

func invalid(field, reason string) error {
	return fmt.Errorf("board %s: %s: %w", field, reason, pkg.ErrInvalidParameter)
}
