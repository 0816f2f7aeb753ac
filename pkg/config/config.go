// Copyright 2026 The PolyHAL Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config holds the simulator's runtime configuration and board
// description.
//
// The runtime configuration is a TOML file. The board, which takes the
// place of a device tree's memory nodes, is a YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/log"

	// Architectures accepted in configuration files.
	_ "polyhal.dev/hal/pkg/arch/archs"
)

// MaxCores is the largest supported core count.
const MaxCores = 64

// Duration is a time.Duration written as a string, e.g. "250ms".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.UnmarshalText.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.MarshalText.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Memory is the simulated physical memory.
type Memory struct {
	// Base is the physical address of the first byte.
	Base uint64 `toml:"base"`

	// Size is the size in bytes.
	Size uint64 `toml:"size"`
}

// Log configures logging.
type Log struct {
	// Level is "warning", "info" or "debug".
	Level string `toml:"level"`

	// Format is "text", "json", "json-k8s" or "logrus".
	Format string `toml:"format"`
}

// Bringup is the retry policy used while waiting for secondary cores.
type Bringup struct {
	// Timeout bounds the wait for every core to come online.
	Timeout Duration `toml:"timeout"`

	// MaxInterval caps the polling interval.
	MaxInterval Duration `toml:"max_interval"`
}

// Config is the runtime configuration.
type Config struct {
	// Arch is the architecture name or alias.
	Arch string `toml:"arch"`

	// Cores is the number of cores to bring up.
	Cores int `toml:"cores"`

	// Memory is the physical memory arena.
	Memory Memory `toml:"memory"`

	// TimerInterval is the number of ticks between timer interrupts.
	TimerInterval uint64 `toml:"timer_interval"`

	// StaticPerCPUSize is the size of the boot core's reserved per-CPU
	// region, carved from the start of memory.
	StaticPerCPUSize uint64 `toml:"static_percpu_size"`

	// StackPages is the kernel stack size of each core, in pages.
	StackPages int `toml:"stack_pages"`

	// Log configures logging.
	Log Log `toml:"log"`

	// Bringup is the secondary core bring-up policy.
	Bringup Bringup `toml:"bringup"`

	// Board is the path of the board file. Empty means a board with a
	// single usable region covering Memory.
	Board string `toml:"board"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Arch:  "riscv64",
		Cores: 4,
		Memory: Memory{
			Base: 0x8000_0000,
			Size: 64 << 20,
		},
		TimerInterval:    100_000,
		StaticPerCPUSize: 4 * addr.PageSize,
		StackPages:       4,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Bringup: Bringup{
			Timeout:     Duration{5 * time.Second},
			MaxInterval: Duration{100 * time.Millisecond},
		},
	}
}

// Load reads a configuration file over the defaults and validates it.
// Unknown keys are an error.
func Load(path string) (*Config, error) {
	c := Default()
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("loading %s: unknown keys %s", path, strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return c, nil
}

// Validate checks the configuration for consistency. Every problem found is
// reported.
func (c *Config) Validate() error {
	var errs []error
	if _, err := arch.Lookup(c.Arch); err != nil {
		errs = append(errs, err)
	}
	if c.Cores < 1 || c.Cores > MaxCores {
		errs = append(errs, fmt.Errorf("cores must be between 1 and %d, got %d", MaxCores, c.Cores))
	}
	if !addr.PhysAddr(c.Memory.Base).IsPageAligned() || c.Memory.Size%addr.PageSize != 0 {
		errs = append(errs, fmt.Errorf("memory [%#x, +%#x) is not page aligned", c.Memory.Base, c.Memory.Size))
	}
	if c.Memory.Size < 1<<20 {
		errs = append(errs, fmt.Errorf("memory size %#x is below 1MB", c.Memory.Size))
	}
	if c.StaticPerCPUSize == 0 || c.StaticPerCPUSize%addr.PageSize != 0 {
		errs = append(errs, fmt.Errorf("static_percpu_size %#x must be a non-zero multiple of the page size", c.StaticPerCPUSize))
	}
	if c.StackPages < 1 {
		errs = append(errs, fmt.Errorf("stack_pages must be positive, got %d", c.StackPages))
	}
	if c.TimerInterval == 0 {
		errs = append(errs, errors.New("timer_interval must be positive"))
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "logrus" {
		if _, err := log.NewEmitter(c.Log.Format, &log.Writer{}); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Bringup.Timeout.Duration <= 0 || c.Bringup.MaxInterval.Duration <= 0 {
		errs = append(errs, errors.New("bringup timeout and max_interval must be positive"))
	}
	return errors.Join(errs...)
}

// MemoryEnd returns the first physical address past memory.
func (c *Config) MemoryEnd() addr.PhysAddr {
	return addr.PhysAddr(c.Memory.Base + c.Memory.Size)
}
