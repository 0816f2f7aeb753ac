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

// Package boot brings a simulated machine from reset to the client kernel's
// entry points.
//
// Boot order is fixed: the memory map is built and the boot core's static
// per-CPU region reserved, the frame allocator is created over the
// remaining usable memory, the kernel page tables and linear map are built,
// the primary core is initialized, and then every secondary core is
// initialized concurrently. Entry points run only once every core is
// online.
package boot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"golang.org/x/sync/errgroup"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/arch"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/log"
	"polyhal.dev/hal/pkg/memregion"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/physmem"
	"polyhal.dev/hal/pkg/ring0"
	"polyhal.dev/hal/pkg/trap"
)

// StaticPerCPUName names the boot core's reserved per-CPU region in the
// memory map.
const StaticPerCPUName = "percpu0"

// Default bring-up policy.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultMaxInterval = 100 * time.Millisecond
)

// Entry is a client kernel entry point. It runs on the given core.
type Entry func(c *ring0.CPU) error

// Config configures a boot.
type Config struct {
	// Arch is the architecture to boot.
	Arch arch.Arch

	// Regions is the machine's memory map. It is modified: the boot core's
	// per-CPU region is reserved in it.
	Regions *memregion.Set

	// Cores is the number of cores. Core 0 is the primary.
	Cores int

	// StaticPerCPUSize is the size of the boot core's per-CPU region,
	// carved from the start of the first usable region.
	StaticPerCPUSize uint64

	// StackPages is the kernel stack size of each core.
	StackPages int

	// PerCPU is the per-CPU template. Nil means an empty template.
	PerCPU *percpu.Template

	// Frames, if set, replaces the bitmap allocator over usable memory.
	Frames frame.Allocator

	// Devices returns the devices of a core. Nil means simulated devices
	// with timer interval TimerInterval.
	Devices func(core int) *devices.Set

	// TimerInterval is the timer interval of simulated devices.
	TimerInterval uint64

	// IRQs are enabled on every core's interrupt controller.
	IRQs []int

	// Hooks receive every trap.
	Hooks trap.Handler

	// Main is the primary core's entry point.
	Main Entry

	// Secondary, if set, is the entry point of every other core.
	Secondary Entry

	// Timeout bounds the wait for secondary cores.
	Timeout time.Duration

	// MaxInterval caps the polling interval while waiting.
	MaxInterval time.Duration

	// Log is the boot logger. Nil means the global logger.
	Log log.Logger
}

// Machine is a booted machine.
type Machine struct {
	// Kernel is the kernel state.
	Kernel *ring0.Kernel

	// Memory is physical memory.
	Memory *physmem.Arena

	// Regions is the final memory map.
	Regions *memregion.Set

	// Frames is the frame allocator.
	Frames frame.Allocator
}

// Close releases physical memory. m must not be used afterwards.
func (m *Machine) Close() error {
	return m.Memory.Close()
}

// Loader performs a boot. A Loader boots at most once.
type Loader struct {
	mu     sync.Mutex
	booted bool
}

var global Loader

// Init boots the process-wide machine. It panics if called more than once.
func Init(ctx context.Context, cfg Config) (*Machine, error) {
	return global.Init(ctx, cfg)
}

// Init boots a machine. It panics if l has booted before, whether or not
// that boot succeeded.
func (l *Loader) Init(ctx context.Context, cfg Config) (*Machine, error) {
	l.mu.Lock()
	if l.booted {
		l.mu.Unlock()
		panic("boot.Init called twice")
	}
	l.booted = true
	l.mu.Unlock()

	if cfg.Arch == nil || cfg.Regions == nil || cfg.Hooks == nil {
		panic("boot.Init: arch, regions and hooks are required")
	}
	if cfg.Cores < 1 {
		return nil, fmt.Errorf("invalid core count %d", cfg.Cores)
	}
	if cfg.Log == nil {
		cfg.Log = log.Log()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultMaxInterval
	}
	if cfg.Devices == nil {
		interval := cfg.TimerInterval
		cfg.Devices = func(int) *devices.Set {
			return devices.NewSimSet(interval)
		}
	}

	m, err := setupMemory(&cfg)
	if err != nil {
		return nil, err
	}
	if err := m.boot(ctx, &cfg); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// setupMemory maps physical memory, reserves the static per-CPU region and
// creates the frame allocator.
func setupMemory(cfg *Config) (*Machine, error) {
	usable := cfg.Regions.Usable()
	if len(usable) == 0 {
		return nil, errors.New("memory map has no usable memory")
	}
	static := usable[0].Start
	size := cfg.StaticPerCPUSize
	if size == 0 {
		size = addr.PageSize
	}
	if err := cfg.Regions.Reserve(static, static.Add(size), StaticPerCPUName); err != nil {
		return nil, err
	}
	cfg.StaticPerCPUSize = size

	start, end, _ := cfg.Regions.Span(memregion.Usable, memregion.Reserved)
	mem, err := physmem.New(start, uint64(end-start))
	if err != nil {
		return nil, fmt.Errorf("mapping physical memory [%v, %v): %w", start, end, err)
	}
	m := &Machine{Memory: mem, Regions: cfg.Regions, Frames: cfg.Frames}
	if m.Frames == nil {
		m.Frames = frame.NewBitmap(cfg.Regions)
	}
	for _, r := range cfg.Regions.Regions() {
		cfg.Log.Debugf("memory: %v", r)
	}
	return m, nil
}

func (m *Machine) boot(ctx context.Context, cfg *Config) error {
	var static addr.PhysAddr
	cfg.Regions.Ascend(func(r memregion.Region) bool {
		if r.Kind == memregion.Reserved && r.Name == StaticPerCPUName {
			static = r.Start
			return false
		}
		return true
	})

	k := &ring0.Kernel{}
	if err := k.Init(ring0.KernelOpts{
		Arch:             cfg.Arch,
		Memory:           m.Memory,
		Frames:           m.Frames,
		PerCPU:           cfg.PerCPU,
		StaticPerCPU:     static,
		StaticPerCPUSize: cfg.StaticPerCPUSize,
		StackPages:       cfg.StackPages,
		Hooks:            cfg.Hooks,
		Log:              cfg.Log,
	}); err != nil {
		return err
	}
	m.Kernel = k

	primary, err := initCPU(k, 0, cfg)
	if err != nil {
		return fmt.Errorf("primary core: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	release := make(chan struct{})
	for id := 1; id < cfg.Cores; id++ {
		g.Go(func() error {
			c, err := initCPU(k, id, cfg)
			if err != nil {
				return fmt.Errorf("core %d: %w", id, err)
			}
			select {
			case <-release:
			case <-gctx.Done():
				return nil
			}
			if cfg.Secondary == nil {
				return nil
			}
			return cfg.Secondary(c)
		})
	}

	if err := waitOnline(gctx, k, cfg); err != nil {
		cancel()
		if gerr := g.Wait(); gerr != nil {
			return gerr
		}
		return err
	}
	cfg.Log.Infof("%s: %d cores online", cfg.Arch.Name(), k.CPUs())
	close(release)

	var mainErr error
	if cfg.Main != nil {
		mainErr = cfg.Main(primary)
	}
	return errors.Join(mainErr, g.Wait())
}

func initCPU(k *ring0.Kernel, id int, cfg *Config) (*ring0.CPU, error) {
	d := cfg.Devices(id)
	if d.IRQ != nil {
		for _, v := range cfg.IRQs {
			d.IRQ.Enable(v)
		}
	}
	c := &ring0.CPU{}
	if err := c.Init(k, id, d); err != nil {
		return nil, err
	}
	return c, nil
}

// waitOnline polls until every core is online, a secondary fails, or the
// timeout expires.
func waitOnline(ctx context.Context, k *ring0.Kernel, cfg *Config) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = cfg.MaxInterval
	b.MaxElapsedTime = cfg.Timeout

	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		if n := k.CPUs(); n < cfg.Cores {
			return fmt.Errorf("%d of %d cores online", n, cfg.Cores)
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(b, ctx))
}
