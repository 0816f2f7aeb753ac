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

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/pagetables"
	"polyhal.dev/hal/pkg/trap"
)

// PageTable implements subcommands.Command for the "pagetable" command.
type PageTable struct {
	arch  string
	vaddr uint64
	paddr uint64
	pages uint64
	flags string
}

// Name implements subcommands.Command.Name.
func (*PageTable) Name() string {
	return "pagetable"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*PageTable) Synopsis() string {
	return "Map, translate, unmap and release a user address space."
}

// Usage implements subcommands.Command.Usage.
func (*PageTable) Usage() string {
	return `pagetable [flags] - Create an address space on a booted core, map pages,
translate them through the tables and the core's MMU, unmap them and release
the tables.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *PageTable) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.arch, "arch", "", "architecture, overriding the configuration.")
	f.Uint64Var(&p.vaddr, "vaddr", 0x40_0000, "first virtual address to map.")
	f.Uint64Var(&p.paddr, "paddr", 0, "first physical address to map. Zero allocates frames.")
	f.Uint64Var(&p.pages, "pages", 4, "number of pages to map.")
	f.StringVar(&p.flags, "flags", "P|U|R|W", "mapping flags.")
}

// Execute implements subcommands.Command.Execute.
func (p *PageTable) Execute(ctx context.Context, _ *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if err := p.execute(ctx, args); err != nil {
		return failure(err)
	}
	return subcommands.ExitSuccess
}

func (p *PageTable) execute(ctx context.Context, args []any) error {
	conf := configFrom(args)
	a, err := lookupArch(conf, p.arch)
	if err != nil {
		return err
	}
	flags, err := pagetables.ParseFlags(p.flags)
	if err != nil {
		return err
	}
	v := addr.VirtAddr(p.vaddr)
	if !v.IsPageAligned() || p.pages == 0 {
		return fmt.Errorf("need a page aligned address and at least one page, got %v and %d", v, p.pages)
	}

	cfg, err := bootConfig(conf, a, 1, trap.HandlerFunc(func(f trap.Frame, t trap.Type) {
		fmt.Fprintf(Output, "  trap: %v\n", t)
	}))
	if err != nil {
		return err
	}
	m, err := bootMachine(ctx, cfg)
	if err != nil {
		return err
	}
	defer m.Close()
	k := m.Kernel
	c, _ := k.CPU(0)

	phys := addr.PhysAddr(p.paddr)
	if phys == 0 {
		ca, ok := m.Frames.(frame.ContiguousAllocator)
		if !ok {
			return fmt.Errorf("frame allocator cannot allocate %d contiguous pages", p.pages)
		}
		if phys, err = ca.AllocContiguous(p.pages); err != nil {
			return err
		}
		defer ca.DeallocContiguous(phys, p.pages)
	}

	stats := func() frame.Stats {
		if b, ok := m.Frames.(*frame.Bitmap); ok {
			return b.Stats()
		}
		return frame.Stats{}
	}
	before := stats()
	pt, err := k.NewPageTables()
	if err != nil {
		return err
	}
	fmt.Fprintf(Output, "%s: address space root %v, kernel root %v\n", a.Name(), pt.Root(), k.PageTables.Root())

	r := addr.VirtRange{Start: v, End: v.Add(p.pages << addr.PageShift)}
	if err := pt.MapRange(r, phys, flags); err != nil {
		pt.Destroy()
		return err
	}
	fmt.Fprintf(Output, "mapped %v -> %v as %v, %d table frames allocated\n", r, phys, flags, before.Free-stats().Free)

	c.Activate(pt)
	pt.Mappings(r, func(va addr.VirtAddr, pa addr.PhysAddr, got pagetables.MappingFlags) bool {
		hw, err := c.Core.Translate(va, cpu.Load)
		if err != nil {
			fmt.Fprintf(Output, "  %v -> %v %v, mmu: %v\n", va, pa, got, err)
		} else {
			fmt.Fprintf(Output, "  %v -> %v %v, mmu: %v\n", va, pa, got, hw)
		}
		return true
	})

	pt.UnmapPage(v)
	if _, _, ok := pt.Translate(v); ok {
		return fmt.Errorf("%v still mapped after unmap", v)
	}
	if _, err := c.Core.Translate(v, cpu.Load); err == nil {
		return fmt.Errorf("%v still translated by the MMU after unmap", v)
	}
	fmt.Fprintf(Output, "unmapped %v\n", v)

	c.Activate(k.PageTables)
	pt.Destroy()
	after := stats()
	fmt.Fprintf(Output, "released address space, %d frames leaked\n", before.Free-after.Free)
	if before.Free != after.Free {
		return fmt.Errorf("release leaked %d frames", before.Free-after.Free)
	}
	return nil
}
