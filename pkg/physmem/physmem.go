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

// Package physmem provides simulated physical memory.
//
// An Arena is an anonymous host mapping that stands in for a machine's RAM.
// Physical address Base maps to the first byte of the mapping. Page tables,
// trap frames and per-CPU areas built by the HAL all live inside an arena in
// their hardware layout.
package physmem

import (
	"fmt"

	"golang.org/x/sys/unix"

	"polyhal.dev/hal/pkg/addr"
)

// BusError is raised for an access outside of an arena.
type BusError struct {
	Addr   addr.PhysAddr
	Length uint64
}

// Error implements error.Error.
func (e *BusError) Error() string {
	return fmt.Sprintf("bus error: physical access [%v, +%#x) outside of RAM", e.Addr, e.Length)
}

// Arena is a contiguous range of simulated physical memory.
type Arena struct {
	base addr.PhysAddr
	mem  []byte
}

// New maps size bytes of zeroed memory appearing at physical address base.
// base and size must be page aligned.
func New(base addr.PhysAddr, size uint64) (*Arena, error) {
	if !base.IsPageAligned() || size&addr.PageMask != 0 || size == 0 {
		return nil, fmt.Errorf("arena [%v, +%#x) is not page aligned", base, size)
	}
	if uint64(base)+size < uint64(base) {
		return nil, fmt.Errorf("arena [%v, +%#x) overflows", base, size)
	}
	mem, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANONYMOUS|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("mapping %#x bytes of RAM: %w", size, err)
	}
	return &Arena{base: base, mem: mem}, nil
}

// Close unmaps the arena. The arena must not be used afterwards.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// Base returns the first physical address of the arena.
func (a *Arena) Base() addr.PhysAddr {
	return a.base
}

// Size returns the arena size in bytes.
func (a *Arena) Size() uint64 {
	return uint64(len(a.mem))
}

// End returns the first physical address past the arena.
func (a *Arena) End() addr.PhysAddr {
	return a.base.Add(a.Size())
}

// Contains returns true if [p, p+n) lies within the arena.
func (a *Arena) Contains(p addr.PhysAddr, n uint64) bool {
	if p < a.base {
		return false
	}
	off := uint64(p - a.base)
	return off <= a.Size() && n <= a.Size()-off
}

// Bytes returns the n bytes at p.
func (a *Arena) Bytes(p addr.PhysAddr, n uint64) ([]byte, error) {
	if !a.Contains(p, n) {
		return nil, &BusError{Addr: p, Length: n}
	}
	off := uint64(p - a.base)
	return a.mem[off : off+n : off+n], nil
}

// MustBytes is like Bytes but panics with a *BusError.
func (a *Arena) MustBytes(p addr.PhysAddr, n uint64) []byte {
	b, err := a.Bytes(p, n)
	if err != nil {
		panic(err)
	}
	return b
}

// Zero clears n bytes at p.
func (a *Arena) Zero(p addr.PhysAddr, n uint64) error {
	b, err := a.Bytes(p, n)
	if err != nil {
		return err
	}
	clear(b)
	return nil
}

// Copy copies n bytes from src to dst within the arena.
func (a *Arena) Copy(dst, src addr.PhysAddr, n uint64) error {
	d, err := a.Bytes(dst, n)
	if err != nil {
		return err
	}
	s, err := a.Bytes(src, n)
	if err != nil {
		return err
	}
	copy(d, s)
	return nil
}
