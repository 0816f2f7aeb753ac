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

// Package frametest provides frame allocators for tests.
package frametest

import (
	"slices"
	"sync"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/physmem"
)

// Counting wraps an allocator and records every frame it hands out, so tests
// can check that each frame is returned exactly once.
type Counting struct {
	next frame.Allocator

	// Scribble, if set, is filled with garbage on every allocation so that
	// callers relying on zeroed frames are caught.
	Scribble *physmem.Arena

	mu          sync.Mutex
	live        map[addr.PhysAddr]struct{}
	allocs      int
	deallocs    int
	doubleFrees []addr.PhysAddr
	failAfter   int
}

// New returns a Counting allocator drawing frames from next.
func New(next frame.Allocator) *Counting {
	return &Counting{
		next:      next,
		live:      make(map[addr.PhysAddr]struct{}),
		failAfter: -1,
	}
}

// FailAfter makes every allocation after the next n fail with
// frame.ErrNoMemory. A negative n disables failure injection.
func (c *Counting) FailAfter(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAfter = n
}

// Alloc implements frame.Allocator.Alloc.
func (c *Counting) Alloc() (addr.PhysAddr, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAfter == 0 {
		return 0, frame.ErrNoMemory
	}
	p, err := c.next.Alloc()
	if err != nil {
		return 0, err
	}
	if c.failAfter > 0 {
		c.failAfter--
	}
	if c.Scribble != nil {
		b := c.Scribble.MustBytes(p, addr.PageSize)
		for i := range b {
			b[i] = 0xa5
		}
	}
	c.allocs++
	c.live[p] = struct{}{}
	return p, nil
}

// Dealloc implements frame.Allocator.Dealloc. Frames that are not live are
// recorded as double frees and not forwarded.
func (c *Counting) Dealloc(p addr.PhysAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.live[p]; !ok {
		c.doubleFrees = append(c.doubleFrees, p)
		return
	}
	delete(c.live, p)
	c.deallocs++
	c.next.Dealloc(p)
}

// Allocs returns the number of successful allocations.
func (c *Counting) Allocs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.allocs
}

// Deallocs returns the number of frames returned.
func (c *Counting) Deallocs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deallocs
}

// Live returns the frames allocated and not yet returned, in address order.
func (c *Counting) Live() []addr.PhysAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]addr.PhysAddr, 0, len(c.live))
	for p := range c.live {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// DoubleFrees returns the frames freed while not live.
func (c *Counting) DoubleFrees() []addr.PhysAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.doubleFrees)
}

// Bump hands out frames from [start, end) in increasing order and recycles
// freed frames last-in first-out.
type Bump struct {
	mu   sync.Mutex
	next addr.PhysAddr
	end  addr.PhysAddr
	free []addr.PhysAddr
}

// NewBump returns a Bump allocator over [start, end).
func NewBump(start, end addr.PhysAddr) *Bump {
	return &Bump{next: start, end: end}
}

// Alloc implements frame.Allocator.Alloc.
func (b *Bump) Alloc() (addr.PhysAddr, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.free); n > 0 {
		p := b.free[n-1]
		b.free = b.free[:n-1]
		return p, nil
	}
	if b.next >= b.end {
		return 0, frame.ErrNoMemory
	}
	p := b.next
	b.next = b.next.Add(addr.PageSize)
	return p, nil
}

// Dealloc implements frame.Allocator.Dealloc.
func (b *Bump) Dealloc(p addr.PhysAddr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.free = append(b.free, p)
}
