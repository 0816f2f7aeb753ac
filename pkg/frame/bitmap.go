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

package frame

import (
	"fmt"
	"sync"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/memregion"
)

// pool tracks the frames of one usable region.
type pool struct {
	// startFrame is the frame number for the first page in this pool.
	// each free bitmap entry i corresponds to frame (startFrame + i).
	startFrame addr.PhysPage

	// endFrame is the first frame past the pool.
	endFrame addr.PhysPage

	// freeCount tracks the available pages in this pool. The allocator
	// can use this field to skip fully allocated pools without the need
	// to scan the free bitmap.
	freeCount uint64

	// used has one set bit per allocated frame.
	used []uint64
}

func (p *pool) contains(f addr.PhysPage) bool {
	return p.startFrame <= f && f < p.endFrame
}

func (p *pool) isUsed(i uint64) bool {
	return p.used[i/64]&(1<<(i%64)) != 0
}

func (p *pool) mark(i uint64, used bool) {
	if used {
		p.used[i/64] |= 1 << (i % 64)
		p.freeCount--
	} else {
		p.used[i/64] &^= 1 << (i % 64)
		p.freeCount++
	}
}

// Stats summarizes allocator occupancy.
type Stats struct {
	Total uint64
	Free  uint64
}

// Bitmap is a first-fit frame allocator that tracks usage across the
// machine's usable regions with one bit per frame.
type Bitmap struct {
	mu    sync.Mutex
	pools []pool
	total uint64
}

// NewBitmap builds an allocator over the usable regions of set.
func NewBitmap(set *memregion.Set) *Bitmap {
	b := &Bitmap{}
	for _, r := range set.Usable() {
		start, ok := r.Start.RoundUp()
		if !ok {
			continue
		}
		end := r.End.RoundDown()
		if end <= start {
			continue
		}
		n := uint64(end-start) >> addr.PageShift
		b.pools = append(b.pools, pool{
			startFrame: start.Page(),
			endFrame:   end.Page(),
			freeCount:  n,
			used:       make([]uint64, (n+63)/64),
		})
		b.total += n
	}
	return b
}

// Alloc implements Allocator.Alloc.
func (b *Bitmap) Alloc() (addr.PhysAddr, error) {
	return b.AllocContiguous(1)
}

// AllocContiguous implements ContiguousAllocator.AllocContiguous.
func (b *Bitmap) AllocContiguous(n uint64) (addr.PhysAddr, error) {
	if n == 0 {
		return 0, fmt.Errorf("allocating zero frames")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for pi := range b.pools {
		p := &b.pools[pi]
		if p.freeCount < n {
			continue
		}
		if i, ok := p.findRun(n); ok {
			for j := i; j < i+n; j++ {
				p.mark(j, true)
			}
			return (p.startFrame + addr.PhysPage(i)).Addr(), nil
		}
	}
	return 0, ErrNoMemory
}

// findRun returns the index of the first run of n free frames.
func (p *pool) findRun(n uint64) (uint64, bool) {
	size := uint64(p.endFrame - p.startFrame)
	run := uint64(0)
	for i := uint64(0); i < size; i++ {
		// Skip fully allocated words when looking for a run start.
		if run == 0 && i%64 == 0 && p.used[i/64] == ^uint64(0) {
			i += 63
			continue
		}
		if p.isUsed(i) {
			run = 0
			continue
		}
		run++
		if run == n {
			return i + 1 - n, true
		}
	}
	return 0, false
}

// Dealloc implements Allocator.Dealloc. Freeing a frame that is not
// allocated panics.
func (b *Bitmap) Dealloc(p addr.PhysAddr) {
	b.DeallocContiguous(p, 1)
}

// DeallocContiguous implements ContiguousAllocator.DeallocContiguous.
func (b *Bitmap) DeallocContiguous(p addr.PhysAddr, n uint64) {
	if !p.IsPageAligned() {
		panic(fmt.Sprintf("freeing unaligned frame %v", p))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	f := p.Page()
	for pi := range b.pools {
		pl := &b.pools[pi]
		if !pl.contains(f) {
			continue
		}
		if !pl.contains(f + addr.PhysPage(n-1)) {
			panic(fmt.Sprintf("freeing frames [%v, +%d) across pool boundary", p, n))
		}
		i := uint64(f - pl.startFrame)
		for j := i; j < i+n; j++ {
			if !pl.isUsed(j) {
				panic(fmt.Sprintf("double free of frame %v", (pl.startFrame + addr.PhysPage(j)).Addr()))
			}
			pl.mark(j, false)
		}
		return
	}
	panic(fmt.Sprintf("freeing frame %v not managed by this allocator", p))
}

// Stats returns the current occupancy.
func (b *Bitmap) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Stats{Total: b.total}
	for i := range b.pools {
		s.Free += b.pools[i].freeCount
	}
	return s
}
