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

package cpu

import (
	"sync"

	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/pagetables"
)

type tlbEntry struct {
	frame addr.PhysPage
	flags pagetables.MappingFlags
}

// TLBStats counts TLB activity.
type TLBStats struct {
	Entries     int
	Flushes     uint64
	FullFlushes uint64
	Hits        uint64
	Misses      uint64
}

// TLB is a core-local translation cache. It implements pagetables.TLB.
type TLB struct {
	mu      sync.Mutex
	entries map[addr.VirtPage]tlbEntry
	stats   TLBStats
}

// NewTLB returns an empty TLB.
func NewTLB() *TLB {
	return &TLB{entries: make(map[addr.VirtPage]tlbEntry)}
}

// Lookup returns the cached translation for v.
func (t *TLB) Lookup(v addr.VirtAddr) (addr.PhysAddr, pagetables.MappingFlags, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[v.Page()]
	if !ok {
		t.stats.Misses++
		return 0, 0, false
	}
	t.stats.Hits++
	return e.frame.Addr().Add(v.PageOffset()), e.flags, true
}

// Insert caches the translation of the page containing v.
func (t *TLB) Insert(v addr.VirtAddr, phys addr.PhysAddr, flags pagetables.MappingFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[v.Page()] = tlbEntry{frame: phys.Page(), flags: flags}
}

// FlushVAddr implements pagetables.TLB.FlushVAddr.
func (t *TLB) FlushVAddr(v addr.VirtAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, v.Page())
	t.stats.Flushes++
}

// FlushAll implements pagetables.TLB.FlushAll.
func (t *TLB) FlushAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.entries)
	t.stats.FullFlushes++
}

// Stats returns the activity counters.
func (t *TLB) Stats() TLBStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.stats
	s.Entries = len(t.entries)
	return s
}
