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

package addr

import (
	"testing"
)

func TestRounding(t *testing.T) {
	for _, tc := range []struct {
		in       uint64
		down, up uint64
		ok       bool
	}{
		{in: 0, down: 0, up: 0, ok: true},
		{in: 1, down: 0, up: PageSize, ok: true},
		{in: PageSize, down: PageSize, up: PageSize, ok: true},
		{in: 0x80001234, down: 0x80001000, up: 0x80002000, ok: true},
		{in: ^uint64(0), down: ^uint64(0) &^ PageMask, up: 0, ok: false},
	} {
		if got := PhysAddr(tc.in).RoundDown(); uint64(got) != tc.down {
			t.Errorf("PhysAddr(%#x).RoundDown() = %v, want %#x", tc.in, got, tc.down)
		}
		up, ok := VirtAddr(tc.in).RoundUp()
		if ok != tc.ok || (ok && uint64(up) != tc.up) {
			t.Errorf("VirtAddr(%#x).RoundUp() = (%v, %t), want (%#x, %t)", tc.in, up, ok, tc.up, tc.ok)
		}
	}
}

func TestPageConversions(t *testing.T) {
	p := PhysAddr(0x80000123)
	if got, want := p.Page(), PhysPage(0x80000); got != want {
		t.Errorf("Page() = %#x, want %#x", got, want)
	}
	if got, want := p.Page().Addr(), PhysAddr(0x80000000); got != want {
		t.Errorf("Page().Addr() = %v, want %v", got, want)
	}
	if got := p.PageOffset(); got != 0x123 {
		t.Errorf("PageOffset() = %#x, want 0x123", got)
	}
	v := VirtAddr(0x1000)
	if got := v.Page().Addr(); got != v {
		t.Errorf("round trip = %v, want %v", got, v)
	}
}

func TestIndex(t *testing.T) {
	// 0xffff_ffc0_8020_3000 in Sv39: VPN2 = 0x102, VPN1 = 0x001, VPN0 = 0x003.
	v := VirtAddr(0xffff_ffc0_8020_3000)
	for level, want := range []int{0x003, 0x001, 0x102} {
		if got := v.Index(level); got != want {
			t.Errorf("Index(%d) = %#x, want %#x", level, got, want)
		}
	}
	// x86 kernel half starts at root index 256.
	if got := VirtAddr(0xffff_8000_0000_0000).Index(3); got != 256 {
		t.Errorf("Index(3) = %d, want 256", got)
	}
}

func TestDirectMap(t *testing.T) {
	d := DirectMap{Offset: 0xffff_ffc0_0000_0000}
	v := d.Virt(0x8020_0000)
	if v != 0xffff_ffc0_8020_0000 {
		t.Errorf("Virt() = %v", v)
	}
	if p, ok := d.Phys(v); !ok || p != 0x8020_0000 {
		t.Errorf("Phys(%v) = (%v, %t)", v, p, ok)
	}
	if _, ok := d.Phys(0x1000); ok {
		t.Errorf("Phys(0x1000) ok, want below linear map")
	}
}

func TestVirtRange(t *testing.T) {
	r := VirtRange{Start: 0x1000, End: 0x4000}
	if !r.IsPageAligned() || r.Pages() != 3 || r.Length() != 0x3000 {
		t.Errorf("range %v: aligned=%t pages=%d length=%#x", r, r.IsPageAligned(), r.Pages(), r.Length())
	}
	if r.Contains(0x4000) || !r.Contains(0x3fff) {
		t.Errorf("Contains bounds wrong for %v", r)
	}
}
