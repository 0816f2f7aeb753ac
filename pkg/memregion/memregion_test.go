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

package memregion

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"polyhal.dev/hal/pkg/addr"
)

func TestAddOverlap(t *testing.T) {
	s := NewSet()
	if err := s.Add(Region{Start: 0x8000_0000, End: 0x8800_0000, Kind: Usable, Name: "ram"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := s.Add(Region{Start: 0x1000_0000, End: 0x1000_1000, Kind: Device, Name: "uart"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	for _, r := range []Region{
		{Start: 0x87ff_f000, End: 0x8800_1000},
		{Start: 0x7fff_f000, End: 0x8000_1000},
		{Start: 0x8100_0000, End: 0x8100_1000},
		{Start: 0x0, End: 0x9000_0000},
	} {
		if err := s.Add(r); !errors.Is(err, ErrOverlap) {
			t.Errorf("Add(%v) = %v, want ErrOverlap", r, err)
		}
	}
	if err := s.Add(Region{Start: 0x8800_0000, End: 0x8800_1000, Kind: Reserved}); err != nil {
		t.Errorf("Add of adjacent region failed: %v", err)
	}
	if s.Len() != 3 {
		t.Errorf("Len() = %d, want 3", s.Len())
	}
}

func TestFind(t *testing.T) {
	s := NewSet()
	s.Add(Region{Start: 0x8000_0000, End: 0x8800_0000, Kind: Usable, Name: "ram"})
	if r, ok := s.Find(0x8123_4567); !ok || r.Name != "ram" {
		t.Errorf("Find(0x81234567) = (%v, %t)", r, ok)
	}
	if _, ok := s.Find(0x8800_0000); ok {
		t.Errorf("Find(end) found a region")
	}
	if _, ok := s.Find(0x10); ok {
		t.Errorf("Find(0x10) found a region")
	}
}

func TestReserve(t *testing.T) {
	s := NewSet()
	s.Add(Region{Start: 0x8000_0000, End: 0x8010_0000, Kind: Usable, Name: "ram"})
	if err := s.Reserve(0x8000_0000, 0x8002_0000, "kernel"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := s.Reserve(0x8008_0000, 0x8008_1000, "percpu"); err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	want := []Region{
		{Start: 0x8000_0000, End: 0x8002_0000, Kind: Reserved, Name: "kernel"},
		{Start: 0x8002_0000, End: 0x8008_0000, Kind: Usable, Name: "ram"},
		{Start: 0x8008_0000, End: 0x8008_1000, Kind: Reserved, Name: "percpu"},
		{Start: 0x8008_1000, End: 0x8010_0000, Kind: Usable, Name: "ram"},
	}
	if diff := cmp.Diff(want, s.Regions()); diff != "" {
		t.Errorf("regions mismatch (-want +got):\n%s", diff)
	}
	if err := s.Reserve(0x8000_1000, 0x8000_2000, "twice"); err == nil {
		t.Errorf("Reserve inside a reserved region succeeded")
	}
	if got := len(s.Usable()); got != 2 {
		t.Errorf("len(Usable()) = %d, want 2", got)
	}
	start, end, ok := s.Span(Usable, Reserved)
	if !ok || start != 0x8000_0000 || end != addr.PhysAddr(0x8010_0000) {
		t.Errorf("Span = (%v, %v, %t)", start, end, ok)
	}
}
