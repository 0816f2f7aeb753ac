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

package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/memregion"
)

const boardYAML = `
schema: 1.2.0
name: virt
regions:
  - name: flash
    start: 0x20000000
    size: 0x100000
    kind: reserved
  - name: uart
    start: 0x10000000
    size: 0x1000
    kind: mmio
  - name: dram
    start: 0x80000000
    size: 0x8000000
    kind: ram
`

func TestParseBoard(t *testing.T) {
	b, err := ParseBoard([]byte(boardYAML))
	if err != nil {
		t.Fatalf("ParseBoard: %v", err)
	}
	if b.Name != "virt" || len(b.Regions) != 3 {
		t.Fatalf("ParseBoard = %+v, want virt with 3 regions", b)
	}
	set, err := b.MemoryMap()
	if err != nil {
		t.Fatalf("MemoryMap: %v", err)
	}
	want := []memregion.Region{
		{Start: 0x1000_0000, End: 0x1000_1000, Kind: memregion.Device, Name: "uart"},
		{Start: 0x2000_0000, End: 0x2010_0000, Kind: memregion.Reserved, Name: "flash"},
		{Start: 0x8000_0000, End: 0x8800_0000, Kind: memregion.Usable, Name: "dram"},
	}
	if diff := cmp.Diff(want, set.Regions()); diff != "" {
		t.Errorf("MemoryMap mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBoardErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		yaml string
		want string
	}{
		{"future schema", "schema: 2.0.0\nname: x\n", "does not satisfy"},
		{"bad schema", "schema: one\nname: x\n", "schema"},
		{"unknown field", "schema: 1.0.0\nname: x\ncolour: red\n", "colour"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseBoard([]byte(tc.yaml))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("ParseBoard = %v, want error containing %q", err, tc.want)
			}
		})
	}
}

func TestMemoryMapErrors(t *testing.T) {
	overlap := &Board{Schema: SchemaVersion, Regions: []Region{
		{Name: "a", Start: 0x1000, Size: 0x2000, Kind: "usable"},
		{Name: "b", Start: 0x2000, Size: 0x1000, Kind: "usable"},
	}}
	if _, err := overlap.MemoryMap(); !errors.Is(err, memregion.ErrOverlap) {
		t.Errorf("MemoryMap(overlap) = %v, want ErrOverlap", err)
	}
	unaligned := &Board{Schema: SchemaVersion, Regions: []Region{
		{Name: "a", Start: 0x1000, Size: 0x800, Kind: "usable"},
	}}
	if _, err := unaligned.MemoryMap(); err == nil {
		t.Errorf("MemoryMap(unaligned) succeeded")
	}
	kind := &Board{Schema: SchemaVersion, Regions: []Region{
		{Name: "a", Start: 0x1000, Size: 0x1000, Kind: "rom"},
	}}
	if _, err := kind.MemoryMap(); err == nil {
		t.Errorf("MemoryMap(kind) succeeded")
	}
}

func TestDefaultBoard(t *testing.T) {
	c := Default()
	set, err := DefaultBoard(c).MemoryMap()
	if err != nil {
		t.Fatalf("MemoryMap: %v", err)
	}
	start, end, ok := set.Span(memregion.Usable)
	if !ok || start != addr.PhysAddr(c.Memory.Base) || end != c.MemoryEnd() {
		t.Errorf("Span = [%v, %v) %t, want [%#x, %v)", start, end, ok, c.Memory.Base, c.MemoryEnd())
	}
}

func TestLoadBoard(t *testing.T) {
	path := writeFile(t, "board.yaml", boardYAML)
	b, err := LoadBoard(path)
	if err != nil {
		t.Fatalf("LoadBoard: %v", err)
	}
	if b.Schema != "1.2.0" {
		t.Errorf("Schema = %q, want 1.2.0", b.Schema)
	}
}
