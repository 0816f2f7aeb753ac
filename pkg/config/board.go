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
	"bytes"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/memregion"
)

// SchemaConstraint is the board schema versions understood.
const SchemaConstraint = "^1"

// SchemaVersion is the schema version written by DefaultBoard.
const SchemaVersion = "1.0.0"

// Region is one board memory region.
type Region struct {
	Name  string `yaml:"name"`
	Start uint64 `yaml:"start"`
	Size  uint64 `yaml:"size"`

	// Kind is "usable", "reserved" or "device".
	Kind string `yaml:"kind"`
}

// Board describes a machine's memory.
type Board struct {
	// Schema is the semantic version of the board file format.
	Schema string `yaml:"schema"`

	// Name is the board name.
	Name string `yaml:"name"`

	// Regions lists the physical memory regions.
	Regions []Region `yaml:"regions"`
}

// DefaultBoard returns a board with a single usable region covering the
// configured memory.
func DefaultBoard(c *Config) *Board {
	return &Board{
		Schema: SchemaVersion,
		Name:   "sim",
		Regions: []Region{{
			Name:  "ram",
			Start: c.Memory.Base,
			Size:  c.Memory.Size,
			Kind:  "usable",
		}},
	}
}

// LoadBoard reads a board file.
func LoadBoard(path string) (*Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := ParseBoard(data)
	if err != nil {
		return nil, fmt.Errorf("board %s: %w", path, err)
	}
	return b, nil
}

// ParseBoard decodes a board description. Unknown fields and unsupported
// schema versions are errors.
func ParseBoard(data []byte) (*Board, error) {
	var b Board
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, err
	}
	if err := b.checkSchema(); err != nil {
		return nil, err
	}
	return &b, nil
}

func (b *Board) checkSchema() error {
	v, err := semver.NewVersion(b.Schema)
	if err != nil {
		return fmt.Errorf("schema %q: %w", b.Schema, err)
	}
	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		panic(err)
	}
	if !c.Check(v) {
		return fmt.Errorf("schema %s does not satisfy %s", v, SchemaConstraint)
	}
	return nil
}

// MemoryMap returns the regions as a region set. Overlapping or misaligned
// regions are an error.
func (b *Board) MemoryMap() (*memregion.Set, error) {
	set := memregion.NewSet()
	for _, r := range b.Regions {
		kind, err := memregion.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		start := addr.PhysAddr(r.Start)
		end := start.Add(r.Size)
		if !start.IsPageAligned() || !end.IsPageAligned() {
			return nil, fmt.Errorf("region %q [%v, %v) is not page aligned", r.Name, start, end)
		}
		if end < start {
			return nil, fmt.Errorf("region %q wraps around", r.Name)
		}
		if err := set.Add(memregion.Region{Start: start, End: end, Kind: kind, Name: r.Name}); err != nil {
			return nil, err
		}
	}
	return set, nil
}
