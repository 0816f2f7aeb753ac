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

package pagetables

import (
	"fmt"
	"strings"
)

// MappingFlags is the architecture-independent description of a mapping.
// Each Format converts it to and from its hardware bits; the conversion is
// not required to be lossless (see Normalize).
type MappingFlags uint64

const (
	// Present marks a valid mapping.
	Present MappingFlags = 1 << iota

	// User allows access from user mode.
	User

	// Read allows loads.
	Read

	// Write allows stores.
	Write

	// Execute allows instruction fetch.
	Execute

	// Accessed is set by hardware (or software) on first access.
	Accessed

	// Dirty is set by hardware (or software) on first store.
	Dirty

	// Global mappings survive address-space switches in the TLB.
	Global

	// Device selects strongly-ordered, uncached device memory.
	Device

	// Cache selects cacheable normal memory.
	Cache
)

// Common combinations.
const (
	ReadOnly      = Present | Read
	ReadWrite     = Present | Read | Write
	ReadExecute   = Present | Read | Execute
	UserReadWrite = Present | User | Read | Write
	UserReadExec  = Present | User | Read | Execute
	KernelRW      = Present | Read | Write | Global
	KernelRWX     = Present | Read | Write | Execute | Global
)

// permissionMask is the set of flags compared by Equivalent.
const permissionMask = Present | User | Read | Write | Execute | Global

var flagNames = []struct {
	flag MappingFlags
	name string
}{
	{Present, "P"},
	{User, "U"},
	{Read, "R"},
	{Write, "W"},
	{Execute, "X"},
	{Accessed, "A"},
	{Dirty, "D"},
	{Global, "G"},
	{Device, "DEV"},
	{Cache, "C"},
}

// Contains returns true if every flag in o is set in f.
func (f MappingFlags) Contains(o MappingFlags) bool {
	return f&o == o
}

// String implements fmt.Stringer.String.
func (f MappingFlags) String() string {
	if f == 0 {
		return "-"
	}
	var parts []string
	for _, n := range flagNames {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlags parses the form produced by String, e.g. "P|U|R|W". Names are
// case insensitive.
func ParseFlags(s string) (MappingFlags, error) {
	if s == "-" || s == "" {
		return 0, nil
	}
	var f MappingFlags
	for _, part := range strings.Split(s, "|") {
		found := false
		for _, n := range flagNames {
			if strings.EqualFold(part, n.name) {
				f |= n.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown mapping flag %q", part)
		}
	}
	return f, nil
}

// Normalize returns f with the implications every format applies. Write
// implies Read, any access right implies Present, and a present mapping is
// always readable. The hardware-managed Accessed and Dirty bits are dropped.
func (f MappingFlags) Normalize() MappingFlags {
	if f&(Read|Write|Execute) != 0 {
		f |= Present
	}
	if f&Present != 0 {
		f |= Read
	}
	return f &^ (Accessed | Dirty)
}

// Equivalent returns true if a and b grant the same access.
func Equivalent(a, b MappingFlags) bool {
	return a.Normalize()&permissionMask == b.Normalize()&permissionMask
}
