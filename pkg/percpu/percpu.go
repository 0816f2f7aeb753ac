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

// Package percpu provides per-core private storage.
//
// Every core owns one area: a reserved Header followed by a copy of the
// Template holding all declared per-CPU variables. The area's base address
// is bound to an architecture register, so code running on a core finds
// its own copy at a fixed offset from that register.
package percpu

import (
	"encoding/binary"
	"fmt"
	"sync"

	"polyhal.dev/hal/pkg/addr"
)

// HeaderSize is the size of the reserved header at the start of each area.
const HeaderSize = 64

// Header field offsets, used by trap entry code.
const (
	SelfOffset        = 0
	ValidOffset       = 8
	UserSPOffset      = 16
	KernelSPOffset    = 24
	UserContextOffset = 32
)

// Header is the reserved prefix of an area.
type Header struct {
	// Self is the virtual address of the area.
	Self uint64

	// Valid equals Self once the area is initialized.
	Valid uint64

	// UserSP is the user stack pointer saved on trap entry.
	UserSP uint64

	// KernelSP is the kernel stack pointer to switch to on a trap from
	// user mode.
	KernelSP uint64

	// UserContext is the virtual address of the trap frame receiving user
	// state.
	UserContext uint64
}

// VarInfo describes one declared variable.
type VarInfo struct {
	Name   string
	Offset uintptr
	Size   uintptr
}

// Template is the initial image of every area, after the header.
type Template struct {
	mu     sync.Mutex
	data   []byte
	vars   []VarInfo
	sealed bool
}

// NewTemplate returns an empty template.
func NewTemplate() *Template {
	return &Template{}
}

// Var is a handle to a per-CPU variable of type T.
type Var[T any] struct {
	name   string
	offset uintptr
	size   int
}

// Declare adds a variable of type T with the given initial value to t. T
// must have a fixed encoded size (no slices, maps, strings or pointers).
// Declare panics once t is sealed.
func Declare[T any](t *Template, name string, initial T) Var[T] {
	size := binary.Size(initial)
	if size <= 0 {
		panic(fmt.Sprintf("percpu.Declare(%q): %T has no fixed size", name, initial))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sealed {
		panic(fmt.Sprintf("percpu.Declare(%q): template is sealed", name))
	}
	off := (len(t.data) + 7) &^ 7
	t.data = append(t.data, make([]byte, off+size-len(t.data))...)
	if _, err := binary.Encode(t.data[off:], binary.LittleEndian, initial); err != nil {
		panic(fmt.Sprintf("percpu.Declare(%q): %v", name, err))
	}
	t.vars = append(t.vars, VarInfo{Name: name, Offset: HeaderSize + uintptr(off), Size: uintptr(size)})
	return Var[T]{name: name, offset: HeaderSize + uintptr(off), size: size}
}

// Seal freezes the layout.
func (t *Template) Seal() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealed = true
}

// Size returns the size of one area, including the header.
func (t *Template) Size() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return HeaderSize + uint64((len(t.data)+7)&^7)
}

// Vars returns the declared variables.
func (t *Template) Vars() []VarInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]VarInfo(nil), t.vars...)
}

// image returns the template bytes.
func (t *Template) image() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data
}

// Name returns the variable name.
func (v Var[T]) Name() string {
	return v.name
}

// Offset returns the offset of the variable from the area base.
func (v Var[T]) Offset() uintptr {
	return v.offset
}

// Get returns the value in area a.
func (v Var[T]) Get(a *Area) T {
	var x T
	if _, err := binary.Decode(a.mem[v.offset:int(v.offset)+v.size], binary.LittleEndian, &x); err != nil {
		panic(fmt.Sprintf("percpu: reading %q: %v", v.name, err))
	}
	return x
}

// Set stores x in area a.
func (v Var[T]) Set(a *Area, x T) {
	if _, err := binary.Encode(a.mem[v.offset:int(v.offset)+v.size], binary.LittleEndian, x); err != nil {
		panic(fmt.Sprintf("percpu: writing %q: %v", v.name, err))
	}
}

// Area is one core's per-CPU block.
type Area struct {
	core int
	phys addr.PhysAddr
	virt addr.VirtAddr
	mem  []byte
}

// Core returns the owning core.
func (a *Area) Core() int {
	return a.core
}

// Base returns the virtual address of the area, the value bound to the
// per-CPU register.
func (a *Area) Base() addr.VirtAddr {
	return a.virt
}

// Phys returns the physical address of the area.
func (a *Area) Phys() addr.PhysAddr {
	return a.phys
}

// Size returns the area size in bytes.
func (a *Area) Size() uint64 {
	return uint64(len(a.mem))
}

func (a *Area) word(off int) uint64 {
	return binary.LittleEndian.Uint64(a.mem[off:])
}

func (a *Area) setWord(off int, v uint64) {
	binary.LittleEndian.PutUint64(a.mem[off:], v)
}

// Header returns a copy of the header.
func (a *Area) Header() Header {
	return Header{
		Self:        a.word(SelfOffset),
		Valid:       a.word(ValidOffset),
		UserSP:      a.word(UserSPOffset),
		KernelSP:    a.word(KernelSPOffset),
		UserContext: a.word(UserContextOffset),
	}
}

// SetKernelSP records the kernel stack used for traps from user mode.
func (a *Area) SetKernelSP(sp uint64) {
	a.setWord(KernelSPOffset, sp)
}

// SetUserSP records the interrupted user stack pointer.
func (a *Area) SetUserSP(sp uint64) {
	a.setWord(UserSPOffset, sp)
}

// SetUserContext records the trap frame receiving user state.
func (a *Area) SetUserContext(frame uint64) {
	a.setWord(UserContextOffset, frame)
}
