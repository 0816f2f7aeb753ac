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

package devices

import (
	"bytes"
	"slices"
	"sync"
)

// BufferConsole is a Console backed by memory buffers.
type BufferConsole struct {
	mu  sync.Mutex
	out bytes.Buffer
	in  []byte
}

// PutChar implements Console.PutChar.
func (b *BufferConsole) PutChar(c byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out.WriteByte(c)
}

// GetChar implements Console.GetChar.
func (b *BufferConsole) GetChar() (byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.in) == 0 {
		return 0, false
	}
	c := b.in[0]
	b.in = b.in[1:]
	return c, true
}

// Feed queues input bytes.
func (b *BufferConsole) Feed(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.in = append(b.in, data...)
}

// Output returns everything written so far.
func (b *BufferConsole) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.out.String()
}

// SimIRQ is an interrupt controller delivering raised vectors in order.
type SimIRQ struct {
	mu        sync.Mutex
	enabled   map[int]bool
	pending   []int
	completed []int
}

// NewSimIRQ returns a controller with every vector masked.
func NewSimIRQ() *SimIRQ {
	return &SimIRQ{enabled: make(map[int]bool)}
}

// Enable implements IRQController.Enable.
func (s *SimIRQ) Enable(vector int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[vector] = true
}

// Disable implements IRQController.Disable.
func (s *SimIRQ) Disable(vector int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.enabled, vector)
}

// Raise asserts vector. It returns false if the vector is masked.
func (s *SimIRQ) Raise(vector int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.enabled[vector] {
		return false
	}
	s.pending = append(s.pending, vector)
	return true
}

// Pending implements IRQController.Pending.
func (s *SimIRQ) Pending() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return 0, false
	}
	v := s.pending[0]
	s.pending = s.pending[1:]
	return v, true
}

// Complete implements IRQController.Complete.
func (s *SimIRQ) Complete(vector int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, vector)
}

// Completed returns the vectors completed so far.
func (s *SimIRQ) Completed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.completed)
}

// SimTimer is a manually advanced timer.
type SimTimer struct {
	mu       sync.Mutex
	now      uint64
	deadline uint64
	armed    bool
}

// Now implements Timer.Now.
func (t *SimTimer) Now() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}

// SetDeadline implements Timer.SetDeadline.
func (t *SimTimer) SetDeadline(ticks uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deadline = ticks
	t.armed = true
}

// Deadline returns the armed deadline.
func (t *SimTimer) Deadline() (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deadline, t.armed
}

// Advance moves time forward and reports whether the deadline passed. A
// fired deadline is disarmed.
func (t *SimTimer) Advance(ticks uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now += ticks
	if t.armed && t.now >= t.deadline {
		t.armed = false
		return true
	}
	return false
}

// NewSimSet returns a Set of simulated devices.
func NewSimSet(interval uint64) *Set {
	return &Set{
		Console:       &BufferConsole{},
		IRQ:           NewSimIRQ(),
		Timer:         &SimTimer{},
		TimerInterval: interval,
	}
}
