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

// Package devices defines the driver collaborators the HAL relies on, and
// simulated implementations of them.
package devices

// Console is a byte-oriented debug console, typically a UART.
type Console interface {
	// PutChar writes one byte.
	PutChar(c byte)

	// GetChar reads one byte, if one is available.
	GetChar() (byte, bool)
}

// IRQController is the interrupt controller.
type IRQController interface {
	// Enable unmasks the given vector.
	Enable(vector int)

	// Disable masks the given vector.
	Disable(vector int)

	// Pending claims the highest priority pending vector.
	Pending() (int, bool)

	// Complete signals end of interrupt for a claimed vector.
	Complete(vector int)
}

// Timer is the per-core timer.
type Timer interface {
	// Now returns the current tick count.
	Now() uint64

	// SetDeadline arms the timer interrupt for the given tick.
	SetDeadline(ticks uint64)
}

// Set bundles the collaborators used by one core.
type Set struct {
	Console Console
	IRQ     IRQController
	Timer   Timer

	// TimerInterval is the number of ticks between timer interrupts.
	TimerInterval uint64
}

// RearmTimer programs the next periodic deadline.
func (s *Set) RearmTimer() {
	if s.Timer == nil {
		return
	}
	s.Timer.SetDeadline(s.Timer.Now() + s.TimerInterval)
}
