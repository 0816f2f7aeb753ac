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

package trap

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/mohae/deepcopy"
	"polyhal.dev/hal/pkg/addr"
	"polyhal.dev/hal/pkg/cpu"
	"polyhal.dev/hal/pkg/devices"
	"polyhal.dev/hal/pkg/frame"
	"polyhal.dev/hal/pkg/kcontext"
	"polyhal.dev/hal/pkg/log"
	"polyhal.dev/hal/pkg/percpu"
	"polyhal.dev/hal/pkg/physmem"
)

// State is the trap state of a core.
type State int

const (
	// KernelMode is ordinary kernel execution.
	KernelMode State = iota

	// UserMode is execution of a user program entered by EnterUser.
	UserMode

	// InTrap is execution of the kernel's trap handler.
	InTrap
)

// String implements fmt.Stringer.String.
func (s State) String() string {
	switch s {
	case KernelMode:
		return "KernelMode"
	case UserMode:
		return "UserMode"
	case InTrap:
		return "InTrap"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// UserProgram runs on a core in user mode until it raises an event.
type UserProgram func(c *cpu.Core) cpu.Event

// FatalError is raised, by panic, for traps the HAL cannot hand to the
// kernel.
type FatalError struct {
	Arch  string
	Core  int
	Cause uint64
	Addr  uint64

	// Frame is a snapshot of the trap frame.
	Frame Frame

	// Err is the decode error.
	Err error
}

// Error implements error.Error.
func (e *FatalError) Error() string {
	return fmt.Sprintf("%s core %d: fatal trap cause %#x addr %#x: %v", e.Arch, e.Core, e.Cause, e.Addr, e.Err)
}

// Unwrap returns the decode error.
func (e *FatalError) Unwrap() error {
	return e.Err
}

// Config configures a Machine.
type Config struct {
	// Core is the core the machine runs.
	Core *cpu.Core

	// Arch is the core's trap stub.
	Arch Arch

	// Switcher saves the kernel's callee-saved registers and thread
	// pointer while the core runs in user mode.
	Switcher kcontext.Switcher

	// Memory holds trap frames and kernel stacks.
	Memory *physmem.Arena

	// DirectMap translates kernel stack and frame addresses.
	DirectMap addr.DirectMap

	// PerCPU locates the core's area through its per-CPU register.
	PerCPU *percpu.Manager

	// Devices are the core's interrupt controller and timer.
	Devices *devices.Set

	// Frames allocates user trap frames.
	Frames frame.Allocator

	// Handler is the kernel's trap callback.
	Handler Handler

	// Log receives trap diagnostics. Nil means the global logger.
	Log log.Logger
}

// Machine runs the trap state machine of one core.
type Machine struct {
	cfg      Config
	log      log.Logger
	spurious log.Logger

	state State
	depth int

	// kernel is the kernel context parked by EnterUser.
	kernel kcontext.Context
}

// NewMachine returns a machine for cfg.Core in KernelMode.
func NewMachine(cfg Config) *Machine {
	if cfg.Core == nil || cfg.Arch == nil || cfg.Switcher == nil || cfg.Memory == nil || cfg.Handler == nil {
		panic("trap.NewMachine: core, arch, switcher, memory and handler are required")
	}
	if cfg.Devices == nil {
		cfg.Devices = &devices.Set{}
	}
	l := cfg.Log
	if l == nil {
		l = log.Log()
	}
	return &Machine{
		cfg:      cfg,
		log:      l,
		spurious: log.RateLimitedLogger(l, time.Second),
		kernel:   cfg.Switcher.NewContext(),
	}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Depth returns the number of traps currently being handled.
func (m *Machine) Depth() int {
	return m.depth
}

// Core returns the core.
func (m *Machine) Core() *cpu.Core {
	return m.cfg.Core
}

// Arch returns the trap stub.
func (m *Machine) Arch() Arch {
	return m.cfg.Arch
}

func (m *Machine) stackPhys(v uint64) addr.PhysAddr {
	p, ok := m.cfg.DirectMap.Phys(addr.VirtAddr(v))
	if !ok || !m.cfg.Memory.Contains(p, m.cfg.Arch.FrameSize()) {
		panic(fmt.Sprintf("trap: %s core %d: stack %#x is not kernel memory", m.cfg.Arch.Name(), m.cfg.Core.ID, v))
	}
	return p
}

// Trap takes a hardware event on a core executing in the kernel: the frame
// is pushed on the current kernel stack, the handler runs and the
// interrupted state is restored. Traps may nest.
func (m *Machine) Trap(ev cpu.Event) Type {
	if m.state == UserMode {
		panic("trap.Machine.Trap: core is in user mode; events are raised by the user program")
	}
	c, a := m.cfg.Core, m.cfg.Arch
	a.Latch(c, ev)

	sp := (a.SP(c) - a.FrameSize()) &^ 15
	f := a.FrameAt(m.cfg.Memory, m.stackPhys(sp))
	a.Save(c, f)
	a.SetSP(c, sp)

	prev := m.state
	m.state = InTrap
	m.depth++
	t := m.dispatch(f)
	m.depth--
	m.state = prev

	a.Restore(c, f)
	return t
}

// raiser is implemented by interrupt controllers that can be asserted from
// software.
type raiser interface {
	Raise(vector int) bool
}

// Inject raises the hardware event that decodes to t and takes it as a
// kernel trap. Interrupt vectors are asserted at the controller first, if
// it supports that.
func (m *Machine) Inject(t Type) Type {
	ev, vector := m.cfg.Arch.Synthesize(t)
	if vector >= 0 {
		if r, ok := m.cfg.Devices.IRQ.(raiser); ok && !r.Raise(vector) {
			m.log.Debugf("%s core %d: vector %d is masked", m.cfg.Arch.Name(), m.cfg.Core.ID, vector)
		}
	}
	return m.Trap(ev)
}

// EnterUser returns to user mode with the register state in f, which must
// be a frame from NewUserFrame, and runs prog until it raises an event. The
// trap is handled and the reason for coming back is returned; f then holds
// the interrupted user state. The kernel's stack pointer, thread pointer
// and callee-saved registers are as they were before the call.
func (m *Machine) EnterUser(f Frame, prog UserProgram) EscapeReason {
	if m.state != KernelMode {
		panic(fmt.Sprintf("trap.Machine.EnterUser: called in %v", m.state))
	}
	if !f.IsUser() {
		panic("trap.Machine.EnterUser: frame does not return to user mode")
	}
	c, a := m.cfg.Core, m.cfg.Arch
	area, err := m.cfg.PerCPU.Local(c)
	if err != nil {
		panic(fmt.Sprintf("trap.Machine.EnterUser: %v", err))
	}
	p, ok := m.framePhys(f)
	if !ok {
		panic("trap.Machine.EnterUser: frame is not in physical memory")
	}
	area.SetKernelSP(a.SP(c))
	area.SetUserContext(uint64(m.cfg.DirectMap.Virt(p)))
	m.cfg.Switcher.Save(c, m.kernel)

	a.Restore(c, f)
	m.state = UserMode
	ev := prog(c)

	a.Latch(c, ev)
	return m.userTrap().Escape()
}

// userTrap is the entry path for traps from user mode. The kernel stack and
// the frame receiving user state come from the per-CPU header.
func (m *Machine) userTrap() Type {
	c, a := m.cfg.Core, m.cfg.Arch
	if !a.FromUser(c) {
		panic("trap: user trap latched from kernel mode")
	}
	a.SwapPerCPU(c)
	area, err := m.cfg.PerCPU.Local(c)
	if err != nil {
		panic(fmt.Sprintf("trap: user trap without per-CPU area: %v", err))
	}
	h := area.Header()
	f := a.FrameAt(m.cfg.Memory, m.stackPhys(h.UserContext))
	area.SetUserSP(a.SP(c))
	a.Save(c, f)
	a.SetSP(c, h.KernelSP)
	m.cfg.Switcher.Load(c, m.kernel)

	m.state = InTrap
	m.depth++
	t := m.dispatch(f)
	m.depth--
	m.state = KernelMode
	return t
}

func (m *Machine) dispatch(f Frame) Type {
	c := m.cfg.Core
	t, err := m.cfg.Arch.Decode(c, f, m.cfg.Devices)
	switch {
	case errors.Is(err, ErrSpurious):
		m.spurious.Warningf("%s core %d: spurious interrupt, cause %#x", m.cfg.Arch.Name(), c.ID, c.Sys.Cause)
		return IRQ(-1)
	case err != nil:
		m.fatal(f, err)
	}
	if m.log.IsLogging(log.Debug) {
		m.log.Debugf("%s core %d: trap %v at pc %#x", m.cfg.Arch.Name(), c.ID, t, f.Get(PC))
	}
	m.cfg.Handler.HandleTrap(f, t)
	if t.Kind == ExternalIRQ && m.cfg.Devices.IRQ != nil {
		m.cfg.Devices.IRQ.Complete(t.Vector)
	}
	return t
}

func (m *Machine) fatal(f Frame, err error) {
	c := m.cfg.Core
	fe := &FatalError{
		Arch:  m.cfg.Arch.Name(),
		Core:  c.ID,
		Cause: c.Sys.Cause,
		Addr:  c.Sys.FaultAddr,
		Frame: deepcopy.Copy(f).(Frame),
		Err:   err,
	}
	var dump bytes.Buffer
	f.Dump(&dump)
	m.log.Warningf("%v\n%s", fe, dump.String())
	panic(fe)
}

// NewUserFrame allocates a frame that enters user mode at entry with the
// given stack pointer.
func (m *Machine) NewUserFrame(entry, sp uint64) (Frame, error) {
	if m.cfg.Frames == nil {
		return nil, fmt.Errorf("trap: no frame allocator: %w", frame.ErrNoMemory)
	}
	p, err := m.cfg.Frames.Alloc()
	if err != nil {
		return nil, fmt.Errorf("allocating user frame: %w", err)
	}
	if err := m.cfg.Memory.Zero(p, addr.PageSize); err != nil {
		m.cfg.Frames.Dealloc(p)
		return nil, err
	}
	f := m.cfg.Arch.FrameAt(m.cfg.Memory, p)
	m.cfg.Arch.InitUserFrame(f, entry, sp)
	return f, nil
}

// FreeUserFrame releases a frame from NewUserFrame.
func (m *Machine) FreeUserFrame(f Frame) {
	p, ok := m.framePhys(f)
	if !ok {
		panic("trap.Machine.FreeUserFrame: frame is not in physical memory")
	}
	m.cfg.Frames.Dealloc(p.RoundDown())
}
