// This file is part of Coreminer.
//
// Coreminer is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Coreminer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Coreminer.  If not, see <https://www.gnu.org/licenses/>.

// Package debuggee owns one traced child process end to end: launching it
// under ptrace, driving its run-state machine through cont/step/step-in/
// step-over/step-out, filtering the signals wait_signal observes, and
// composing the breakpoint, dwarfdata, dwarfdata/expr, unwind, registers,
// disasm and procmap packages into the session-level operations the
// debugger façade dispatches to.
package debuggee

import (
	"debug/elf"
	"os/exec"
	"sync"
	"syscall"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/breakpoint"
	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/disasm"
	"github.com/TalpaLabs/coreminer/dwarfdata"
	"github.com/TalpaLabs/coreminer/logger"
	"github.com/TalpaLabs/coreminer/procmap"
	"github.com/TalpaLabs/coreminer/registers"
	"github.com/TalpaLabs/coreminer/unwind"
)

// signalsToStop are the signals wait_signal records as the session's
// last_signal and stops for, per spec §4.9 — every one of them is an
// organic signal the tracee generated, not one the tracer induced.
var signalsToStop = map[syscall.Signal]bool{
	syscall.SIGTERM: true,
	syscall.SIGINT:  true,
	syscall.SIGILL:  true,
	syscall.SIGSEGV: true,
	syscall.SIGABRT: true,
	syscall.SIGBUS:  true,
	syscall.SIGFPE:  true,
}

// Session owns one attached child: its pid, its breakpoints, its parsed
// DWARF symbol tree, and the run-state machine. Every exported method is
// safe for the façade to call from a single dispatcher goroutine; Session
// itself serializes via mu rather than relying on a caller's discipline.
type Session struct {
	mu sync.Mutex

	path string
	argv []string

	proc  *process
	bp    *breakpoint.Table
	tree  *dwarfdata.Tree
	unw   *unwind.Unwinder
	bias  addr.Address

	state    RunState
	exitCode int

	lastSignal    syscall.Signal
	hasLastSignal bool
}

// New returns a Session in the NotStarted state.
func New() *Session {
	return &Session{}
}

// State reports the session's current run state.
func (s *Session) State() RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PID returns the traced child's process id, if one has been launched.
func (s *Session) PID() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return 0, false
	}
	return s.proc.pid, true
}

// ExitCode returns the child's exit status (or -signal, if it died from a
// signal) once the session has reached Exited.
func (s *Session) ExitCode() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitCode, s.state == Exited
}

// LastSignal returns the most recent organic signal recorded by wait_signal
// that has not yet been re-injected by a subsequent Continue.
func (s *Session) LastSignal() (syscall.Signal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSignal, s.hasLastSignal
}

// Run forks path (resolved against PATH) with argv, requests PTRACE_TRACEME
// in the child, waits for the initial post-exec SIGTRAP, then builds the
// DWARF symbol tree and resolves the load bias (§4.13) on a best-effort
// basis: a binary with no debug information still runs, it simply has no
// symbol tree.
func (s *Session) Run(path string, argv []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != NotStarted {
		return cmerr.New(cmerr.ChildExited, "session already has a child (state=%s)", s.state)
	}

	resolved, err := exec.LookPath(path)
	if err != nil {
		return cmerr.Wrap(cmerr.Executable, err, "resolve %q on PATH", path)
	}

	proc, err := startTraced(resolved, argv)
	if err != nil {
		return err
	}
	s.proc = proc
	s.path = resolved
	s.argv = argv

	if _, err := proc.wait(); err != nil {
		return err
	}
	s.state = Stopped

	s.bp = breakpoint.NewTable(proc)

	tree, err := dwarfdata.Load(resolved)
	if err != nil {
		logger.Logf("debuggee", "no usable DWARF in %q: %v", resolved, err)
		return nil
	}
	s.tree = tree

	if err := s.resolveBiasLocked(); err != nil {
		logger.Logf("debuggee", "load bias for %q: %v", resolved, err)
	}

	if section, err := loadDebugFrameSection(resolved); err != nil {
		logger.Logf("debuggee", "no .debug_frame in %q: %v", resolved, err)
	} else if u, err := unwind.New(section); err != nil {
		logger.Logf("debuggee", "parse .debug_frame for %q: %v", resolved, err)
	} else {
		s.unw = u
	}

	return nil
}

// loadDebugFrameSection reads the raw ".debug_frame" section of an ELF
// file, if present. A missing section is not an error — an empty section is
// a valid, if useless, input to unwind.New.
func loadDebugFrameSection(path string) ([]byte, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, cmerr.Wrap(cmerr.Io, err, "open ELF %q", path)
	}
	defer ef.Close()

	sec := ef.Section(".debug_frame")
	if sec == nil {
		return nil, nil
	}
	return sec.Data()
}

// resolveBiasLocked implements §4.13: find the process-map region backing
// the executable with the lowest start address, and record
// region.start - firstLoadVaddr as the bias every DWARF PC query needs.
func (s *Session) resolveBiasLocked() error {
	first, ok := s.tree.FirstLoadVaddr()
	if !ok {
		return nil
	}

	regions, err := procmap.Load(s.proc.pid)
	if err != nil {
		return err
	}

	var lowest *procmap.Region
	for i := range regions {
		r := &regions[i]
		if r.Path != s.path {
			continue
		}
		if lowest == nil || r.Start < lowest.Start {
			lowest = r
		}
	}
	if lowest == nil {
		return cmerr.New(cmerr.Io, "no mapped region backs %q", s.path)
	}

	s.bias = lowest.Start.Sub(int64(first))
	return nil
}

func (s *Session) requireStopped() error {
	switch s.state {
	case NotStarted:
		return cmerr.New(cmerr.ChildExited, "no child has been run yet")
	case Exited:
		return cmerr.New(cmerr.ChildExited, "child has exited")
	case Running:
		return cmerr.New(cmerr.Ptrace, "child is running")
	}
	return nil
}

// afterStepOverErr absorbs an error from breakpoint.Table.StepOverBreakpoint
// that happened only because the child exited mid-step (the re-enable poke
// after the step fails once the pid is gone); any other error still
// propagates.
func (s *Session) afterStepOverErr(err error) error {
	if s.proc.exited {
		s.state = Exited
		s.exitCode = s.proc.exitCode
		return nil
	}
	return err
}

// waitSignal implements §4.9's signal filter: it blocks on the child,
// consuming wait events until one leaves the session Stopped or Exited.
func (s *Session) waitSignal() error {
	for {
		ws, err := s.proc.wait()
		if err != nil {
			return err
		}

		switch {
		case ws.Exited():
			s.state = Exited
			s.exitCode = ws.ExitStatus()
			return nil

		case ws.Signaled():
			s.state = Exited
			s.exitCode = -int(ws.Signal())
			return nil

		case ws.Stopped():
			sig := ws.StopSignal()
			switch {
			case sig == syscall.SIGTRAP:
				s.state = Stopped
				return s.adjustPCAfterTrapLocked()

			case sig == syscall.SIGWINCH:
				if err := s.proc.cont(0); err != nil {
					return err
				}
				continue

			case signalsToStop[sig]:
				s.state = Stopped
				s.lastSignal = sig
				s.hasLastSignal = true
				return nil

			default:
				logger.Logf("debuggee", "swallowing signal %s for pid %d, continuing", sig, s.proc.pid)
				if err := s.proc.cont(0); err != nil {
					return err
				}
				continue
			}

		default:
			continue
		}
	}
}

// adjustPCAfterTrapLocked implements "update PC to rip-1 if the trap was
// from an int3 patch": the kernel leaves rip one byte past the patched
// address after an int3 traps, so rip-1 is only rewound when a breakpoint
// is actually recorded there.
func (s *Session) adjustPCAfterTrapLocked() error {
	pc, err := s.proc.PC()
	if err != nil {
		return err
	}
	if s.bp.IsAt(pc.Sub(1)) {
		return s.proc.SetPC(pc.Sub(1))
	}
	return nil
}

// Continue implements §4.9's cont(): step over a breakpoint at the current
// PC if one is there, re-inject any pending organic signal, then run until
// the next wait-worthy event.
func (s *Session) Continue() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	return s.continueLocked()
}

func (s *Session) continueLocked() error {
	if err := s.bp.StepOverBreakpoint(s.proc); err != nil {
		if err := s.afterStepOverErr(err); err != nil {
			return err
		}
	}
	if s.state == Exited {
		return nil
	}

	sig := syscall.Signal(0)
	if s.hasLastSignal {
		sig = s.lastSignal
		s.hasLastSignal = false
	}
	if err := s.proc.cont(sig); err != nil {
		return err
	}
	s.state = Running
	return s.waitSignal()
}

// singleStepOnceLocked advances the child by exactly one instruction: the
// step-over-breakpoint dance if PC has a breakpoint (which itself performs
// the single step), otherwise a direct PTRACE_SINGLESTEP.
func (s *Session) singleStepOnceLocked() error {
	pc, err := s.proc.PC()
	if err != nil {
		return err
	}
	hadBreakpoint := s.bp.IsAt(pc)

	if err := s.bp.StepOverBreakpoint(s.proc); err != nil {
		if err := s.afterStepOverErr(err); err != nil {
			return err
		}
	}
	if s.state == Exited {
		return nil
	}
	if hadBreakpoint {
		s.state = Stopped
		return nil
	}

	if err := s.proc.singleStep(); err != nil {
		return err
	}
	s.state = Running
	return s.waitSignal()
}

// Step advances the child by exactly one machine instruction.
func (s *Session) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	return s.singleStepOnceLocked()
}

// StepIn single-steps until PC leaves the subprogram enclosing the current
// PC, per §4.9's "into a call" approximation.
func (s *Session) StepIn() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}

	pc, err := s.proc.PC()
	if err != nil {
		return err
	}

	var start *dwarfdata.Symbol
	if s.tree != nil {
		start, _ = s.tree.ByPC(pc, s.bias)
	}

	for {
		if err := s.singleStepOnceLocked(); err != nil {
			return err
		}
		if s.state == Exited {
			return nil
		}

		newPC, err := s.proc.PC()
		if err != nil {
			return err
		}
		if start == nil || !start.ContainsPC(newPC) {
			return nil
		}
	}
}

// runToTransientLocked installs a breakpoint at target unless one is
// already there, continues, and removes the breakpoint it installed once
// the child stops again; if the child has exited instead, the breakpoint is
// left in the table — the shared machinery behind StepOver and StepOut.
func (s *Session) runToTransientLocked(target addr.Address) error {
	installedHere := !s.bp.IsAt(target)
	if installedHere {
		if err := s.bp.Set(target); err != nil {
			return err
		}
	}

	contErr := s.continueLocked()

	if installedHere && s.state != Exited {
		if err := s.bp.Remove(target); err != nil {
			if contErr == nil {
				contErr = err
			}
		}
	}
	return contErr
}

// StepOver approximates source-level "next": disassemble the instruction at
// the current PC to find where it ends, run to that address, per §4.9.
func (s *Session) StepOver() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}

	pc, err := s.proc.PC()
	if err != nil {
		return err
	}

	code, err := readRaw(s.proc, pc, 15)
	if err != nil {
		return err
	}
	lines, err := disasm.Disassemble(code, pc, 1, false, s.bp)
	if err != nil || len(lines) == 0 {
		return cmerr.Wrap(cmerr.Dwarf, err, "disassemble at %s for step-over", pc)
	}

	next := pc.Add(int64(len(lines[0].Bytes)))
	return s.runToTransientLocked(next)
}

// StepOut unwinds one frame to find the return address, then runs to it,
// per §4.9.
func (s *Session) StepOut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}

	regs, err := s.registersLocked()
	if err != nil {
		return err
	}
	frames, err := s.backtraceLocked(regs)
	if err != nil {
		return err
	}
	if len(frames) < 2 {
		return cmerr.New(cmerr.Dwarf, "no caller frame to step out to")
	}

	return s.runToTransientLocked(frames[1].PC)
}

// SetBreakpoint installs a breakpoint at a.
func (s *Session) SetBreakpoint(a addr.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	return s.bp.Set(a)
}

// DeleteBreakpoint removes the breakpoint at a.
func (s *Session) DeleteBreakpoint(a addr.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	return s.bp.Remove(a)
}

// Breakpoints lists every installed breakpoint, ordered by address.
func (s *Session) Breakpoints() []breakpoint.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bp == nil {
		return nil
	}
	return s.bp.List()
}

// ReadMemory reads length bytes at a, breakpoint-transparent.
func (s *Session) ReadMemory(a addr.Address, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return nil, err
	}
	return s.bp.ReadMemoryTransparent(s.proc, a, length)
}

// WriteMemory writes data at a.
func (s *Session) WriteMemory(a addr.Address, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	return writeBytes(s.proc, a, data)
}

func (s *Session) registersLocked() (*registers.Snapshot, error) {
	return s.proc.regs.Snapshot()
}

// Registers returns the child's full register snapshot.
func (s *Session) Registers() (*registers.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return nil, err
	}
	return s.registersLocked()
}

// SetRegister writes a single named register.
func (s *Session) SetRegister(name string, value uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	return s.proc.regs.Set(name, value)
}

func (s *Session) backtraceLocked(regs *registers.Snapshot) ([]unwind.Frame, error) {
	if s.unw == nil {
		return []unwind.Frame{{Index: 0, PC: addr.Address(regs.Rip), Function: "<unknown>"}}, nil
	}
	return s.unw.Backtrace(regs, s.proc, s.tree, s.bias)
}

// Backtrace returns the symbolicated call stack, innermost frame first.
func (s *Session) Backtrace() ([]unwind.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return nil, err
	}
	regs, err := s.registersLocked()
	if err != nil {
		return nil, err
	}
	return s.backtraceLocked(regs)
}

// Disassemble decodes count instructions at a. Unlike ReadMemory, the bytes
// fed to the decoder are the raw (possibly 0xCC-patched) physical memory —
// disasm.Disassemble itself consults the breakpoint table to cook them when
// literal is false.
func (s *Session) Disassemble(a addr.Address, count int, literal bool) ([]disasm.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return nil, err
	}

	code, err := readRaw(s.proc, a, count*15)
	if err != nil {
		return nil, err
	}
	return disasm.Disassemble(code, a, count, literal, s.bp)
}

// ProcessMap returns the child's current /proc/<pid>/maps regions.
func (s *Session) ProcessMap() ([]procmap.Region, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return nil, err
	}
	return procmap.Load(s.proc.pid)
}

// SymbolsByName looks up every symbol named name in the parsed DWARF tree.
func (s *Session) SymbolsByName(name string) ([]dwarfdata.Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tree == nil {
		return nil, cmerr.New(cmerr.NoDebugInfo, "no DWARF symbol tree loaded")
	}
	return s.tree.ByName(name), nil
}

// Quit disables every breakpoint, detaches from the child, and marks the
// session Exited, per §5's "quit" contract.
func (s *Session) Quit() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bp != nil {
		s.bp.DisableAll()
	}
	if s.proc != nil && s.state != Exited {
		if err := s.proc.detach(); err != nil {
			logger.Logf("debuggee", "detach pid %d: %v", s.proc.pid, err)
		}
		if err := s.proc.cmd.Process.Kill(); err != nil {
			logger.Logf("debuggee", "kill pid %d: %v", s.proc.pid, err)
		}
	}
	s.state = Exited
	return nil
}
