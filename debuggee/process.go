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

package debuggee

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/registers"
)

// process is the thin ptrace wrapper a Session drives. It implements every
// small capability interface the upstream packages want — breakpoint.Memory,
// breakpoint.Tracee, dwarfdata/expr.Memory, unwind.Memory — so Session can
// hand the same value to all of them without any package depending on
// *process directly.
type process struct {
	cmd  *exec.Cmd
	pid  int
	regs *registers.File

	exited   bool
	exitCode int
}

// startTraced forks path with argv, requesting PTRACE_TRACEME in the child
// via os/exec's SysProcAttr, and returns once the fork has happened. The
// caller must still wait() for the initial post-exec SIGTRAP.
func startTraced(path string, argv []string) (*process, error) {
	cmd := exec.Command(path, argv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return nil, cmerr.Wrap(cmerr.ExecFailed, err, "start %q", path)
	}

	pid := cmd.Process.Pid
	return &process{cmd: cmd, pid: pid, regs: registers.NewFile(pid)}, nil
}

// wait blocks until the next ptrace-visible event and records whether the
// child has now terminated, so callers can distinguish "ptrace call failed"
// from "the process we were waiting on is gone".
func (p *process) wait() (syscall.WaitStatus, error) {
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(p.pid, &ws, 0, nil)
	if err != nil {
		return ws, cmerr.Wrap(cmerr.Ptrace, err, "wait4 pid=%d", p.pid)
	}
	if ws.Exited() {
		p.exited = true
		p.exitCode = ws.ExitStatus()
	} else if ws.Signaled() {
		p.exited = true
		p.exitCode = -int(ws.Signal())
	}
	return ws, nil
}

// PeekWord implements breakpoint.Memory.
func (p *process) PeekWord(a addr.Address) (addr.Word, error) {
	var buf [8]byte
	n, err := syscall.PtracePeekData(p.pid, uintptr(a), buf[:])
	if err != nil {
		return 0, cmerr.Wrap(cmerr.Ptrace, err, "peek at %s", a)
	}
	if n != len(buf) {
		return 0, cmerr.New(cmerr.MemoryRead, "short peek at %s: got %d bytes", a, n)
	}
	return addr.WordFromBytes(buf[:]), nil
}

// PokeWord implements breakpoint.Memory.
func (p *process) PokeWord(a addr.Address, w addr.Word) error {
	wb := w.Bytes()
	n, err := syscall.PtracePokeData(p.pid, uintptr(a), wb[:])
	if err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "poke at %s", a)
	}
	if n != len(wb) {
		return cmerr.New(cmerr.MemoryWrite, "short poke at %s: wrote %d bytes", a, n)
	}
	return nil
}

// ReadWord implements dwarfdata/expr.Memory and unwind.Memory.
func (p *process) ReadWord(a addr.Address) (addr.Word, error) {
	return p.PeekWord(a)
}

// PC implements breakpoint.Tracee.
func (p *process) PC() (addr.Address, error) {
	v, err := p.regs.Get("rip")
	if err != nil {
		return 0, err
	}
	return addr.Address(v), nil
}

// SetPC implements breakpoint.Tracee.
func (p *process) SetPC(a addr.Address) error {
	return p.regs.Set("rip", uint64(a))
}

// SingleStepAndWait implements breakpoint.Tracee.
func (p *process) SingleStepAndWait() error {
	if err := syscall.PtraceSingleStep(p.pid); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "PTRACE_SINGLESTEP pid=%d", p.pid)
	}
	_, err := p.wait()
	return err
}

func (p *process) cont(sig syscall.Signal) error {
	if err := syscall.PtraceCont(p.pid, int(sig)); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "PTRACE_CONT pid=%d sig=%s", p.pid, sig)
	}
	return nil
}

func (p *process) singleStep() error {
	if err := syscall.PtraceSingleStep(p.pid); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "PTRACE_SINGLESTEP pid=%d", p.pid)
	}
	return nil
}

func (p *process) detach() error {
	return syscall.PtraceDetach(p.pid)
}
