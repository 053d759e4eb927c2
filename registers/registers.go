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

// Package registers names the x86-64 general purpose registers and maps a
// live ptrace GETREGS/SETREGS snapshot onto them, by name, for the rest of
// the debugger.
package registers

import (
	"fmt"
	"sort"
	"syscall"

	"github.com/TalpaLabs/coreminer/cmerr"
)

// Snapshot is the full x86-64 GPR set, laid out exactly as
// syscall.PtraceRegs (which is itself the kernel's struct user_regs_struct)
// so that File.Snapshot/File.Restore are a single ptrace call each.
type Snapshot struct {
	R15      uint64 `json:"r15"`
	R14      uint64 `json:"r14"`
	R13      uint64 `json:"r13"`
	R12      uint64 `json:"r12"`
	Rbp      uint64 `json:"rbp"`
	Rbx      uint64 `json:"rbx"`
	R11      uint64 `json:"r11"`
	R10      uint64 `json:"r10"`
	R9       uint64 `json:"r9"`
	R8       uint64 `json:"r8"`
	Rax      uint64 `json:"rax"`
	Rcx      uint64 `json:"rcx"`
	Rdx      uint64 `json:"rdx"`
	Rsi      uint64 `json:"rsi"`
	Rdi      uint64 `json:"rdi"`
	OrigRax  uint64 `json:"orig_rax"`
	Rip      uint64 `json:"rip"`
	Cs       uint64 `json:"cs"`
	Eflags   uint64 `json:"eflags"`
	Rsp      uint64 `json:"rsp"`
	Ss       uint64 `json:"ss"`
	FsBase   uint64 `json:"fs_base"`
	GsBase   uint64 `json:"gs_base"`
	Ds       uint64 `json:"ds"`
	Es       uint64 `json:"es"`
	Fs       uint64 `json:"fs"`
	Gs       uint64 `json:"gs"`
}

// names maps the lowercase mnemonics the rest of the debugger (and every
// front-end) uses onto a getter/setter pair over a *Snapshot. Built once at
// init so Get/Set are O(1) map lookups rather than a giant switch.
type field struct {
	get func(*Snapshot) uint64
	set func(*Snapshot, uint64)
}

var names = map[string]field{
	"r15":      {func(s *Snapshot) uint64 { return s.R15 }, func(s *Snapshot, v uint64) { s.R15 = v }},
	"r14":      {func(s *Snapshot) uint64 { return s.R14 }, func(s *Snapshot, v uint64) { s.R14 = v }},
	"r13":      {func(s *Snapshot) uint64 { return s.R13 }, func(s *Snapshot, v uint64) { s.R13 = v }},
	"r12":      {func(s *Snapshot) uint64 { return s.R12 }, func(s *Snapshot, v uint64) { s.R12 = v }},
	"rbp":      {func(s *Snapshot) uint64 { return s.Rbp }, func(s *Snapshot, v uint64) { s.Rbp = v }},
	"rbx":      {func(s *Snapshot) uint64 { return s.Rbx }, func(s *Snapshot, v uint64) { s.Rbx = v }},
	"r11":      {func(s *Snapshot) uint64 { return s.R11 }, func(s *Snapshot, v uint64) { s.R11 = v }},
	"r10":      {func(s *Snapshot) uint64 { return s.R10 }, func(s *Snapshot, v uint64) { s.R10 = v }},
	"r9":       {func(s *Snapshot) uint64 { return s.R9 }, func(s *Snapshot, v uint64) { s.R9 = v }},
	"r8":       {func(s *Snapshot) uint64 { return s.R8 }, func(s *Snapshot, v uint64) { s.R8 = v }},
	"rax":      {func(s *Snapshot) uint64 { return s.Rax }, func(s *Snapshot, v uint64) { s.Rax = v }},
	"rcx":      {func(s *Snapshot) uint64 { return s.Rcx }, func(s *Snapshot, v uint64) { s.Rcx = v }},
	"rdx":      {func(s *Snapshot) uint64 { return s.Rdx }, func(s *Snapshot, v uint64) { s.Rdx = v }},
	"rsi":      {func(s *Snapshot) uint64 { return s.Rsi }, func(s *Snapshot, v uint64) { s.Rsi = v }},
	"rdi":      {func(s *Snapshot) uint64 { return s.Rdi }, func(s *Snapshot, v uint64) { s.Rdi = v }},
	"orig_rax": {func(s *Snapshot) uint64 { return s.OrigRax }, func(s *Snapshot, v uint64) { s.OrigRax = v }},
	"rip":      {func(s *Snapshot) uint64 { return s.Rip }, func(s *Snapshot, v uint64) { s.Rip = v }},
	"cs":       {func(s *Snapshot) uint64 { return s.Cs }, func(s *Snapshot, v uint64) { s.Cs = v }},
	"rflags":   {func(s *Snapshot) uint64 { return s.Eflags }, func(s *Snapshot, v uint64) { s.Eflags = v }},
	"rsp":      {func(s *Snapshot) uint64 { return s.Rsp }, func(s *Snapshot, v uint64) { s.Rsp = v }},
	"ss":       {func(s *Snapshot) uint64 { return s.Ss }, func(s *Snapshot, v uint64) { s.Ss = v }},
	"fs_base":  {func(s *Snapshot) uint64 { return s.FsBase }, func(s *Snapshot, v uint64) { s.FsBase = v }},
	"gs_base":  {func(s *Snapshot) uint64 { return s.GsBase }, func(s *Snapshot, v uint64) { s.GsBase = v }},
	"ds":       {func(s *Snapshot) uint64 { return s.Ds }, func(s *Snapshot, v uint64) { s.Ds = v }},
	"es":       {func(s *Snapshot) uint64 { return s.Es }, func(s *Snapshot, v uint64) { s.Es = v }},
	"fs":       {func(s *Snapshot) uint64 { return s.Fs }, func(s *Snapshot, v uint64) { s.Fs = v }},
	"gs":       {func(s *Snapshot) uint64 { return s.Gs }, func(s *Snapshot, v uint64) { s.Gs = v }},
}

// dwarfRegisterNames maps the System V x86-64 ABI's DWARF register numbers
// (as used by DW_OP_regN/DW_OP_bregN and their _x uleb-operand forms) onto
// the register names this package otherwise keys everything by. Only the
// general-purpose registers DWARF location expressions actually reference
// are listed; vector/FPU register numbers (17 and up) are intentionally
// absent since this debugger has no xmm/st(N) support.
var dwarfRegisterNames = map[int]string{
	0: "rax", 1: "rdx", 2: "rcx", 3: "rbx",
	4: "rsi", 5: "rdi", 6: "rbp", 7: "rsp",
	8: "r8", 9: "r9", 10: "r10", 11: "r11",
	12: "r12", 13: "r13", 14: "r14", 15: "r15",
	16: "rip",
}

// DWARFRegister returns snap's value for DWARF register number n, along
// with the canonical name (accepted by Get/Set) it corresponds to.
func (snap *Snapshot) DWARFRegister(n int) (value uint64, name string, ok bool) {
	name, ok = dwarfRegisterNames[n]
	if !ok {
		return 0, "", false
	}
	v, err := Get(snap, name)
	if err != nil {
		return 0, "", false
	}
	return v, name, true
}

// Names returns every register name this File recognizes, sorted.
func Names() []string {
	out := make([]string, 0, len(names))
	for n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Get returns the named register's value from snap.
func Get(snap *Snapshot, name string) (uint64, error) {
	f, ok := names[name]
	if !ok {
		return 0, cmerr.New(cmerr.RegisterName, "unknown register %q", name)
	}
	return f.get(snap), nil
}

// Set writes value into the named register of snap.
func Set(snap *Snapshot, name string, value uint64) error {
	f, ok := names[name]
	if !ok {
		return cmerr.New(cmerr.RegisterName, "unknown register %q", name)
	}
	f.set(snap, value)
	return nil
}

// File is a live view of a traced process's general purpose registers,
// backed by PTRACE_GETREGS/PTRACE_SETREGS.
type File struct {
	pid int
}

// NewFile returns a File for the given tracee pid. The tracee must already
// be ptrace-stopped; every operation on File issues a ptrace syscall.
func NewFile(pid int) *File {
	return &File{pid: pid}
}

// Snapshot reads the full register set from the tracee.
func (f *File) Snapshot() (*Snapshot, error) {
	var regs syscall.PtraceRegs
	if err := syscall.PtraceGetRegs(f.pid, &regs); err != nil {
		return nil, cmerr.Wrap(cmerr.Ptrace, err, "PTRACE_GETREGS pid=%d", f.pid)
	}
	return fromKernel(&regs), nil
}

// Restore writes snap back into the tracee's register set.
func (f *File) Restore(snap *Snapshot) error {
	regs := toKernel(snap)
	if err := syscall.PtraceSetRegs(f.pid, regs); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "PTRACE_SETREGS pid=%d", f.pid)
	}
	return nil
}

// Get reads a single named register from the tracee.
func (f *File) Get(name string) (uint64, error) {
	snap, err := f.Snapshot()
	if err != nil {
		return 0, err
	}
	return Get(snap, name)
}

// Set writes a single named register in the tracee, preserving every other
// register (read-modify-write, since ptrace only offers whole-set access).
func (f *File) Set(name string, value uint64) error {
	snap, err := f.Snapshot()
	if err != nil {
		return err
	}
	if err := Set(snap, name, value); err != nil {
		return err
	}
	return f.Restore(snap)
}

func fromKernel(r *syscall.PtraceRegs) *Snapshot {
	return &Snapshot{
		R15: r.R15, R14: r.R14, R13: r.R13, R12: r.R12,
		Rbp: r.Rbp, Rbx: r.Rbx, R11: r.R11, R10: r.R10,
		R9: r.R9, R8: r.R8, Rax: r.Rax, Rcx: r.Rcx,
		Rdx: r.Rdx, Rsi: r.Rsi, Rdi: r.Rdi, OrigRax: r.Orig_rax,
		Rip: r.Rip, Cs: r.Cs, Eflags: r.Eflags, Rsp: r.Rsp,
		Ss: r.Ss, FsBase: r.Fs_base, GsBase: r.Gs_base,
		Ds: r.Ds, Es: r.Es, Fs: r.Fs, Gs: r.Gs,
	}
}

func toKernel(s *Snapshot) *syscall.PtraceRegs {
	return &syscall.PtraceRegs{
		R15: s.R15, R14: s.R14, R13: s.R13, R12: s.R12,
		Rbp: s.Rbp, Rbx: s.Rbx, R11: s.R11, R10: s.R10,
		R9: s.R9, R8: s.R8, Rax: s.Rax, Rcx: s.Rcx,
		Rdx: s.Rdx, Rsi: s.Rsi, Rdi: s.Rdi, Orig_rax: s.OrigRax,
		Rip: s.Rip, Cs: s.Cs, Eflags: s.Eflags, Rsp: s.Rsp,
		Ss: s.Ss, Fs_base: s.FsBase, Gs_base: s.GsBase,
		Ds: s.Ds, Es: s.Es, Fs: s.Fs, Gs: s.Gs,
	}
}

// String renders a snapshot for debug printing in the CLI front-end.
func (s *Snapshot) String() string {
	return fmt.Sprintf("rip=%#x rsp=%#x rbp=%#x rax=%#x", s.Rip, s.Rsp, s.Rbp, s.Rax)
}
