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

// Package breakpoint implements software breakpoints: patching the
// one-byte int3 instruction into a tracee's text segment, saving the byte
// it displaced, and transparently hiding the patch from memory reads and
// from the disassembler. It never touches the child process directly —
// everything it needs from ptrace is expressed as the small Memory and
// Tracee capabilities below, so it can be unit tested against a fake.
package breakpoint

import (
	"sort"
	"sync"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/logger"
)

// Memory is the word-at-a-time ptrace peek/poke capability the breakpoint
// engine needs. addr.Word is exactly the debuggee's word width.
type Memory interface {
	PeekWord(a addr.Address) (addr.Word, error)
	PokeWord(a addr.Address, w addr.Word) error
}

// Tracee is the minimal control surface step_over_breakpoint needs: read
// and set the program counter, single-step one instruction, and block until
// that step's SIGTRAP has been observed.
type Tracee interface {
	PC() (addr.Address, error)
	SetPC(a addr.Address) error
	SingleStepAndWait() error
}

// Breakpoint is one installed (or, briefly, about-to-be-removed) software
// breakpoint.
type Breakpoint struct {
	Address   addr.Address `json:"address"`
	SavedByte byte         `json:"saved_byte"`
	Enabled   bool         `json:"enabled"`
}

// Table owns the set of breakpoints installed in one tracee. All mutation
// goes through Set/Remove/StepOverBreakpoint/DisableAll so the table ⇄ text-segment invariant
// (§8: byte at address is 0xCC iff enabled) always holds.
type Table struct {
	mem Memory

	mu    sync.Mutex
	table map[addr.Address]*Breakpoint
}

// NewTable creates an empty breakpoint table over mem.
func NewTable(mem Memory) *Table {
	return &Table{mem: mem, table: make(map[addr.Address]*Breakpoint)}
}

// Set installs a breakpoint at addr, failing with BreakpointExists if one is
// already there.
func (t *Table) Set(a addr.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.table[a]; ok {
		return cmerr.New(cmerr.BreakpointExists, "breakpoint already set at %s", a)
	}

	word, err := t.mem.PeekWord(a)
	if err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "peek at %s", a)
	}

	saved := byte(word)
	patched := (word &^ 0xff) | addr.Word(0xCC)
	if err := t.mem.PokeWord(a, patched); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "poke at %s", a)
	}

	t.table[a] = &Breakpoint{Address: a, SavedByte: saved, Enabled: true}
	return nil
}

// Remove uninstalls the breakpoint at addr, restoring the saved byte,
// failing with BreakpointMissing if none is there.
func (t *Table) Remove(a addr.Address) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(a)
}

func (t *Table) removeLocked(a addr.Address) error {
	bp, ok := t.table[a]
	if !ok {
		return cmerr.New(cmerr.BreakpointMissing, "no breakpoint at %s", a)
	}

	if bp.Enabled {
		if err := t.disableLocked(bp); err != nil {
			return err
		}
	}

	delete(t.table, a)
	return nil
}

func (t *Table) disableLocked(bp *Breakpoint) error {
	word, err := t.mem.PeekWord(bp.Address)
	if err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "peek at %s", bp.Address)
	}
	restored := (word &^ 0xff) | addr.Word(bp.SavedByte)
	if err := t.mem.PokeWord(bp.Address, restored); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "poke at %s", bp.Address)
	}
	bp.Enabled = false
	return nil
}

func (t *Table) enableLocked(bp *Breakpoint) error {
	word, err := t.mem.PeekWord(bp.Address)
	if err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "peek at %s", bp.Address)
	}
	patched := (word &^ 0xff) | addr.Word(0xCC)
	if err := t.mem.PokeWord(bp.Address, patched); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "poke at %s", bp.Address)
	}
	bp.Enabled = true
	return nil
}

// IsAt reports whether a breakpoint exists at addr (enabled or not).
func (t *Table) IsAt(a addr.Address) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.table[a]
	return ok
}

// Get returns the breakpoint at addr, if any.
func (t *Table) Get(a addr.Address) (Breakpoint, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.table[a]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// List returns every breakpoint, ordered by address, for display and for
// serialization.
func (t *Table) List() []Breakpoint {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Breakpoint, 0, len(t.table))
	for _, bp := range t.table {
		out = append(out, *bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// OriginalByte implements disasm.BreakpointLookup: it reports the byte that
// lives at addr in the unpatched program, if a breakpoint is installed
// there.
func (t *Table) OriginalByte(a addr.Address) (byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	bp, ok := t.table[a]
	if !ok || !bp.Enabled {
		return 0, false
	}
	return bp.SavedByte, true
}

// StepOverBreakpoint is the step-over-breakpoint dance of §4.4: if the
// tracee's current PC has an enabled breakpoint, temporarily disable it,
// single-step past it, and re-enable it, leaving PC advanced by exactly one
// instruction. If there is no breakpoint at PC, it is a no-op.
func (t *Table) StepOverBreakpoint(tr Tracee) error {
	pc, err := tr.PC()
	if err != nil {
		return err
	}

	t.mu.Lock()
	bp, ok := t.table[pc]
	if !ok || !bp.Enabled {
		t.mu.Unlock()
		return nil
	}
	if err := t.disableLocked(bp); err != nil {
		t.mu.Unlock()
		return err
	}
	t.mu.Unlock()

	if err := tr.SingleStepAndWait(); err != nil {
		return cmerr.Wrap(cmerr.Ptrace, err, "single-step over breakpoint at %s", pc)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.enableLocked(bp); err != nil {
		return err
	}
	return nil
}

// DisableAll disables every enabled breakpoint, logging (but not failing
// on) any individual error, per §3's "disable-before-drop is attempted but
// a failure is logged rather than fatal" teardown rule.
func (t *Table) DisableAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, bp := range t.table {
		if !bp.Enabled {
			continue
		}
		if err := t.disableLocked(bp); err != nil {
			logger.Logf("breakpoint", "disable %s on teardown: %v", bp.Address, err)
		}
	}
}

// ReadMemoryTransparent reads length bytes starting at a via mem, in
// word-sized chunks, and substitutes every breakpointed byte's saved
// original value into the result, so the read is indistinguishable from a
// read of the unpatched program.
func (t *Table) ReadMemoryTransparent(mem Memory, a addr.Address, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	const wordSize = 8
	out := make([]byte, 0, length+wordSize)

	start := a
	for int64(len(out)) < int64(length) {
		word, err := mem.PeekWord(start)
		if err != nil {
			return nil, cmerr.Wrap(cmerr.MemoryRead, err, "peek at %s", start)
		}
		wb := word.Bytes()
		out = append(out, wb[:]...)
		start = start.Add(wordSize)
	}
	out = out[:length]

	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 0; i < length; i++ {
		byteAddr := a.Add(int64(i))
		if bp, ok := t.table[byteAddr]; ok && bp.Enabled {
			out[i] = bp.SavedByte
		}
	}

	return out, nil
}
