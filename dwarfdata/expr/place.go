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

// Package expr evaluates DWARF location expressions (the raw DW_AT_location
// and DW_AT_frame_base byte strings dwarfdata preserves unevaluated) against
// a live frame, producing a Place that says where a variable's value
// actually lives right now.
package expr

import "github.com/TalpaLabs/coreminer/addr"

// PlaceKind discriminates the three ways a DWARF expression can resolve.
type PlaceKind int

const (
	// PlaceMemory means the value lives at Place.Address in the
	// debuggee's address space.
	PlaceMemory PlaceKind = iota
	// PlaceRegister means the value lives in the named register.
	PlaceRegister
	// PlaceConstant means the expression embedded the value itself
	// (DW_OP_stack_value); there is nowhere to write it back to.
	PlaceConstant
)

// Place is the result of evaluating one location expression.
type Place struct {
	Kind     PlaceKind
	Address  addr.Address
	Register string
	Constant []byte
}

// Registers is the live register capability Evaluate needs: resolving a
// DWARF register number to its current value and canonical name. Satisfied
// by *registers.Snapshot.
type Registers interface {
	DWARFRegister(n int) (value uint64, name string, ok bool)
}

// Memory is the word-at-a-time, breakpoint-transparent memory read
// capability DW_OP_deref needs.
type Memory interface {
	ReadWord(a addr.Address) (addr.Word, error)
}

// Context bundles everything Evaluate needs beyond the expression bytes
// themselves. FrameBase and CFA are thunks rather than plain values so a
// caller only pays for resolving them when the expression actually uses
// DW_OP_fbreg / DW_OP_call_frame_cfa.
type Context struct {
	Regs Registers
	Mem  Memory

	// FrameBase resolves DW_AT_frame_base of the variable's enclosing
	// subprogram to an address — itself usually the result of Evaluating
	// that subprogram's own frame_base expression once per frame.
	FrameBase func() (addr.Address, error)

	// CFA resolves the current frame's canonical frame address, as
	// computed by the call-frame-information unwinder.
	CFA func() (addr.Address, error)
}
