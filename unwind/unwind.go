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

// Package unwind produces a symbolicated backtrace from a live child's
// registers by walking call-frame-information records (.debug_frame):
// at each frame it evaluates the CIE/FDE rule program covering the
// current PC to find the canonical frame address and where the caller's
// registers were saved, then repeats from the recovered return address.
// When no CFI record covers a PC — common for hand-written assembly or a
// stripped .debug_frame — it falls back to the classic frame-pointer chain
// (saved rbp / return address at [rbp], [rbp+8]), so a backtrace is never
// simply empty just because CFI coverage has a gap.
package unwind

import (
	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/dwarfdata"
	"github.com/TalpaLabs/coreminer/registers"
)

// Frame is one entry of a backtrace, innermost (the current PC) at index 0.
type Frame struct {
	Index    int          `json:"index"`
	PC       addr.Address `json:"pc"`
	Function string       `json:"function"`
}

// Memory is the word-read capability the unwinder needs to follow saved
// register locations up the stack. It should be breakpoint-transparent,
// the same capability debuggee wires into dwarfdata/expr.
type Memory interface {
	ReadWord(a addr.Address) (addr.Word, error)
}

// Unwinder holds the parsed .debug_frame records for one debuggee image.
type Unwinder struct {
	fdes []*fde
}

// New parses debugFrameSection (an ELF ".debug_frame" section's raw bytes)
// into an Unwinder. An empty section is valid and yields an Unwinder that
// always falls back to frame-pointer walking.
func New(debugFrameSection []byte) (*Unwinder, error) {
	fdes, err := parseDebugFrame(debugFrameSection)
	if err != nil {
		return nil, err
	}
	return &Unwinder{fdes: fdes}, nil
}

func (u *Unwinder) findFDE(rawPC uint64) *fde {
	for _, f := range u.fdes {
		if rawPC >= f.initialLocation && rawPC < f.initialLocation+f.addressRange {
			return f
		}
	}
	return nil
}

const maxFrames = 64
const dwarfRegRbp = 6

// Backtrace walks the stack starting from regs, innermost frame first.
// bias is the load bias (§4.13) to subtract from a runtime PC before
// comparing it against the link-time ranges recorded in both the CFI
// records and tree. tree may be nil, in which case every frame's function
// name is "<unknown>".
func (u *Unwinder) Backtrace(regs *registers.Snapshot, mem Memory, tree *dwarfdata.Tree, bias addr.Address) ([]Frame, error) {
	if mem == nil {
		return nil, cmerr.New(cmerr.MemoryRead, "unwind requires a memory reader")
	}

	pc := regs.Rip
	rbp := regs.Rbp

	var frames []Frame
	for i := 0; i < maxFrames; i++ {
		frames = append(frames, Frame{Index: i, PC: addr.Address(pc), Function: functionNameAt(tree, addr.Address(pc), bias)})

		retAddr, nextRbp, cfaOK := u.stepViaCFI(pc, bias, regs, mem, rbp)
		if !cfaOK {
			var ok bool
			retAddr, nextRbp, ok = stepViaFramePointer(rbp, mem)
			if !ok {
				break
			}
		}
		if retAddr == 0 {
			break
		}

		pc = retAddr
		rbp = nextRbp
	}

	return frames, nil
}

func (u *Unwinder) stepViaCFI(pc uint64, bias addr.Address, regs *registers.Snapshot, mem Memory, rbp uint64) (retAddr, nextRbp uint64, ok bool) {
	raw := uint64(addr.Address(pc).Sub(int64(bias)))
	f := u.findFDE(raw)
	if f == nil {
		return 0, 0, false
	}

	rules, err := evaluateAt(f, raw)
	if err != nil {
		return 0, 0, false
	}

	cfaBase, _, found := regs.DWARFRegister(int(rules.cfaReg))
	if !found {
		return 0, 0, false
	}
	cfa := cfaBase + uint64(rules.cfaOffset)

	raOff, ok := rules.regRule[f.cie.returnAddressRegister]
	if !ok {
		return 0, 0, false
	}
	raWord, err := mem.ReadWord(addr.Address(int64(cfa) + raOff))
	if err != nil {
		return 0, 0, false
	}

	nextRbp = rbp
	if rbpOff, ok := rules.regRule[dwarfRegRbp]; ok {
		if w, err := mem.ReadWord(addr.Address(int64(cfa) + rbpOff)); err == nil {
			nextRbp = uint64(w)
		}
	}

	return uint64(raWord), nextRbp, true
}

// CFA returns the canonical frame address the call-frame-information record
// covering pc evaluates to — the same quantity DW_OP_call_frame_cfa yields
// inside a DWARF location expression. It fails if no FDE covers pc, which
// happens whenever the image's CFI coverage has a gap or is entirely absent.
func (u *Unwinder) CFA(pc addr.Address, bias addr.Address, regs *registers.Snapshot) (addr.Address, error) {
	raw := uint64(pc.Sub(int64(bias)))
	f := u.findFDE(raw)
	if f == nil {
		return 0, cmerr.New(cmerr.Dwarf, "no call-frame-information record covers %s", pc)
	}

	rules, err := evaluateAt(f, raw)
	if err != nil {
		return 0, err
	}

	base, _, ok := regs.DWARFRegister(int(rules.cfaReg))
	if !ok {
		return 0, cmerr.New(cmerr.Dwarf, "CFA rule references unknown DWARF register %d", rules.cfaReg)
	}
	return addr.Address(base + uint64(rules.cfaOffset)), nil
}

func stepViaFramePointer(rbp uint64, mem Memory) (retAddr, nextRbp uint64, ok bool) {
	if rbp == 0 {
		return 0, 0, false
	}
	savedRbp, err := mem.ReadWord(addr.Address(rbp))
	if err != nil {
		return 0, 0, false
	}
	ra, err := mem.ReadWord(addr.Address(rbp + 8))
	if err != nil {
		return 0, 0, false
	}
	return uint64(ra), uint64(savedRbp), true
}

func functionNameAt(tree *dwarfdata.Tree, pc addr.Address, bias addr.Address) string {
	if tree == nil {
		return "<unknown>"
	}
	sym, ok := tree.ByPC(pc, bias)
	if !ok || sym.Name == "" {
		return "<unknown>"
	}
	return sym.Name
}
