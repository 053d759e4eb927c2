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

// Package disasm decodes x86-64 machine code into address/bytes/mnemonic
// triples using golang.org/x/arch/x86/x86asm. It is "int3-aware": given a
// BreakpointLookup it will hide int3 patch bytes behind the original
// instruction byte so a disassembly listing reads the same whether or not a
// breakpoint happens to live at that address.
package disasm

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
)

// Int3 is the one-byte x86 breakpoint instruction.
const Int3 = 0xCC

// Line is one decoded instruction.
type Line struct {
	Address      addr.Address `json:"address"`
	Bytes        []byte       `json:"bytes"`
	Mnemonic     string       `json:"mnemonic"`
	IsBreakpoint bool         `json:"is_breakpoint"`
}

// BreakpointLookup is the capability the breakpoint engine hands to the
// disassembler so it never needs a global registry. OriginalByte returns
// the byte that lives at a in the unpatched program, and true, if a
// breakpoint is currently installed there.
type BreakpointLookup interface {
	OriginalByte(a addr.Address) (byte, bool)
}

type noBreakpoints struct{}

func (noBreakpoints) OriginalByte(addr.Address) (byte, bool) { return 0, false }

// NoBreakpoints is a BreakpointLookup that never reports a patch, useful in
// literal mode or when disassembling a file that was never live.
var NoBreakpoints BreakpointLookup = noBreakpoints{}

// Disassemble decodes count instructions starting at base from code. code
// must hold at least enough bytes to decode count instructions (15 bytes of
// slop per instruction is the x86 worst case, so callers typically read
// count*15 bytes).
//
// In literal mode bytes are decoded exactly as given: a breakpoint's 0xCC
// patch byte is shown as-is and IsBreakpoint is never set. In non-literal
// ("cooked") mode, any line whose first byte is 0xCC and whose address bp
// reports a patch for is re-decoded with that byte restored, and
// IsBreakpoint is set on the resulting line. Only the leading byte of a line
// is ever rewritten, so a patched byte that is not the start of an
// instruction cannot shift subsequent boundaries. A re-decoded line takes
// the restored instruction's length, so the next line starts where it does
// in the unpatched program rather than one byte past the 0xCC.
func Disassemble(code []byte, base addr.Address, count int, literal bool, bp BreakpointLookup) ([]Line, error) {
	if bp == nil {
		bp = NoBreakpoints
	}

	var lines []Line
	off := 0
	for i := 0; i < count && off < len(code); i++ {
		lineAddr := base.Add(int64(off))
		buf := code[off:]

		inst, err := x86asm.Decode(buf, 64)
		n := inst.Len
		if err != nil {
			// undecodable bytes still produce a one-byte line so callers
			// can keep making progress through a listing.
			n = 1
		}
		if n == 0 {
			n = 1
		}
		if n > len(buf) {
			n = len(buf)
		}

		raw := append([]byte(nil), buf[:n]...)
		isBreakpoint := false

		if !literal && len(raw) > 0 && raw[0] == Int3 {
			if orig, patched := bp.OriginalByte(lineAddr); patched {
				cooked := append([]byte(nil), raw...)
				cooked[0] = orig
				if reInst, rerr := x86asm.Decode(cooked, 64); rerr == nil && reInst.Len > 0 {
					n = reInst.Len
					if n > len(buf) {
						n = len(buf)
					}
					raw = append([]byte(nil), buf[:n]...)
					raw[0] = orig
					inst = reInst
				} else {
					raw[0] = orig
				}
				isBreakpoint = true
			}
		}

		mnemonic := formatInst(inst, err)

		lines = append(lines, Line{
			Address:      lineAddr,
			Bytes:        raw,
			Mnemonic:     mnemonic,
			IsBreakpoint: isBreakpoint,
		})

		off += n
	}

	return lines, nil
}

func formatInst(inst x86asm.Inst, decodeErr error) string {
	if decodeErr != nil {
		return "(bad)"
	}
	return x86asm.GNUSyntax(inst, 0, nil)
}

// String renders a Line for CLI display, e.g. "0x401020: cc             int3".
func (l Line) String() string {
	return fmt.Sprintf("%s: % x\t%s", l.Address, l.Bytes, l.Mnemonic)
}

// ErrShortBuffer describes a buffer too short to hold the requested
// instructions. Disassemble does not return it: it stops decoding at the
// end of code and returns the lines it has.
var ErrShortBuffer = cmerr.New(cmerr.MemoryRead, "insufficient bytes for disassembly")
