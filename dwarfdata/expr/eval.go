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

package expr

import (
	"encoding/binary"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
)

// DWARF stack-machine opcodes this evaluator understands. Names follow the
// DWARF standard's own DW_OP_* mnemonics, minus the prefix.
const (
	opAddr         = 0x03
	opDeref        = 0x06
	opConst1u      = 0x08
	opConst1s      = 0x09
	opConst2u      = 0x0a
	opConst2s      = 0x0b
	opConst4u      = 0x0c
	opConst4s      = 0x0d
	opConst8u      = 0x0e
	opConst8s      = 0x0f
	opConstu       = 0x10
	opConsts       = 0x11
	opPlus         = 0x22
	opPlusUconst   = 0x23
	opLit0         = 0x30
	opLit31        = 0x4f
	opReg0         = 0x50
	opReg31        = 0x6f
	opBreg0        = 0x70
	opBreg31       = 0x8f
	opRegx         = 0x90
	opFbreg        = 0x91
	opBregx        = 0x92
	opCallFrameCFA = 0x9c
	opStackValue   = 0x9f
)

// Evaluate runs a DWARF location/frame-base expression to completion and
// returns the Place it resolves to. Supported opcodes cover literal push,
// addition, register reference (DW_OP_regN/regx and the breg family),
// frame-base-relative addressing (DW_OP_fbreg), a word dereference,
// stack-value, embedded constants, and the call-frame CFA — the set
// spec'd as the evaluator's minimum coverage. Anything else fails with
// UnsupportedOpcode.
func Evaluate(expression []byte, ctx Context) (Place, error) {
	if len(expression) == 0 {
		return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "empty location expression")
	}

	var stack []uint64
	push := func(v uint64) { stack = append(stack, v) }
	pop := func() (uint64, error) {
		if len(stack) == 0 {
			return 0, cmerr.New(cmerr.EmptyStack, "operand stack empty")
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	isStackValue := false
	haveRegTerminal := false
	var regTerminal string

	i := 0
	for i < len(expression) {
		op := expression[i]
		i++

		switch {
		case op == opAddr:
			if i+8 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_addr")
			}
			push(binary.LittleEndian.Uint64(expression[i : i+8]))
			i += 8

		case op == opDeref:
			a, err := pop()
			if err != nil {
				return Place{}, err
			}
			w, err := readWord(ctx, addr.Address(a))
			if err != nil {
				return Place{}, err
			}
			push(uint64(w))

		case op == opConst1u:
			if i+1 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const1u")
			}
			push(uint64(expression[i]))
			i++

		case op == opConst1s:
			if i+1 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const1s")
			}
			push(uint64(int64(int8(expression[i]))))
			i++

		case op == opConst2u:
			if i+2 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const2u")
			}
			push(uint64(binary.LittleEndian.Uint16(expression[i : i+2])))
			i += 2

		case op == opConst2s:
			if i+2 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const2s")
			}
			push(uint64(int64(int16(binary.LittleEndian.Uint16(expression[i : i+2])))))
			i += 2

		case op == opConst4u:
			if i+4 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const4u")
			}
			push(uint64(binary.LittleEndian.Uint32(expression[i : i+4])))
			i += 4

		case op == opConst4s:
			if i+4 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const4s")
			}
			push(uint64(int64(int32(binary.LittleEndian.Uint32(expression[i : i+4])))))
			i += 4

		case op == opConst8u || op == opConst8s:
			if i+8 > len(expression) {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "truncated DW_OP_const8")
			}
			push(binary.LittleEndian.Uint64(expression[i : i+8]))
			i += 8

		case op == opConstu:
			v, n := uleb128(expression[i:])
			push(v)
			i += n

		case op == opConsts:
			v, n := sleb128(expression[i:])
			push(uint64(v))
			i += n

		case op == opPlus:
			b, err := pop()
			if err != nil {
				return Place{}, err
			}
			a, err := pop()
			if err != nil {
				return Place{}, err
			}
			push(a + b)

		case op == opPlusUconst:
			v, n := uleb128(expression[i:])
			i += n
			a, err := pop()
			if err != nil {
				return Place{}, err
			}
			push(a + v)

		case op >= opLit0 && op <= opLit31:
			push(uint64(op - opLit0))

		case op >= opReg0 && op <= opReg31:
			name, ok := regName(ctx, int(op-opReg0))
			if !ok {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "unknown DWARF register %d", op-opReg0)
			}
			regTerminal, haveRegTerminal = name, true

		case op == opRegx:
			v, n := uleb128(expression[i:])
			i += n
			name, ok := regName(ctx, int(v))
			if !ok {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "unknown DWARF register %d", v)
			}
			regTerminal, haveRegTerminal = name, true

		case op >= opBreg0 && op <= opBreg31:
			off, n := sleb128(expression[i:])
			i += n
			v, ok := regValue(ctx, int(op-opBreg0))
			if !ok {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "unknown DWARF register %d", op-opBreg0)
			}
			push(uint64(int64(v) + off))

		case op == opBregx:
			regNum, n := uleb128(expression[i:])
			i += n
			off, n2 := sleb128(expression[i:])
			i += n2
			v, ok := regValue(ctx, int(regNum))
			if !ok {
				return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "unknown DWARF register %d", regNum)
			}
			push(uint64(int64(v) + off))

		case op == opFbreg:
			off, n := sleb128(expression[i:])
			i += n
			if ctx.FrameBase == nil {
				return Place{}, cmerr.New(cmerr.FrameBaseMissing, "DW_OP_fbreg with no frame base resolver")
			}
			fb, err := ctx.FrameBase()
			if err != nil {
				return Place{}, cmerr.Wrap(cmerr.FrameBaseMissing, err, "resolving frame base")
			}
			push(uint64(fb.Add(off)))

		case op == opCallFrameCFA:
			if ctx.CFA == nil {
				return Place{}, cmerr.New(cmerr.FrameBaseMissing, "DW_OP_call_frame_cfa with no CFA provider")
			}
			cfa, err := ctx.CFA()
			if err != nil {
				return Place{}, cmerr.Wrap(cmerr.FrameBaseMissing, err, "resolving CFA")
			}
			push(uint64(cfa))

		case op == opStackValue:
			isStackValue = true

		default:
			return Place{}, cmerr.New(cmerr.UnsupportedOpcode, "unsupported DWARF opcode 0x%02x", op)
		}
	}

	if haveRegTerminal {
		return Place{Kind: PlaceRegister, Register: regTerminal}, nil
	}

	if len(stack) == 0 {
		return Place{}, cmerr.New(cmerr.EmptyStack, "expression produced no result")
	}
	top := stack[len(stack)-1]

	if isStackValue {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], top)
		return Place{Kind: PlaceConstant, Constant: b[:]}, nil
	}

	return Place{Kind: PlaceMemory, Address: addr.Address(top)}, nil
}

func readWord(ctx Context, a addr.Address) (addr.Word, error) {
	if ctx.Mem == nil {
		return 0, cmerr.New(cmerr.MemoryRead, "DW_OP_deref with no memory reader")
	}
	w, err := ctx.Mem.ReadWord(a)
	if err != nil {
		return 0, cmerr.Wrap(cmerr.MemoryRead, err, "DW_OP_deref at %s", a)
	}
	return w, nil
}

func regName(ctx Context, n int) (string, bool) {
	if ctx.Regs == nil {
		return "", false
	}
	_, name, ok := ctx.Regs.DWARFRegister(n)
	return name, ok
}

func regValue(ctx Context, n int) (uint64, bool) {
	if ctx.Regs == nil {
		return 0, false
	}
	v, _, ok := ctx.Regs.DWARFRegister(n)
	return v, ok
}
