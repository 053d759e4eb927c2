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

package unwind

import "github.com/TalpaLabs/coreminer/cmerr"

// ruleState is the register-rule table effective at one program point: the
// CFA rule (register + offset) and, per DWARF register number, the byte
// offset from the CFA at which that register's caller-frame value was
// saved. Only the "offset(N)" rule is tracked — the common case gcc/clang
// emit for callee-saved registers and the return address — since that is
// all step_out/backtrace need.
type ruleState struct {
	cfaReg    uint64
	cfaOffset int64
	regRule   map[uint64]int64
}

func (r ruleState) clone() ruleState {
	cp := ruleState{cfaReg: r.cfaReg, cfaOffset: r.cfaOffset, regRule: make(map[uint64]int64, len(r.regRule))}
	for k, v := range r.regRule {
		cp.regRule[k] = v
	}
	return cp
}

// DWARF call-frame instruction opcodes (DW_CFA_*), high two bits plus
// operand for the "packed" forms, or a full byte for the rest.
const (
	cfaAdvanceLoc  = 0x40 // high 2 bits; low 6 bits: code-aligned delta
	cfaOffset      = 0x80 // high 2 bits; low 6 bits: register
	cfaRestore     = 0xc0 // high 2 bits; low 6 bits: register

	cfaNop              = 0x00
	cfaSetLoc           = 0x01
	cfaAdvanceLoc1      = 0x02
	cfaAdvanceLoc2      = 0x03
	cfaAdvanceLoc4      = 0x04
	cfaOffsetExtended   = 0x05
	cfaUndefined        = 0x07
	cfaSameValue        = 0x08
	cfaRegister         = 0x09
	cfaRememberState    = 0x0a
	cfaRestoreState     = 0x0b
	cfaDefCFA           = 0x0c
	cfaDefCFARegister   = 0x0d
	cfaDefCFAOffset     = 0x0e
	cfaDefCFAExpression = 0x0f
	cfaExpression       = 0x10
	cfaOffsetExtSf      = 0x11
	cfaDefCFASf         = 0x12
	cfaDefCFAOffsetSf   = 0x13
	cfaValOffset        = 0x14
	cfaValExpression    = 0x16
)

// evaluateAt runs f's CIE's initial instructions and then f's own
// instructions up to (but not including) the instruction that would
// advance the location past targetPC, returning the rule state effective
// at targetPC.
func evaluateAt(f *fde, targetPC uint64) (ruleState, error) {
	state := ruleState{regRule: map[uint64]int64{}}
	var stack []ruleState

	loc := f.initialLocation
	run := func(instrs []byte) error {
		i := 0
		for i < len(instrs) {
			if loc > targetPC {
				return nil
			}
			op := instrs[i]
			i++

			switch {
			case op>>6 == cfaAdvanceLoc>>6 && op != cfaNop:
				delta := uint64(op & 0x3f)
				loc += delta * f.cie.codeAlignmentFactor

			case op>>6 == cfaOffset>>6:
				reg := uint64(op & 0x3f)
				v, n := uleb128(instrs[i:])
				i += n
				state.regRule[reg] = int64(v) * f.cie.dataAlignmentFactor

			case op>>6 == cfaRestore>>6:
				reg := uint64(op & 0x3f)
				delete(state.regRule, reg)

			default:
				switch op {
				case cfaNop:
				case cfaSetLoc:
					if i+8 > len(instrs) {
						return cmerr.New(cmerr.Dwarf, "truncated DW_CFA_set_loc")
					}
					loc = leUint64(instrs[i : i+8])
					i += 8
				case cfaAdvanceLoc1:
					if i+1 > len(instrs) {
						return cmerr.New(cmerr.Dwarf, "truncated DW_CFA_advance_loc1")
					}
					loc += uint64(instrs[i]) * f.cie.codeAlignmentFactor
					i++
				case cfaAdvanceLoc2:
					if i+2 > len(instrs) {
						return cmerr.New(cmerr.Dwarf, "truncated DW_CFA_advance_loc2")
					}
					loc += uint64(leUint16(instrs[i:i+2])) * f.cie.codeAlignmentFactor
					i += 2
				case cfaAdvanceLoc4:
					if i+4 > len(instrs) {
						return cmerr.New(cmerr.Dwarf, "truncated DW_CFA_advance_loc4")
					}
					loc += uint64(leUint32(instrs[i:i+4])) * f.cie.codeAlignmentFactor
					i += 4
				case cfaOffsetExtended:
					reg, n := uleb128(instrs[i:])
					i += n
					v, n2 := uleb128(instrs[i:])
					i += n2
					state.regRule[reg] = int64(v) * f.cie.dataAlignmentFactor
				case cfaOffsetExtSf:
					reg, n := uleb128(instrs[i:])
					i += n
					v, n2 := sleb128(instrs[i:])
					i += n2
					state.regRule[reg] = v * f.cie.dataAlignmentFactor
				case cfaUndefined, cfaSameValue:
					_, n := uleb128(instrs[i:])
					i += n
				case cfaRegister:
					_, n := uleb128(instrs[i:])
					i += n
					_, n2 := uleb128(instrs[i:])
					i += n2
				case cfaRememberState:
					stack = append(stack, state.clone())
				case cfaRestoreState:
					if len(stack) > 0 {
						state = stack[len(stack)-1]
						stack = stack[:len(stack)-1]
					}
				case cfaDefCFA:
					reg, n := uleb128(instrs[i:])
					i += n
					off, n2 := uleb128(instrs[i:])
					i += n2
					state.cfaReg, state.cfaOffset = reg, int64(off)
				case cfaDefCFASf:
					reg, n := uleb128(instrs[i:])
					i += n
					off, n2 := sleb128(instrs[i:])
					i += n2
					state.cfaReg, state.cfaOffset = reg, off*f.cie.dataAlignmentFactor
				case cfaDefCFARegister:
					reg, n := uleb128(instrs[i:])
					i += n
					state.cfaReg = reg
				case cfaDefCFAOffset:
					off, n := uleb128(instrs[i:])
					i += n
					state.cfaOffset = int64(off)
				case cfaDefCFAOffsetSf:
					off, n := sleb128(instrs[i:])
					i += n
					state.cfaOffset = off * f.cie.dataAlignmentFactor
				case cfaValOffset:
					reg, n := uleb128(instrs[i:])
					i += n
					_, n2 := uleb128(instrs[i:])
					i += n2
					_ = reg // value-offset rules aren't a supported Place for this unwinder
				case cfaDefCFAExpression, cfaExpression, cfaValExpression:
					return cmerr.New(cmerr.UnsupportedOpcode, "DWARF expression-valued CFA rule at %#x", f.cie.offset)
				default:
					return cmerr.New(cmerr.UnsupportedOpcode, "unsupported CFA opcode 0x%02x", op)
				}
			}
		}
		return nil
	}

	if err := run(f.cie.initialInstructions); err != nil {
		return ruleState{}, err
	}
	if err := run(f.instructions); err != nil {
		return ruleState{}, err
	}

	return state, nil
}

func leUint16(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func leUint64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
