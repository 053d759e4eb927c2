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

package dwarfdata

// Kind is the owned-symbol kind, the closed set of DWARF tags this debugger
// understands. Any DIE tag outside this set is kept as KindOther, with its
// children preserved, rather than dropped.
type Kind int

const (
	KindOther Kind = iota
	KindCompileUnit
	KindSubprogram
	KindVariable
	KindFormalParameter
	KindBaseType
	KindPointerType
	KindArrayType
	KindStructureType
	KindMember
	KindLexicalBlock
	KindTypedef
)

func (k Kind) String() string {
	switch k {
	case KindCompileUnit:
		return "compile_unit"
	case KindSubprogram:
		return "subprogram"
	case KindVariable:
		return "variable"
	case KindFormalParameter:
		return "formal_parameter"
	case KindBaseType:
		return "base_type"
	case KindPointerType:
		return "pointer_type"
	case KindArrayType:
		return "array_type"
	case KindStructureType:
		return "structure_type"
	case KindMember:
		return "member"
	case KindLexicalBlock:
		return "lexical_block"
	case KindTypedef:
		return "typedef"
	default:
		return "other"
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}
