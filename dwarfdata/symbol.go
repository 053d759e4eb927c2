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

import "github.com/TalpaLabs/coreminer/addr"

// Offset is a DIE offset, unique within one ELF image's DWARF data and the
// key every index in Tree is built from.
type Offset uint64

// Symbol is one owned node of the DWARF DIE tree: a compile unit, a
// function, a variable, a type, or any other recognized tag. Fields that
// DWARF marks optional for a given kind are guarded by a Has* flag rather
// than a pointer, since Symbol is copied freely by value in query results.
type Symbol struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name,omitempty"`
	Offset Offset `json:"offset"`

	HasPC bool         `json:"-"`
	LowPC addr.Address `json:"low_pc,omitempty"`
	// HighPC, like DWARF itself, is usually encoded as a size added to
	// LowPC; the tree resolves it to an absolute address at build time.
	HighPC addr.Address `json:"high_pc,omitempty"`

	HasByteSize bool   `json:"-"`
	ByteSize    uint64 `json:"byte_size,omitempty"`

	// HasEncoding/Encoding carry DW_AT_encoding (DW_ATE_*) for base types,
	// the only way to tell a signed int from an unsigned one or a float
	// apart from a same-sized integer.
	HasEncoding bool   `json:"-"`
	Encoding    uint64 `json:"encoding,omitempty"`

	HasType      bool   `json:"-"`
	TypeOffset   Offset `json:"type_offset,omitempty"`
	TypeDangling bool   `json:"type_dangling,omitempty"`

	// FrameBase is the raw, unevaluated DW_AT_frame_base expression.
	// Only ever set on KindSubprogram.
	FrameBase []byte `json:"-"`
	// Location is the raw, unevaluated DW_AT_location expression. Only
	// ever set on KindVariable and KindFormalParameter.
	Location []byte `json:"-"`

	HasMemberOffset bool  `json:"-"`
	MemberOffset    int64 `json:"member_offset,omitempty"`

	Children []*Symbol `json:"children,omitempty"`

	parent *Symbol
}

// ContainsPC reports whether pc falls within [LowPC, HighPC), for symbols
// that carry a PC range at all.
func (s *Symbol) ContainsPC(pc addr.Address) bool {
	if !s.HasPC {
		return false
	}
	return pc >= s.LowPC && pc < s.HighPC
}

// EnclosingSubprogram walks up from s to the nearest ancestor (or s itself)
// of KindSubprogram, the symbol whose DW_AT_frame_base governs every
// variable lexically nested within it.
func (s *Symbol) EnclosingSubprogram() (*Symbol, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if cur.Kind == KindSubprogram {
			return cur, true
		}
	}
	return nil, false
}

// Ref is the lightweight handle query operations return: enough to look the
// full Symbol back up via Tree.ByOffset without copying the whole subtree.
type Ref struct {
	Offset Offset `json:"offset"`
	Name   string `json:"name,omitempty"`
	Kind   Kind   `json:"kind"`
}

func refOf(s *Symbol) Ref {
	return Ref{Offset: s.Offset, Name: s.Name, Kind: s.Kind}
}
