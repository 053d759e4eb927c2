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

// Package dwarfdata builds an owned, serializable symbol tree from an ELF
// executable's DWARF debug information: one pass over every compile unit's
// DIE tree at load time, then pure in-memory lookups by name, by program
// counter, and by DIE offset. Location and frame-base expressions are kept
// as raw bytes; dwarfdata never evaluates them against a live frame — that
// is dwarfdata/expr's job.
package dwarfdata

import (
	"debug/dwarf"
	"debug/elf"
	"sort"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
)

// Tree is the forest of compile units for one ELF image, plus the by-name
// and by-offset indices built alongside it. Built once, immutable
// thereafter.
type Tree struct {
	units    []*Symbol
	byName   map[string][]*Symbol
	byOffset map[Offset]*Symbol

	// firstLoadVaddr is the lowest p_vaddr among the ELF's PT_LOAD
	// segments, the quantity the load bias is computed against (§4.13).
	firstLoadVaddr addr.Address
	hasLoadVaddr   bool
}

// Load opens path as an ELF file, locates its DWARF sections, and builds
// the full symbol tree. The file is closed before Load returns; Tree keeps
// no reference to it.
func Load(path string) (*Tree, error) {
	ef, err := elf.Open(path)
	if err != nil {
		return nil, cmerr.Wrap(cmerr.Io, err, "open ELF %q", path)
	}
	defer ef.Close()

	dw, err := ef.DWARF()
	if err != nil {
		return nil, cmerr.Wrap(cmerr.NoDebugInfo, err, "no DWARF data in %q", path)
	}

	units, byName, byOffset, err := buildTree(dw)
	if err != nil {
		return nil, err
	}

	t := &Tree{units: units, byName: byName, byOffset: byOffset}

	for _, prog := range ef.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		v := addr.Address(prog.Vaddr)
		if !t.hasLoadVaddr || v < t.firstLoadVaddr {
			t.firstLoadVaddr = v
			t.hasLoadVaddr = true
		}
	}

	return t, nil
}

// FirstLoadVaddr returns the lowest p_vaddr among the image's PT_LOAD
// segments, the value debuggee subtracts from the runtime mapping's start
// address to derive the load bias (§4.13).
func (t *Tree) FirstLoadVaddr() (addr.Address, bool) {
	return t.firstLoadVaddr, t.hasLoadVaddr
}

func buildTree(d *dwarf.Data) ([]*Symbol, map[string][]*Symbol, map[Offset]*Symbol, error) {
	byName := map[string][]*Symbol{}
	byOffset := map[Offset]*Symbol{}
	var units []*Symbol
	var stack []*Symbol

	r := d.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return nil, nil, nil, cmerr.Wrap(cmerr.Dwarf, err, "reading DIE tree")
		}
		if entry == nil {
			break
		}
		if entry.Tag == 0 {
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
			continue
		}

		sym := symbolFromEntry(entry)
		byOffset[sym.Offset] = sym
		if sym.Name != "" {
			byName[sym.Name] = append(byName[sym.Name], sym)
		}

		if len(stack) == 0 {
			units = append(units, sym)
		} else {
			parent := stack[len(stack)-1]
			sym.parent = parent
			parent.Children = append(parent.Children, sym)
		}

		if entry.Children {
			stack = append(stack, sym)
		}
	}

	resolveDanglingTypes(byOffset)

	return units, byName, byOffset, nil
}

func resolveDanglingTypes(byOffset map[Offset]*Symbol) {
	for _, sym := range byOffset {
		if sym.HasType {
			if _, ok := byOffset[sym.TypeOffset]; !ok {
				sym.TypeDangling = true
			}
		}
	}
}

func kindOf(tag dwarf.Tag) Kind {
	switch tag {
	case dwarf.TagCompileUnit:
		return KindCompileUnit
	case dwarf.TagSubprogram:
		return KindSubprogram
	case dwarf.TagVariable:
		return KindVariable
	case dwarf.TagFormalParameter:
		return KindFormalParameter
	case dwarf.TagBaseType:
		return KindBaseType
	case dwarf.TagPointerType:
		return KindPointerType
	case dwarf.TagArrayType:
		return KindArrayType
	case dwarf.TagStructType:
		return KindStructureType
	case dwarf.TagMember:
		return KindMember
	case dwarf.TagLexDwarfBlock:
		return KindLexicalBlock
	case dwarf.TagTypedef:
		return KindTypedef
	default:
		return KindOther
	}
}

func symbolFromEntry(entry *dwarf.Entry) *Symbol {
	sym := &Symbol{
		Kind:   kindOf(entry.Tag),
		Offset: Offset(entry.Offset),
	}

	if name, ok := entry.Val(dwarf.AttrName).(string); ok {
		sym.Name = demangle(name)
	}

	if low, ok := valUint64(entry.Val(dwarf.AttrLowpc)); ok {
		sym.LowPC = addr.Address(low)
		sym.HasPC = true

		if field := entry.AttrField(dwarf.AttrHighpc); field != nil {
			if high, ok := valUint64(field.Val); ok {
				if field.Class == dwarf.ClassAddress {
					sym.HighPC = addr.Address(high)
				} else {
					sym.HighPC = sym.LowPC.Add(int64(high))
				}
			}
		}
	}

	if sz, ok := valUint64(entry.Val(dwarf.AttrByteSize)); ok {
		sym.ByteSize = sz
		sym.HasByteSize = true
	}

	if enc, ok := valUint64(entry.Val(dwarf.AttrEncoding)); ok {
		sym.Encoding = enc
		sym.HasEncoding = true
	}

	if to, ok := entry.Val(dwarf.AttrType).(dwarf.Offset); ok {
		sym.TypeOffset = Offset(to)
		sym.HasType = true
	}

	if fb, ok := entry.Val(dwarf.AttrFrameBase).([]byte); ok {
		sym.FrameBase = fb
	}

	if loc, ok := entry.Val(dwarf.AttrLocation).([]byte); ok {
		sym.Location = loc
	}

	if field := entry.AttrField(dwarf.AttrDataMemberLoc); field != nil {
		if off, ok := memberOffset(field); ok {
			sym.MemberOffset = off
			sym.HasMemberOffset = true
		}
	}

	return sym
}

// memberOffset decodes DW_AT_data_member_location, which producers encode
// either as a plain constant or, less commonly, as a one-op exprloc
// "DW_OP_plus_uconst <uleb>".
func memberOffset(field *dwarf.Field) (int64, bool) {
	switch field.Class {
	case dwarf.ClassConstant:
		if v, ok := valUint64(field.Val); ok {
			return int64(v), true
		}
	case dwarf.ClassExprLoc:
		if b, ok := field.Val.([]byte); ok && len(b) > 0 && b[0] == 0x23 { // DW_OP_plus_uconst
			v, _ := uleb128(b[1:])
			return int64(v), true
		}
	}
	return 0, false
}

func uleb128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	n := 0
	for _, by := range b {
		n++
		result |= uint64(by&0x7f) << shift
		if by&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n
}

func valUint64(v interface{}) (uint64, bool) {
	switch x := v.(type) {
	case uint64:
		return x, true
	case int64:
		return uint64(x), true
	case uint32:
		return uint64(x), true
	case int32:
		return uint64(x), true
	default:
		return 0, false
	}
}

// ByName returns every symbol (across every compile unit) named name.
func (t *Tree) ByName(name string) []Ref {
	syms := t.byName[name]
	refs := make([]Ref, 0, len(syms))
	for _, s := range syms {
		refs = append(refs, refOf(s))
	}
	return refs
}

// ByNameUnique returns the single symbol named name, failing with
// AmbiguousSymbol if more than one symbol in the tree carries that name,
// whether in one compile unit or several — the form
// §4.8's read_variable/write_variable use, since a variable reference must
// resolve to exactly one location.
func (t *Tree) ByNameUnique(name string) (*Symbol, error) {
	syms := t.byName[name]
	switch len(syms) {
	case 0:
		return nil, cmerr.New(cmerr.NoDebugInfo, "no symbol named %q", name)
	case 1:
		return syms[0], nil
	default:
		return nil, cmerr.New(cmerr.AmbiguousSymbol, "%d symbols named %q", len(syms), name)
	}
}

// ByOffset looks up a symbol by its DIE offset, its unique key within this
// ELF image's DWARF data.
func (t *Tree) ByOffset(off Offset) (*Symbol, bool) {
	s, ok := t.byOffset[off]
	return s, ok
}

// TypeOf returns the type symbol sym's DW_AT_type attribute refers to, if
// it has one and it resolves within this tree.
func (t *Tree) TypeOf(sym *Symbol) (*Symbol, bool) {
	if sym == nil || !sym.HasType || sym.TypeDangling {
		return nil, false
	}
	return t.ByOffset(sym.TypeOffset)
}

// ByPC finds the innermost subprogram whose [low-PC, high-PC) contains pc,
// resolving through nested lexical blocks to their owning subprogram. pc is
// an absolute runtime address; bias is the load bias computed by the
// caller (§4.13) and is subtracted before comparing against the raw,
// unbiased ranges recorded from the on-disk ELF.
func (t *Tree) ByPC(pc addr.Address, bias addr.Address) (*Symbol, bool) {
	raw := pc.Sub(int64(bias))

	var best *Symbol
	for _, cu := range t.units {
		if found := findInnermost(cu, raw); found != nil {
			best = found
		}
	}
	if best == nil {
		return nil, false
	}

	sub, ok := best.EnclosingSubprogram()
	if !ok {
		return nil, false
	}
	return withBias(sub, bias), true
}

func findInnermost(s *Symbol, rawPC addr.Address) *Symbol {
	if s.HasPC && !(rawPC >= s.LowPC && rawPC < s.HighPC) {
		return nil
	}
	for _, c := range s.Children {
		if inner := findInnermost(c, rawPC); inner != nil {
			return inner
		}
	}
	if s.HasPC {
		return s
	}
	return nil
}

// withBias returns a shallow copy of sym with LowPC/HighPC shifted into the
// debuggee's absolute address space.
func withBias(sym *Symbol, bias addr.Address) *Symbol {
	cp := *sym
	if cp.HasPC {
		cp.LowPC = cp.LowPC.Add(int64(bias))
		cp.HighPC = cp.HighPC.Add(int64(bias))
	}
	return &cp
}

// CompileUnits returns the top-level compile unit symbols, ordered as the
// DWARF data presented them.
func (t *Tree) CompileUnits() []*Symbol {
	return t.units
}

// Names returns every distinct symbol name in the tree, sorted — used by
// front-ends offering tab completion.
func (t *Tree) Names() []string {
	out := make([]string, 0, len(t.byName))
	for n := range t.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
