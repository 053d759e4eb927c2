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

package debuggee

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/dwarfdata"
	"github.com/TalpaLabs/coreminer/dwarfdata/expr"
	"github.com/TalpaLabs/coreminer/registers"
)

// VariableKind classifies how a Variable's Value field should be read by a
// front-end, since read_variable collapses the DWARF type tree down to a
// handful of display shapes rather than exposing the raw tag.
type VariableKind int

const (
	VariableOther VariableKind = iota
	VariableBool
	VariableSigned
	VariableUnsigned
	VariableFloat
	VariablePointer
	VariableStruct
	VariableArray
)

func (k VariableKind) String() string {
	switch k {
	case VariableBool:
		return "bool"
	case VariableSigned:
		return "signed"
	case VariableUnsigned:
		return "unsigned"
	case VariableFloat:
		return "float"
	case VariablePointer:
		return "pointer"
	case VariableStruct:
		return "struct"
	case VariableArray:
		return "array"
	}
	return "other"
}

// Variable is the result of read_variable: a named location's current
// value, plus enough of its type to let a front-end render or further
// navigate it (struct members, array elements, the pointee of a pointer).
type Variable struct {
	Name    string       `json:"name"`
	TypeName string      `json:"type_name,omitempty"`
	Kind    VariableKind `json:"kind"`
	Address addr.Address `json:"address,omitempty"`
	ByteSize uint64      `json:"byte_size"`
	Raw     []byte       `json:"-"`

	// At most one of these is populated, per Kind; VariableOther and a
	// struct or array not resident in memory carry only Raw.
	Bool     bool              `json:"bool,omitempty"`
	Signed   int64             `json:"signed,omitempty"`
	Unsigned uint64            `json:"unsigned,omitempty"`
	Float    float64           `json:"float,omitempty"`
	Pointer  addr.Address      `json:"pointer,omitempty"`
	Members  []Variable        `json:"members,omitempty"`
	Elements []Variable        `json:"elements,omitempty"`
}

// cfaResolver adapts an Unwinder+Snapshot pair to the no-argument thunk
// expr.Context.CFA wants, resolved lazily so a location expression that
// never uses DW_OP_call_frame_cfa never pays for it.
func (s *Session) cfaResolver(regs *registers.Snapshot) func() (addr.Address, error) {
	return func() (addr.Address, error) {
		if s.unw == nil {
			return 0, cmerr.New(cmerr.Dwarf, "no call-frame-information available")
		}
		pc := addr.Address(regs.Rip)
		return s.unw.CFA(pc, s.bias, regs)
	}
}

// frameBaseResolver evaluates sub's DW_AT_frame_base expression (typically
// DW_OP_call_frame_cfa) against regs, lazily, on every call of the thunk
// expr.Context.FrameBase wants.
func (s *Session) frameBaseResolver(sub *dwarfdata.Symbol, regs *registers.Snapshot) func() (addr.Address, error) {
	return func() (addr.Address, error) {
		if sub == nil || len(sub.FrameBase) == 0 {
			return 0, cmerr.New(cmerr.FrameBaseMissing, "enclosing subprogram has no DW_AT_frame_base")
		}
		ctx := expr.Context{
			Regs: regs,
			Mem:  s.proc,
			CFA:  s.cfaResolver(regs),
		}
		place, err := expr.Evaluate(sub.FrameBase, ctx)
		if err != nil {
			return 0, err
		}
		if place.Kind != expr.PlaceMemory {
			return 0, cmerr.New(cmerr.FrameBaseMissing, "frame base did not resolve to an address")
		}
		return place.Address, nil
	}
}

// exprContext builds the evaluation context a variable's own DW_AT_location
// expression needs, wiring the enclosing subprogram's frame base and this
// session's CFI-based CFA resolver.
func (s *Session) exprContext(sym *dwarfdata.Symbol, regs *registers.Snapshot) expr.Context {
	sub, _ := sym.EnclosingSubprogram()
	return expr.Context{
		Regs:      regs,
		Mem:       s.proc,
		FrameBase: s.frameBaseResolver(sub, regs),
		CFA:       s.cfaResolver(regs),
	}
}

// placeToAddress resolves a Place to a readable memory address, for the
// common case where the variable's bytes have to be fetched via ReadMemory
// rather than taken directly from a register or the expression itself.
func placeToAddress(place expr.Place) (addr.Address, bool) {
	if place.Kind != expr.PlaceMemory {
		return 0, false
	}
	return place.Address, true
}

// gatherBytes reads length bytes for a resolved Place: from memory, with
// breakpoint patches hidden, for PlaceMemory, from the live register for
// PlaceRegister, or directly from the expression's own payload for
// PlaceConstant (per §4.8, a constant-place variable has nowhere to read
// more bytes from than the expression already gave it).
func (s *Session) gatherBytes(place expr.Place, length uint64) ([]byte, error) {
	switch place.Kind {
	case expr.PlaceMemory:
		return s.bp.ReadMemoryTransparent(s.proc, place.Address, int(length))

	case expr.PlaceRegister:
		regs, err := s.registersLocked()
		if err != nil {
			return nil, err
		}
		v, _, ok := registerValueByName(regs, place.Register)
		if !ok {
			return nil, cmerr.New(cmerr.RegisterName, "unknown register %q", place.Register)
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		if int(length) > len(buf) {
			length = uint64(len(buf))
		}
		return buf[:length], nil

	case expr.PlaceConstant:
		if int(length) > len(place.Constant) {
			length = uint64(len(place.Constant))
		}
		return place.Constant[:length], nil
	}
	return nil, cmerr.New(cmerr.Dwarf, "unrecognized location place kind %d", place.Kind)
}

func registerValueByName(regs *registers.Snapshot, name string) (uint64, string, bool) {
	v, err := registers.Get(regs, name)
	if err != nil {
		return 0, "", false
	}
	return v, name, true
}

// ReadVariable implements read_variable (§4.8): resolve name to a unique
// DWARF symbol, evaluate its location against the current frame, read its
// bytes, and interpret them according to its type.
func (s *Session) ReadVariable(name string) (*Variable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return nil, err
	}
	if s.tree == nil {
		return nil, cmerr.New(cmerr.NoDebugInfo, "no DWARF symbol tree loaded")
	}

	sym, err := s.tree.ByNameUnique(name)
	if err != nil {
		return nil, err
	}
	if len(sym.Location) == 0 {
		return nil, cmerr.New(cmerr.Dwarf, "symbol %q has no location", name)
	}

	regs, err := s.registersLocked()
	if err != nil {
		return nil, err
	}

	place, err := expr.Evaluate(sym.Location, s.exprContext(sym, regs))
	if err != nil {
		return nil, err
	}

	return s.interpret(name, sym, place)
}

// WriteVariable implements write_variable (§4.8): resolve name the same way
// read_variable does, then poke data's bytes into the resolved place. A
// constant place has nowhere to write to and fails with WriteConstant.
func (s *Session) WriteVariable(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireStopped(); err != nil {
		return err
	}
	if s.tree == nil {
		return cmerr.New(cmerr.NoDebugInfo, "no DWARF symbol tree loaded")
	}

	sym, err := s.tree.ByNameUnique(name)
	if err != nil {
		return err
	}
	if len(sym.Location) == 0 {
		return cmerr.New(cmerr.Dwarf, "symbol %q has no location", name)
	}

	regs, err := s.registersLocked()
	if err != nil {
		return err
	}

	place, err := expr.Evaluate(sym.Location, s.exprContext(sym, regs))
	if err != nil {
		return err
	}

	switch place.Kind {
	case expr.PlaceMemory:
		return writeBytes(s.proc, place.Address, data)

	case expr.PlaceRegister:
		var buf [8]byte
		copy(buf[:], data)
		return s.proc.regs.Set(place.Register, binary.LittleEndian.Uint64(buf[:]))

	case expr.PlaceConstant:
		return cmerr.New(cmerr.WriteConstant, "symbol %q resolved to a constant expression, nothing to write to", name)
	}
	return cmerr.New(cmerr.Dwarf, "unrecognized location place kind %d", place.Kind)
}

// interpret recursively decodes sym's type against the bytes found at
// place, dispatching on the type's Kind the way §4.8 describes: pointers
// read their pointee's address only (never follow it automatically),
// structs recurse into each member at its DW_AT_data_member_location,
// arrays recurse into each element, and base types are sign/zero/float
// decoded per their DW_AT_encoding.
func (s *Session) interpret(name string, sym *dwarfdata.Symbol, place expr.Place) (*Variable, error) {
	typ, hasType := s.tree.TypeOf(sym)

	v := &Variable{Name: name}
	if a, ok := placeToAddress(place); ok {
		v.Address = a
	}

	if !hasType {
		bytes, err := s.gatherBytes(place, 8)
		if err != nil {
			return nil, err
		}
		v.Raw = bytes
		v.ByteSize = uint64(len(bytes))
		v.Kind = VariableOther
		return v, nil
	}

	return s.interpretTyped(v, typ, place)
}

func (s *Session) interpretTyped(v *Variable, typ *dwarfdata.Symbol, place expr.Place) (*Variable, error) {
	// Typedefs are transparent: resolve through to the underlying type
	// before dispatching, keeping the typedef's own name for display.
	resolved := typ
	for resolved.Kind == dwarfdata.KindTypedef {
		next, ok := s.tree.TypeOf(resolved)
		if !ok {
			break
		}
		if v.TypeName == "" {
			v.TypeName = resolved.Name
		}
		resolved = next
	}
	if v.TypeName == "" {
		v.TypeName = resolved.Name
	}

	switch resolved.Kind {
	case dwarfdata.KindPointerType:
		return s.interpretPointer(v, resolved, place)
	case dwarfdata.KindStructureType:
		return s.interpretStruct(v, resolved, place)
	case dwarfdata.KindArrayType:
		return s.interpretArray(v, resolved, place)
	case dwarfdata.KindBaseType:
		return s.interpretBase(v, resolved, place)
	default:
		size := resolved.ByteSize
		if size == 0 {
			size = 8
		}
		bytes, err := s.gatherBytes(place, size)
		if err != nil {
			return nil, err
		}
		v.Raw = bytes
		v.ByteSize = uint64(len(bytes))
		v.Kind = VariableOther
		return v, nil
	}
}

func (s *Session) interpretPointer(v *Variable, typ *dwarfdata.Symbol, place expr.Place) (*Variable, error) {
	const pointerSize = 8
	bytes, err := s.gatherBytes(place, pointerSize)
	if err != nil {
		return nil, err
	}
	v.Raw = bytes
	v.ByteSize = uint64(len(bytes))
	v.Kind = VariablePointer
	v.Pointer = addr.Address(addr.WordFromBytes(bytes))
	return v, nil
}

func (s *Session) interpretStruct(v *Variable, typ *dwarfdata.Symbol, place expr.Place) (*Variable, error) {
	base, ok := placeToAddress(place)
	if !ok {
		// A struct that is not in memory (e.g. entirely register-resident)
		// cannot have its members' own locations derived; report it as an
		// opaque blob instead of failing the whole read.
		bytes, err := s.gatherBytes(place, typ.ByteSize)
		if err != nil {
			return nil, err
		}
		v.Raw = bytes
		v.ByteSize = uint64(len(bytes))
		v.Kind = VariableStruct
		return v, nil
	}

	v.Kind = VariableStruct
	v.ByteSize = typ.ByteSize
	v.Address = base

	for _, member := range typ.Children {
		if member.Kind != dwarfdata.KindMember {
			continue
		}
		memberAddr := base.Add(member.MemberOffset)
		memberPlace := expr.Place{Kind: expr.PlaceMemory, Address: memberAddr}

		memberTyp, hasType := s.tree.TypeOf(member)
		mv := Variable{Name: member.Name, Address: memberAddr}
		if !hasType {
			mv.Kind = VariableOther
			v.Members = append(v.Members, mv)
			continue
		}
		out, err := s.interpretTyped(&mv, memberTyp, memberPlace)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", member.Name, err)
		}
		v.Members = append(v.Members, *out)
	}
	return v, nil
}

// maxArrayElements bounds how many elements interpretArray will decode, so
// a pathologically large array (or a malformed byte size) cannot make a
// single read_variable call allocate without limit.
const maxArrayElements = 4096

func (s *Session) interpretArray(v *Variable, typ *dwarfdata.Symbol, place expr.Place) (*Variable, error) {
	elemTyp, ok := s.tree.TypeOf(typ)
	if !ok {
		return nil, cmerr.New(cmerr.Dwarf, "array type %q has no element type", typ.Name)
	}
	elemSize := elemTyp.ByteSize
	if elemSize == 0 {
		elemSize = 8
	}

	base, ok := placeToAddress(place)
	if !ok {
		bytes, err := s.gatherBytes(place, typ.ByteSize)
		if err != nil {
			return nil, err
		}
		v.Raw = bytes
		v.ByteSize = uint64(len(bytes))
		v.Kind = VariableArray
		return v, nil
	}

	v.Kind = VariableArray
	v.ByteSize = typ.ByteSize
	v.Address = base

	count := uint64(0)
	if elemSize > 0 && typ.ByteSize > 0 {
		count = typ.ByteSize / elemSize
	}
	if count > maxArrayElements {
		count = maxArrayElements
	}

	for i := uint64(0); i < count; i++ {
		elemAddr := base.Add(int64(i * elemSize))
		elemPlace := expr.Place{Kind: expr.PlaceMemory, Address: elemAddr}
		ev := Variable{Name: fmt.Sprintf("[%d]", i), Address: elemAddr}
		out, err := s.interpretTyped(&ev, elemTyp, elemPlace)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		v.Elements = append(v.Elements, *out)
	}
	return v, nil
}

// interpretBase decodes a base type's raw bytes per its DW_AT_encoding:
// DW_ATE_boolean as a bool, DW_ATE_float as IEEE-754 (4 or 8 bytes),
// DW_ATE_signed/signed_char as a sign-extended integer, and everything else
// (DW_ATE_unsigned/unsigned_char/address, or no encoding at all) as an
// unsigned integer.
func (s *Session) interpretBase(v *Variable, typ *dwarfdata.Symbol, place expr.Place) (*Variable, error) {
	size := typ.ByteSize
	if size == 0 {
		size = 8
	}
	bytes, err := s.gatherBytes(place, size)
	if err != nil {
		return nil, err
	}
	v.Raw = bytes
	v.ByteSize = uint64(len(bytes))

	raw := addr.WordFromBytes(bytes)

	if typ.HasEncoding {
		switch typ.Encoding {
		case dwarfdata.EncodingBoolean:
			v.Kind = VariableBool
			v.Bool = raw != 0
			return v, nil

		case dwarfdata.EncodingFloat:
			v.Kind = VariableFloat
			switch len(bytes) {
			case 4:
				v.Float = float64(math.Float32frombits(uint32(raw)))
			default:
				v.Float = math.Float64frombits(uint64(raw))
			}
			return v, nil

		case dwarfdata.EncodingSigned, dwarfdata.EncodingSignedChar:
			v.Kind = VariableSigned
			v.Signed = signExtend(uint64(raw), len(bytes))
			return v, nil
		}
	}

	v.Kind = VariableUnsigned
	v.Unsigned = uint64(raw)
	return v, nil
}

// signExtend sign-extends the low byteLen bytes of raw (little-endian
// value already widened into a uint64) to a full int64.
func signExtend(raw uint64, byteLen int) int64 {
	if byteLen <= 0 || byteLen >= 8 {
		return int64(raw)
	}
	shift := uint(64 - byteLen*8)
	return int64(raw<<shift) >> shift
}
