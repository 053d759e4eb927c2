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

import (
	"encoding/binary"

	"github.com/TalpaLabs/coreminer/cmerr"
)

// cie is one parsed Common Information Entry from .debug_frame: the shared
// prologue every FDE referencing it inherits before its own instructions
// run.
type cie struct {
	offset                uint64
	codeAlignmentFactor   uint64
	dataAlignmentFactor   int64
	returnAddressRegister uint64
	initialInstructions   []byte
}

// fde is one parsed Frame Description Entry: the CFA/register rules for one
// contiguous range of code, expressed as a delta from its CIE's initial
// state.
type fde struct {
	cie             *cie
	initialLocation uint64
	addressRange    uint64
	instructions    []byte
}

// parseDebugFrame walks the classic 32-bit DWARF .debug_frame format: a
// sequence of length-prefixed records, each either a CIE (id field ==
// 0xffffffff) or an FDE (id field is the absolute section offset of its
// CIE). This intentionally does not decode .eh_frame, whose pointer
// encodings (DW_EH_PE_*, PC-relative augmentation data) are a materially
// different, more involved format — see DESIGN.md.
func parseDebugFrame(data []byte) ([]*fde, error) {
	cies := map[uint64]*cie{}
	var fdes []*fde

	off := uint64(0)
	for off+4 <= uint64(len(data)) {
		recordOffset := off
		length := uint64(binary.LittleEndian.Uint32(data[off : off+4]))
		off += 4
		if length == 0 {
			break
		}
		if length == 0xffffffff {
			return nil, cmerr.New(cmerr.Dwarf, "64-bit DWARF .debug_frame not supported")
		}
		if off+length > uint64(len(data)) {
			return nil, cmerr.New(cmerr.Dwarf, ".debug_frame record at %#x overruns section", recordOffset)
		}
		record := data[off : off+length]
		off += length

		if len(record) < 4 {
			continue
		}
		id := binary.LittleEndian.Uint32(record[:4])

		if id == 0xffffffff {
			c, err := parseCIE(recordOffset, record[4:])
			if err != nil {
				return nil, err
			}
			cies[recordOffset] = c
			continue
		}

		c, ok := cies[uint64(id)]
		if !ok {
			return nil, cmerr.New(cmerr.Dwarf, "FDE at %#x references unknown CIE at %#x", recordOffset, id)
		}
		f, err := parseFDE(c, record[4:])
		if err != nil {
			return nil, err
		}
		fdes = append(fdes, f)
	}

	return fdes, nil
}

func parseCIE(offset uint64, b []byte) (*cie, error) {
	if len(b) < 1 {
		return nil, cmerr.New(cmerr.Dwarf, "truncated CIE at %#x", offset)
	}
	version := b[0]
	b = b[1:]

	nul := indexByte(b, 0)
	if nul < 0 {
		return nil, cmerr.New(cmerr.Dwarf, "unterminated CIE augmentation string at %#x", offset)
	}
	augmentation := string(b[:nul])
	b = b[nul+1:]

	if version >= 4 {
		if len(b) < 2 {
			return nil, cmerr.New(cmerr.Dwarf, "truncated CIE address/segment size at %#x", offset)
		}
		b = b[2:] // address_size, segment_selector_size
	}

	caf, n := uleb128(b)
	b = b[n:]
	daf, n := sleb128(b)
	b = b[n:]

	var raReg uint64
	if version == 1 {
		if len(b) < 1 {
			return nil, cmerr.New(cmerr.Dwarf, "truncated CIE return register at %#x", offset)
		}
		raReg = uint64(b[0])
		b = b[1:]
	} else {
		raReg, n = uleb128(b)
		b = b[n:]
	}

	if len(augmentation) > 0 && augmentation[0] == 'z' {
		alen, n := uleb128(b)
		b = b[n:]
		if uint64(len(b)) < alen {
			return nil, cmerr.New(cmerr.Dwarf, "truncated CIE augmentation data at %#x", offset)
		}
		b = b[alen:]
	}

	return &cie{
		offset:                offset,
		codeAlignmentFactor:   caf,
		dataAlignmentFactor:   daf,
		returnAddressRegister: raReg,
		initialInstructions:   b,
	}, nil
}

func parseFDE(c *cie, b []byte) (*fde, error) {
	if len(b) < 16 {
		return nil, cmerr.New(cmerr.Dwarf, "truncated FDE")
	}
	loc := binary.LittleEndian.Uint64(b[:8])
	rng := binary.LittleEndian.Uint64(b[8:16])
	b = b[16:]

	return &fde{cie: c, initialLocation: loc, addressRange: rng, instructions: b}, nil
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
