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
	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/breakpoint"
	"github.com/TalpaLabs/coreminer/cmerr"
)

// readRaw reads length bytes starting at a directly through mem, with no
// breakpoint substitution. The disassembler needs these exact physical
// bytes — including any live 0xCC patch — since it does its own cooking via
// the BreakpointLookup capability.
func readRaw(mem breakpoint.Memory, a addr.Address, length int) ([]byte, error) {
	if length <= 0 {
		return nil, nil
	}

	const wordSize = 8
	out := make([]byte, 0, length+wordSize)
	start := a
	for len(out) < length {
		w, err := mem.PeekWord(start)
		if err != nil {
			return nil, cmerr.Wrap(cmerr.MemoryRead, err, "peek at %s", start)
		}
		wb := w.Bytes()
		out = append(out, wb[:]...)
		start = start.Add(wordSize)
	}
	return out[:length], nil
}

// writeBytes pokes data into the tracee starting at a, word at a time,
// read-modify-write so a write shorter than a full word does not clobber
// its neighboring bytes.
func writeBytes(mem breakpoint.Memory, a addr.Address, data []byte) error {
	i := 0
	for i < len(data) {
		wordAddr := a.Add(int64(i))
		word, err := mem.PeekWord(wordAddr)
		if err != nil {
			return cmerr.Wrap(cmerr.MemoryWrite, err, "peek at %s", wordAddr)
		}
		wb := word.Bytes()
		n := copy(wb[:], data[i:])
		if err := mem.PokeWord(wordAddr, addr.WordFromBytes(wb[:])); err != nil {
			return cmerr.Wrap(cmerr.MemoryWrite, err, "poke at %s", wordAddr)
		}
		i += n
	}
	return nil
}
