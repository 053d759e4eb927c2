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

// Package addr defines the two primitive numeric types that cross every
// debugger boundary: Address, an absolute virtual address in the debuggee,
// and Word, the machine word ptrace peek/poke deals in. Both are 64-bit on
// the only architecture this debugger targets.
package addr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Address is an absolute virtual address inside the debuggee's address
// space, unless a caller documents it as a file/link-time offset. The null
// address is 0.
type Address uint64

// Word is exactly as wide as the debuggee's machine word. ptrace peek/poke
// always operates in units of Word.
type Word uint64

// Add returns addr advanced by n bytes. Wraps on 64-bit overflow, matching
// the semantics of the underlying unsigned arithmetic.
func (a Address) Add(n int64) Address {
	return Address(int64(a) + n)
}

// Sub returns addr receded by n bytes.
func (a Address) Sub(n int64) Address {
	return a.Add(-n)
}

// Diff returns a - b as a signed byte count.
func (a Address) Diff(b Address) int64 {
	return int64(a) - int64(b)
}

// IsNull reports whether a is the null address (0).
func (a Address) IsNull() bool {
	return a == 0
}

// String formats a as lowercase 0x-prefixed hex, e.g. "0x401020".
func (a Address) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// ParseAddress parses a hex string, with or without a leading "0x"/"0X",
// into an Address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	return Address(v), nil
}

// MarshalJSON serializes an Address as its hex string form, per the wire
// format the JSON front-end (cmserve) requires.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON parses an Address from its hex string form.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// String formats w as lowercase 0x-prefixed hex.
func (w Word) String() string {
	return fmt.Sprintf("0x%x", uint64(w))
}

// MarshalJSON serializes a Word as its hex string form.
func (w Word) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON parses a Word from its hex string form.
func (w *Word) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	a, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*w = Word(a)
	return nil
}

// Bytes returns the little-endian byte encoding of w, the byte order every
// x86-64 Linux debuggee uses.
func (w Word) Bytes() [8]byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(w >> (8 * i))
	}
	return b
}

// WordFromBytes is the inverse of Bytes, reading at most 8 little-endian
// bytes (fewer than 8 are zero-extended).
func WordFromBytes(b []byte) Word {
	var w Word
	for i := 0; i < len(b) && i < 8; i++ {
		w |= Word(b[i]) << (8 * i)
	}
	return w
}
