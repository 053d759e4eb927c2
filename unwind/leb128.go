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

func uleb128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	n := 0
	for n < len(b) {
		by := b[n]
		n++
		result |= uint64(by&0x7f) << shift
		if by&0x80 == 0 {
			break
		}
		shift += 7
	}
	return result, n
}

func sleb128(b []byte) (int64, int) {
	var result int64
	var shift uint
	n := 0
	var by byte
	for n < len(b) {
		by = b[n]
		n++
		result |= int64(by&0x7f) << shift
		shift += 7
		if by&0x80 == 0 {
			break
		}
	}
	if shift < 64 && by&0x40 != 0 {
		result |= -1 << shift
	}
	return result, n
}
