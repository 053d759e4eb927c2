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

// DW_ATE_* base type encodings (DWARF5 §7.8), the values DW_AT_encoding
// carries on a KindBaseType symbol. Only the encodings this debugger's
// variable reader distinguishes between are named.
const (
	EncodingAddress      = 0x1
	EncodingBoolean      = 0x2
	EncodingFloat        = 0x4
	EncodingSigned       = 0x5
	EncodingSignedChar   = 0x6
	EncodingUnsigned     = 0x7
	EncodingUnsignedChar = 0x8
)
