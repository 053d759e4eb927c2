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

import (
	cppdemangle "github.com/ianlancetaylor/demangle"
)

// demangle best-effort demangles an Itanium C++ or Rust symbol name, falling
// back to name itself for anything cppdemangle.Filter doesn't recognize as
// mangled (plain C symbols, already-demangled names, forms it doesn't
// support).
func demangle(name string) string {
	return cppdemangle.Filter(name)
}
