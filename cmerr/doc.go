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

// Package cmerr is the debugger's error taxonomy. Every error that crosses a
// component boundary is a *Error with a Kind drawn from the fixed list in
// this package, so that a Feedback.Error can be serialized and compared
// without the receiver needing to string-match a message.
//
// Errors chain with Wrap, and the chain is normalised the way the rest of
// this codebase's ancestor normalises plain-error chains: adjacent parts
// that repeat the same kind are not re-announced.
package cmerr
