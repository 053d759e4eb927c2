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

package cmerr

// DebuggerError is the serializable form of an *Error chain — the wire
// representation a JSON Feedback.Error carries, since Kind and Error
// themselves are not meant to cross the process boundary directly.
type DebuggerError struct {
	Kind    string         `json:"kind"`
	Message string         `json:"message"`
	Cause   *DebuggerError `json:"cause,omitempty"`
}

// Error implements the error interface.
func (d *DebuggerError) Error() string {
	if d.Cause == nil {
		return d.Message
	}
	return d.Message + ": " + d.Cause.Error()
}

// Unwrap allows errors.Is/errors.As to walk a decoded DebuggerError chain.
func (d *DebuggerError) Unwrap() error {
	if d.Cause == nil {
		return nil
	}
	return d.Cause
}

// ToDebuggerError converts any error into its wire form. A *Error's chain
// is walked and converted link by link; any other error becomes a single
// Unknown-kind DebuggerError carrying its message.
func ToDebuggerError(err error) *DebuggerError {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return &DebuggerError{
			Kind:    e.Kind.String(),
			Message: e.Message,
			Cause:   ToDebuggerError(e.Cause),
		}
	}
	return &DebuggerError{Kind: Unknown.String(), Message: err.Error()}
}
