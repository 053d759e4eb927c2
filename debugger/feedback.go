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

package debugger

import "github.com/TalpaLabs/coreminer/cmerr"

// FeedbackTag discriminates a Feedback's shape: a successful payload, a
// curated error, or notice that the child has terminated.
type FeedbackTag string

const (
	FeedbackOk    FeedbackTag = "Ok"
	FeedbackError FeedbackTag = "Error"
	FeedbackExit  FeedbackTag = "Exit"
)

// Feedback is the façade's response to one Status, per spec.md §4.10:
// "either Ok(payload), Error(DebuggerError), or Exited(code)".
type Feedback struct {
	Tag      FeedbackTag         `json:"tag"`
	Payload  any                 `json:"payload,omitempty"`
	Error    *cmerr.DebuggerError `json:"error,omitempty"`
	ExitCode int                 `json:"exit_code,omitempty"`
}

// Ok wraps payload in a successful Feedback.
func Ok(payload any) *Feedback {
	return &Feedback{Tag: FeedbackOk, Payload: payload}
}

// ErrorFeedback converts err to its wire DebuggerError form and wraps it.
func ErrorFeedback(err error) *Feedback {
	return &Feedback{Tag: FeedbackError, Error: cmerr.ToDebuggerError(err)}
}

// Exited reports the child's terminal exit code.
func Exited(code int) *Feedback {
	return &Feedback{Tag: FeedbackExit, ExitCode: code}
}
