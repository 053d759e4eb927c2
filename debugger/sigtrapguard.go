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

import "github.com/TalpaLabs/coreminer/plugin"

// SigtrapGuard is the sample OnSigTrap hook spec.md §8 scenario 6 describes:
// a debuggee that installs its own SIGTRAP handler and executes int3 to
// detect whether it is being traced. Without this hook, the debugger's own
// breakpoint machinery consumes the trap and the child never sees it, so it
// prints its "DEBUGGER DETECTED" branch. With it enabled, the stop is
// replaced by an immediate Continue, so the front-end never sees the trap as
// a stop. That Continue resumes the child with no signal: the SIGTRAP itself
// is not delivered to the child, and the child's own handler does not run.
//
// It lives in this package rather than plugin because producing a
// replacement Feedback and a follow-up Status requires the concrete types
// this package owns; plugin itself only ever sees them as Outcome's opaque
// any fields.
type SigtrapGuard struct{}

// ID implements plugin.Hook.
func (SigtrapGuard) ID() string { return "sigtrap-guard" }

// PreSignalHandler implements plugin.Hook; this guard only acts on traps.
func (SigtrapGuard) PreSignalHandler(plugin.SessionView) (plugin.Outcome, bool) {
	return plugin.Outcome{}, false
}

// OnSigTrap implements plugin.Hook: replace the default "stopped" feedback
// with an immediate Continue, so the trap never reaches the front-end as a
// stop at all.
func (SigtrapGuard) OnSigTrap(plugin.SessionView) (plugin.Outcome, bool) {
	return plugin.Outcome{
		Override: true,
		Feedback: Ok(nil),
		FollowUp: []any{&Status{Tag: TagContinue}},
	}, true
}
