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

// RunState is the child's position in its lifecycle:
//
//	NotStarted ──run──▶ Stopped ──cont/step…──▶ Running ──wait_signal──▶ Stopped
//	Running/Stopped ──exit──▶ Exited (terminal)
type RunState int

const (
	NotStarted RunState = iota
	Stopped
	Running
	Exited
)

func (s RunState) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Stopped:
		return "Stopped"
	case Running:
		return "Running"
	case Exited:
		return "Exited"
	}
	return "Unknown"
}
