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

// Package debugger is the façade and feedback bus: it receives one Status
// at a time, dispatches it to a debuggee.Session, invokes any registered
// plugin hooks at the appropriate points, and returns one Feedback. It is
// the only component that knows both the wire (Status/Feedback) shapes and
// the session's Go API; debuggee itself never sees a Status.
package debugger

import "github.com/TalpaLabs/coreminer/addr"

// Tag discriminates a Status's operation, the "tag field" spec.md §6
// requires every line of the JSON protocol to carry.
type Tag string

const (
	TagRun              Tag = "Run"
	TagContinue         Tag = "Continue"
	TagStep             Tag = "Step"
	TagStepIn           Tag = "StepIn"
	TagStepOver         Tag = "StepOver"
	TagStepOut          Tag = "StepOut"
	TagSetBreakpoint    Tag = "SetBreakpoint"
	TagDeleteBreakpoint Tag = "DeleteBreakpoint"
	TagDisassemble      Tag = "Disassemble"
	TagBacktrace        Tag = "Backtrace"
	TagStack            Tag = "Stack"
	TagProcessMap       Tag = "ProcessMap"
	TagRegsGet          Tag = "RegsGet"
	TagRegsSet          Tag = "RegsSet"
	TagReadMem          Tag = "ReadMem"
	TagWriteMem         Tag = "WriteMem"
	TagGetSymbolsByName Tag = "GetSymbolsByName"
	TagReadVariable     Tag = "ReadVariable"
	TagWriteVariable    Tag = "WriteVariable"
	TagSetStepper       Tag = "SetStepper"
	TagPluginSetEnabled Tag = "PluginSetEnabled"
	TagPluginList       Tag = "PluginList"
	TagQuit             Tag = "Quit"
)

// Status is one request to the façade, the input side of the JSON line
// protocol and the CLI. Every field not relevant to Tag is left zero.
type Status struct {
	Tag Tag `json:"tag"`

	// Run
	Path string   `json:"path,omitempty"`
	Args []string `json:"args,omitempty"`

	// SetBreakpoint, DeleteBreakpoint, Disassemble, ReadMem, WriteMem
	Address addr.Address `json:"addr,omitempty"`

	// Disassemble (Length also ReadMem)
	Length  int  `json:"len,omitempty"`
	Literal bool `json:"literal,omitempty"`

	// RegsSet
	Register string `json:"reg,omitempty"`
	RegValue uint64 `json:"val,omitempty"`

	// WriteMem, WriteVariable
	Bytes HexBytes `json:"bytes,omitempty"`

	// GetSymbolsByName, ReadVariable, WriteVariable
	Name string `json:"name,omitempty"`

	// SetStepper
	N int `json:"n,omitempty"`

	// PluginSetEnabled
	PluginID string `json:"plugin_id,omitempty"`
	Enabled  bool   `json:"enabled,omitempty"`
}
