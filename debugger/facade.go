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

import (
	"sync"

	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/debuggee"
	"github.com/TalpaLabs/coreminer/plugin"
)

// maxHookDepth bounds the plugin feedback loop (§4.11): a hook's follow-up
// statuses are themselves dispatched, and may themselves trigger hooks,
// but that recursion fails with HookLoopOverflow past this depth.
const maxHookDepth = 64

// stackPayload is Stack's response shape: the live register set alongside
// the current backtrace, the two views a front-end's "stack" command wants
// together rather than as two round trips.
type stackPayload struct {
	Registers interface{} `json:"registers"`
	Backtrace interface{} `json:"backtrace"`
}

// Facade owns one debuggee.Session and one plugin.Registry and is the sole
// entry point front-ends call. It serializes every Status to completion
// behind a single non-reentrant mutex (§5); plugin follow-up statuses are
// dispatched by direct recursive call while that mutex is still held by
// the same goroutine, never by re-acquiring it.
type Facade struct {
	mu sync.Mutex

	sess    *debuggee.Session
	plugins *plugin.Registry
	stepper int
}

// NewFacade returns a Facade with a fresh, not-yet-run session and an
// empty plugin registry.
func NewFacade() *Facade {
	return &Facade{
		sess:    debuggee.New(),
		plugins: plugin.NewRegistry(),
	}
}

// Plugins exposes the registry so a front-end's start-up code can Register
// concrete hooks before serving any Status.
func (f *Facade) Plugins() *plugin.Registry {
	return f.plugins
}

// Dispatch processes one Status to completion and returns its Feedback.
func (f *Facade) Dispatch(st *Status) *Feedback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatch(st, 0)
}

func (f *Facade) dispatch(st *Status, depth int) *Feedback {
	if depth > maxHookDepth {
		return ErrorFeedback(cmerr.New(cmerr.HookLoopOverflow, "plugin feedback loop exceeded depth %d", maxHookDepth))
	}

	fb := f.execute(st)

	if fb.Tag != FeedbackExit && isControlTag(st.Tag) {
		fb = f.afterControlOp(st.Tag, fb, depth)
	}

	return fb
}

func isControlTag(tag Tag) bool {
	switch tag {
	case TagRun, TagContinue, TagStep, TagStepIn, TagStepOver, TagStepOut:
		return true
	}
	return false
}

// afterControlOp implements §4.11's hook points: PreSignalHandler whenever
// the session stopped carrying an organic last_signal, OnSigTrap whenever
// a Continue, StepOver or StepOut stopped on an int3 trap. The first hook
// outcome that requests an override replaces fb; every hook's follow-up
// statuses are dispatched afterward, in registration order, one recursion
// level deeper.
func (f *Facade) afterControlOp(tag Tag, fb *Feedback, depth int) *Feedback {
	if f.sess.State() == debuggee.Exited {
		return Exited(f.exitCodeOrZero())
	}

	var outcomes []plugin.Outcome
	_, hasOrganicSignal := f.sess.LastSignal()
	if hasOrganicSignal {
		outcomes = append(outcomes, f.plugins.Dispatch(plugin.EventPreSignal, f.sess)...)
	}
	// A Stopped state that did not arrive via an organic signal got there
	// through a SIGTRAP. After an operation that resumes the child with
	// PTRACE_CONT that trap is an int3, the trap OnSigTrap hooks exist to
	// observe; the exec trap that ends Run and the single-step traps of
	// Step and StepIn do not dispatch it.
	resumedWithCont := tag == TagContinue || tag == TagStepOver || tag == TagStepOut
	if f.sess.State() == debuggee.Stopped && !hasOrganicSignal && resumedWithCont {
		outcomes = append(outcomes, f.plugins.Dispatch(plugin.EventSigTrap, f.sess)...)
	}

	for _, outcome := range outcomes {
		if outcome.Override {
			if replacement, ok := outcome.Feedback.(*Feedback); ok {
				fb = replacement
				break
			}
		}
	}
	for _, outcome := range outcomes {
		for _, item := range outcome.FollowUp {
			if followUp, ok := item.(*Status); ok {
				fb = f.dispatch(followUp, depth+1)
			}
		}
	}

	return fb
}

func (f *Facade) exitCodeOrZero() int {
	code, _ := f.sess.ExitCode()
	return code
}

// execute dispatches st to the session with no plugin involvement; the
// caller layers hook invocation on top.
func (f *Facade) execute(st *Status) *Feedback {
	switch st.Tag {
	case TagRun:
		if err := f.sess.Run(st.Path, st.Args); err != nil {
			return ErrorFeedback(err)
		}
		return Ok(nil)

	case TagContinue:
		return f.afterExit(f.sess.Continue())

	case TagStep:
		return f.afterExit(f.sess.Step())

	case TagStepIn:
		return f.afterExit(f.sess.StepIn())

	case TagStepOver:
		return f.afterExit(f.sess.StepOver())

	case TagStepOut:
		return f.afterExit(f.sess.StepOut())

	case TagSetBreakpoint:
		if err := f.sess.SetBreakpoint(st.Address); err != nil {
			return ErrorFeedback(err)
		}
		return Ok(nil)

	case TagDeleteBreakpoint:
		if err := f.sess.DeleteBreakpoint(st.Address); err != nil {
			return ErrorFeedback(err)
		}
		return Ok(nil)

	case TagDisassemble:
		lines, err := f.sess.Disassemble(st.Address, st.Length, st.Literal)
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(lines)

	case TagBacktrace:
		frames, err := f.sess.Backtrace()
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(frames)

	case TagStack:
		regs, err := f.sess.Registers()
		if err != nil {
			return ErrorFeedback(err)
		}
		frames, err := f.sess.Backtrace()
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(stackPayload{Registers: regs, Backtrace: frames})

	case TagProcessMap:
		regions, err := f.sess.ProcessMap()
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(regions)

	case TagRegsGet:
		regs, err := f.sess.Registers()
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(regs)

	case TagRegsSet:
		if err := f.sess.SetRegister(st.Register, st.RegValue); err != nil {
			return ErrorFeedback(err)
		}
		return Ok(nil)

	case TagReadMem:
		data, err := f.sess.ReadMemory(st.Address, st.Length)
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(HexBytes(data))

	case TagWriteMem:
		if err := f.sess.WriteMemory(st.Address, st.Bytes); err != nil {
			return ErrorFeedback(err)
		}
		return Ok(nil)

	case TagGetSymbolsByName:
		refs, err := f.sess.SymbolsByName(st.Name)
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(refs)

	case TagReadVariable:
		v, err := f.sess.ReadVariable(st.Name)
		if err != nil {
			return ErrorFeedback(err)
		}
		return Ok(v)

	case TagWriteVariable:
		if err := f.sess.WriteVariable(st.Name, st.Bytes); err != nil {
			return ErrorFeedback(err)
		}
		return Ok(nil)

	case TagSetStepper:
		f.stepper = st.N
		return Ok(f.stepper)

	case TagPluginSetEnabled:
		if !f.plugins.SetEnabled(st.PluginID, st.Enabled) {
			return ErrorFeedback(cmerr.New(cmerr.Unknown, "no plugin registered with id %q", st.PluginID))
		}
		return Ok(nil)

	case TagPluginList:
		return Ok(f.plugins.List())

	case TagQuit:
		if err := f.sess.Quit(); err != nil {
			return ErrorFeedback(err)
		}
		return Exited(f.exitCodeOrZero())

	default:
		return ErrorFeedback(cmerr.New(cmerr.Unknown, "unrecognized status tag %q", st.Tag))
	}
}

// afterExit turns a control operation's error (or lack thereof) into a
// Feedback, collapsing into Exited if the session transitioned to Exited
// as a side effect rather than via an explicit error.
func (f *Facade) afterExit(err error) *Feedback {
	if err != nil {
		return ErrorFeedback(err)
	}
	if f.sess.State() == debuggee.Exited {
		return Exited(f.exitCodeOrZero())
	}
	return Ok(nil)
}
