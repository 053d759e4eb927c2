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

// Package plugin is the debugger's extension hook surface: named points in
// the signal-handling path (PreSignalHandler, OnSigTrap) where a registered
// Hook can observe a read-only view of the session and optionally replace
// the façade's default feedback or queue follow-up statuses of its own.
// Hooks are dispatched synchronously, in registration order, with the
// registry's own lock released before any hook runs — a hook is free to
// submit statuses that loop back through the façade.
package plugin

import (
	"sort"
	"sync"
	"syscall"

	"github.com/TalpaLabs/coreminer/debuggee"
)

// Event names the point in the signal-handling path a hook was invoked at.
type Event int

const (
	EventPreSignal Event = iota
	EventSigTrap
)

func (e Event) String() string {
	switch e {
	case EventPreSignal:
		return "PreSignalHandler"
	case EventSigTrap:
		return "OnSigTrap"
	}
	return "Unknown"
}

// SessionView is the read-only slice of debuggee.Session a hook is allowed
// to observe. It is satisfied directly by *debuggee.Session.
type SessionView interface {
	State() debuggee.RunState
	PID() (int, bool)
	LastSignal() (syscall.Signal, bool)
}

// Outcome is what a hook hands back to the registry. Feedback and FollowUp
// are opaque (any) here to avoid plugin importing the façade package that
// owns the concrete Feedback/Status wire types; the façade type-asserts
// them back on receipt. A hook that does not want to participate in a
// given event returns handled=false and a zero Outcome.
type Outcome struct {
	// Override, if true, replaces the façade's default feedback for this
	// event with Feedback (expected concrete type: *debugger.Feedback).
	Override bool
	Feedback any

	// FollowUp is a list of additional statuses (expected concrete type:
	// *debugger.Status) the façade re-dispatches after this event,
	// subject to the bounded feedback loop.
	FollowUp []any
}

// Hook is one registered extension. ID must be stable and unique within a
// Registry.
type Hook interface {
	ID() string
	PreSignalHandler(view SessionView) (Outcome, bool)
	OnSigTrap(view SessionView) (Outcome, bool)
}

// Descriptor is the serializable view of a registered plugin PluginList
// feedback exposes.
type Descriptor struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
}

type registration struct {
	hook    Hook
	enabled bool
}

// Registry owns the set of registered hooks and their enabled flags.
type Registry struct {
	mu   sync.Mutex
	regs []*registration
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds hook, enabled by default. Registering a hook whose ID is
// already present replaces the existing registration in place, preserving
// its original position (and hence its dispatch order).
func (r *Registry) Register(hook Hook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if reg.hook.ID() == hook.ID() {
			reg.hook = hook
			return
		}
	}
	r.regs = append(r.regs, &registration{hook: hook, enabled: true})
}

// SetEnabled toggles the enabled flag of the plugin named id. It reports
// whether a plugin with that id was found.
func (r *Registry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.regs {
		if reg.hook.ID() == id {
			reg.enabled = enabled
			return true
		}
	}
	return false
}

// List returns every registered plugin's descriptor, sorted by id.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Descriptor, 0, len(r.regs))
	for _, reg := range r.regs {
		out = append(out, Descriptor{ID: reg.hook.ID(), Enabled: reg.enabled})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Dispatch invokes ev on every enabled hook, in registration order,
// returning every Outcome whose hook reported handled=true. The registry's
// own lock is released (a snapshot of the enabled hooks is taken) before
// any hook runs, so a hook calling back into the façade never deadlocks on
// this registry.
func (r *Registry) Dispatch(ev Event, view SessionView) []Outcome {
	r.mu.Lock()
	snapshot := make([]Hook, 0, len(r.regs))
	for _, reg := range r.regs {
		if reg.enabled {
			snapshot = append(snapshot, reg.hook)
		}
	}
	r.mu.Unlock()

	var outcomes []Outcome
	for _, hook := range snapshot {
		var outcome Outcome
		var handled bool
		switch ev {
		case EventPreSignal:
			outcome, handled = hook.PreSignalHandler(view)
		case EventSigTrap:
			outcome, handled = hook.OnSigTrap(view)
		}
		if handled {
			outcomes = append(outcomes, outcome)
		}
	}
	return outcomes
}
