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

package plugin_test

import (
	"syscall"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/debuggee"
	"github.com/TalpaLabs/coreminer/plugin"
)

type fakeView struct{}

func (fakeView) State() debuggee.RunState          { return debuggee.Stopped }
func (fakeView) PID() (int, bool)                  { return 1234, true }
func (fakeView) LastSignal() (syscall.Signal, bool) { return 0, false }

// recordingHook records every event it is asked about and returns a
// caller-supplied outcome.
type recordingHook struct {
	id          string
	seen        []plugin.Event
	outcome     plugin.Outcome
	handlesPre  bool
	handlesTrap bool
}

func (h *recordingHook) ID() string { return h.id }

func (h *recordingHook) PreSignalHandler(plugin.SessionView) (plugin.Outcome, bool) {
	h.seen = append(h.seen, plugin.EventPreSignal)
	return h.outcome, h.handlesPre
}

func (h *recordingHook) OnSigTrap(plugin.SessionView) (plugin.Outcome, bool) {
	h.seen = append(h.seen, plugin.EventSigTrap)
	return h.outcome, h.handlesTrap
}

func TestRegisterAndList(t *testing.T) {
	r := plugin.NewRegistry()
	r.Register(&recordingHook{id: "b"})
	r.Register(&recordingHook{id: "a"})

	list := r.List()
	require.Len(t, list, 2)
	require.Equal(t, "a", list[0].ID)
	require.Equal(t, "b", list[1].ID)
	require.True(t, list[0].Enabled)
}

func TestRegisterReplacesInPlace(t *testing.T) {
	r := plugin.NewRegistry()
	r.Register(&recordingHook{id: "x"})
	r.Register(&recordingHook{id: "y"})
	r.Register(&recordingHook{id: "x"})

	list := r.List()
	require.Len(t, list, 2)
}

func TestSetEnabledReportsUnknownID(t *testing.T) {
	r := plugin.NewRegistry()
	require.False(t, r.SetEnabled("missing", false))

	r.Register(&recordingHook{id: "known"})
	require.True(t, r.SetEnabled("known", false))

	list := r.List()
	require.False(t, list[0].Enabled)
}

func TestDispatchSkipsDisabledHooks(t *testing.T) {
	r := plugin.NewRegistry()
	h := &recordingHook{id: "h", handlesPre: true}
	r.Register(h)
	r.SetEnabled("h", false)

	outcomes := r.Dispatch(plugin.EventPreSignal, fakeView{})
	require.Empty(t, outcomes)
	require.Empty(t, h.seen)
}

func TestDispatchCollectsOnlyHandledOutcomes(t *testing.T) {
	r := plugin.NewRegistry()
	handles := &recordingHook{id: "handles", handlesTrap: true, outcome: plugin.Outcome{Override: true}}
	ignores := &recordingHook{id: "ignores", handlesTrap: false}
	r.Register(handles)
	r.Register(ignores)

	outcomes := r.Dispatch(plugin.EventSigTrap, fakeView{})
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Override)
	require.Equal(t, []plugin.Event{plugin.EventSigTrap}, handles.seen)
	require.Equal(t, []plugin.Event{plugin.EventSigTrap}, ignores.seen)
}
