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

package debugger_test

import (
	"debug/elf"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/addr"
	"github.com/TalpaLabs/coreminer/debugger"
)

func requireBinary(t *testing.T, name string) string {
	t.Helper()
	path, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %v", name, err)
	}
	return path
}

func entryPoint(t *testing.T, path string) addr.Address {
	t.Helper()
	ef, err := elf.Open(path)
	require.NoError(t, err)
	defer ef.Close()
	return addr.Address(ef.Entry)
}

func TestDispatchRunAndContinueToExit(t *testing.T) {
	path := requireBinary(t, "true")
	f := debugger.NewFacade()

	fb := f.Dispatch(&debugger.Status{Tag: debugger.TagRun, Path: path})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagContinue})
	require.Equal(t, debugger.FeedbackExit, fb.Tag)
	require.Equal(t, 0, fb.ExitCode)
}

func TestDispatchUnknownTag(t *testing.T) {
	f := debugger.NewFacade()
	fb := f.Dispatch(&debugger.Status{Tag: debugger.Tag("Bogus")})
	require.Equal(t, debugger.FeedbackError, fb.Tag)
}

func TestDispatchBreakpointLifecycle(t *testing.T) {
	path := requireBinary(t, "cat")
	entry := entryPoint(t, path)
	f := debugger.NewFacade()

	fb := f.Dispatch(&debugger.Status{Tag: debugger.TagRun, Path: path, Args: []string{"/dev/null"}})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagSetBreakpoint, Address: entry})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagContinue})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagRegsGet})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagDeleteBreakpoint, Address: entry})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagQuit})
	require.Equal(t, debugger.FeedbackExit, fb.Tag)
}

func TestDispatchSigtrapGuardContinuesPastBreakpoint(t *testing.T) {
	path := requireBinary(t, "cat")
	entry := entryPoint(t, path)
	f := debugger.NewFacade()
	f.Plugins().Register(debugger.SigtrapGuard{})

	fb := f.Dispatch(&debugger.Status{Tag: debugger.TagRun, Path: path, Args: []string{"/dev/null"}})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagSetBreakpoint, Address: entry})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	// With the guard enabled, hitting the entry breakpoint is immediately
	// followed by an internal Continue, so Dispatch only returns once the
	// child actually runs to completion rather than stopping at entry.
	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagContinue})
	require.Equal(t, debugger.FeedbackExit, fb.Tag)
	require.Equal(t, 0, fb.ExitCode)
}

func TestDispatchPluginListAndSetEnabled(t *testing.T) {
	f := debugger.NewFacade()
	f.Plugins().Register(debugger.SigtrapGuard{})

	fb := f.Dispatch(&debugger.Status{Tag: debugger.TagPluginList})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagPluginSetEnabled, PluginID: "sigtrap-guard", Enabled: false})
	require.Equal(t, debugger.FeedbackOk, fb.Tag)

	fb = f.Dispatch(&debugger.Status{Tag: debugger.TagPluginSetEnabled, PluginID: "no-such-plugin", Enabled: true})
	require.Equal(t, debugger.FeedbackError, fb.Tag)
}
