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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/cmerr"
)

// TestDispatchDepthOverflow exercises the recursion guard directly: a depth
// already past maxHookDepth must fail with HookLoopOverflow before touching
// the session at all, which is why this lives in-package rather than
// constructing maxHookDepth levels of real plugin recursion.
func TestDispatchDepthOverflow(t *testing.T) {
	f := NewFacade()
	fb := f.dispatch(&Status{Tag: TagPluginList}, maxHookDepth+1)

	require.Equal(t, FeedbackError, fb.Tag)
	require.Equal(t, cmerr.HookLoopOverflow.String(), fb.Error.Kind)
}
