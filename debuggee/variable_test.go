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

package debuggee_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/cmerr"
	"github.com/TalpaLabs/coreminer/debuggee"
)

// System binaries under test are stripped, so ReadVariable/WriteVariable
// can only be exercised against their NoDebugInfo path here; a DWARF-backed
// interpretation round trip needs a debuggee built with -gcflags=all=-N -l
// equivalent (a C binary built with -g), which is outside what this suite
// can assume is present on the host.

func TestReadVariableWithoutDebugInfo(t *testing.T) {
	path := requireBinary(t, "true")

	sess := debuggee.New()
	require.NoError(t, sess.Run(path, nil))

	_, err := sess.ReadVariable("anything")
	require.Error(t, err)
	require.Equal(t, cmerr.NoDebugInfo, cmerr.KindOf(err))

	require.NoError(t, sess.Quit())
}

func TestWriteVariableWithoutDebugInfo(t *testing.T) {
	path := requireBinary(t, "true")

	sess := debuggee.New()
	require.NoError(t, sess.Run(path, nil))

	err := sess.WriteVariable("anything", []byte{1, 2, 3, 4})
	require.Error(t, err)
	require.Equal(t, cmerr.NoDebugInfo, cmerr.KindOf(err))

	require.NoError(t, sess.Quit())
}
