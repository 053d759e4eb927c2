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

package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TalpaLabs/coreminer/config"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "coreminer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeTemp(t, `
plugins:
  - id: sigtrap-guard
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, 64, cfg.HookDepth)
	require.Len(t, cfg.Plugins, 1)
	require.Equal(t, "sigtrap-guard", cfg.Plugins[0].ID)
	require.True(t, cfg.Plugins[0].EnabledOrDefault())
}

func TestLoadExplicitValues(t *testing.T) {
	path := writeTemp(t, `
log_level: debug
hook_depth: 8
plugins:
  - id: sigtrap-guard
    enabled: false
`)
	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 8, cfg.HookDepth)
	require.False(t, cfg.Plugins[0].EnabledOrDefault())
}

func TestLoadRejectsInvalidLogLevel(t *testing.T) {
	path := writeTemp(t, `log_level: verbose`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicatePluginID(t *testing.T) {
	path := writeTemp(t, `
plugins:
  - id: dup
  - id: dup
`)
	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/coreminer.yaml")
	require.Error(t, err)
}
