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

// Package config provides YAML configuration loading and validation for the
// coreminer front-ends: which plugins to enable at start-up, the plugin
// feedback loop's depth bound, and the logger's level.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration a front-end (cm or cmserve) loads
// before constructing a debugger.Facade.
type Config struct {
	// LogLevel names a minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted. Load only defaults and
	// validates it; neither cm nor cmserve applies it to the logger.
	LogLevel string `yaml:"log_level"`

	// HookDepth names a bound for the plugin feedback loop. Defaults to 64
	// when zero. Load only defaults and validates it; neither cm nor
	// cmserve passes it to the façade, whose bound is fixed at 64.
	HookDepth int `yaml:"hook_depth"`

	// Plugins lists the plugins to register at start-up, in the order
	// they should be dispatched.
	Plugins []PluginConfig `yaml:"plugins"`
}

// PluginConfig names one plugin to register and whether it starts enabled.
type PluginConfig struct {
	// ID must match the registering Hook's own ID(). Required.
	ID string `yaml:"id"`

	// Enabled controls the plugin's initial enabled flag. Defaults to
	// true when omitted.
	Enabled *bool `yaml:"enabled,omitempty"`
}

// EnabledOrDefault reports p's effective enabled flag, defaulting to true
// when Enabled was left unset in the YAML source.
func (p PluginConfig) EnabledOrDefault() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

const defaultHookDepth = 64

// Load reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.HookDepth == 0 {
		cfg.HookDepth = defaultHookDepth
	}
}

func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.HookDepth < 1 {
		errs = append(errs, fmt.Errorf("hook_depth %d must be at least 1", cfg.HookDepth))
	}

	seen := map[string]bool{}
	for i, p := range cfg.Plugins {
		prefix := fmt.Sprintf("plugins[%d]", i)
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", prefix))
			continue
		}
		if seen[p.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate plugin id %q", prefix, p.ID))
		}
		seen[p.ID] = true
	}

	return errors.Join(errs...)
}
