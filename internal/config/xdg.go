// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
)

// configBase returns $XDG_CONFIG_HOME/stepflow, falling back to
// ~/.config/stepflow on every platform.
func configBase() string {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// dataBase returns $XDG_DATA_HOME/stepflow, falling back to
// ~/.local/share/stepflow.
func dataBase() string {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, fallback string) string {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
		base = filepath.Join(home, fallback)
	}
	return filepath.Join(base, "stepflow")
}

// ConfigDir returns the stepflow config directory, creating it if needed.
func ConfigDir() (string, error) {
	dir := configBase()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DataDir returns the stepflow data directory, creating it if needed.
func DataDir() (string, error) {
	dir := dataBase()
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(configBase(), "config.yaml")
}
