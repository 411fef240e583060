// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

// Package wsyncconfig loads the daemon/client configuration file: a flat
// KEY=VALUE document whose path is taken from WSYNC_CONFIG_PATH (defaulting
// to $HOME/.wsync/wsync.config).
package wsyncconfig

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Key identifies one of the recognized configuration entries.
type Key string

const (
	WorkspaceConfigFilePath Key = "WorkspaceConfigFilePath"
	DaemonCommandSocketPath Key = "DaemonCommandSocketPath"
	MonitorExecutablePath   Key = "MonitorExecutablePath"
	LogDirectory            Key = "LogDirectory"
)

var recognizedKeys = map[Key]bool{
	WorkspaceConfigFilePath: true,
	DaemonCommandSocketPath: true,
	MonitorExecutablePath:   true,
	LogDirectory:            true,
}

// Config is the parsed KEY=VALUE configuration document.
type Config struct {
	values map[Key]string
}

// Get returns the raw string value for key, and whether it was set.
func (c *Config) Get(key Key) (string, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Path returns the value for key interpreted as a filesystem path.
func (c *Config) Path(key Key) (string, bool) {
	return c.Get(key)
}

// DefaultPath returns $WSYNC_CONFIG_PATH, or $HOME/.wsync/wsync.config when unset.
func DefaultPath() string {
	if p := os.Getenv("WSYNC_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(os.Getenv("HOME"), ".wsync", "wsync.config")
}

// Load reads and parses the config file at path. Blank lines are skipped;
// every other line must be "KEY=VALUE" with a recognized, non-empty key and
// a non-empty value, and anything else is a hard error.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config file %q is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg := &Config{values: make(map[Key]string)}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		k, v, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("config line %d: %q does not conform to KEY=VALUE", lineNo, line)
		}
		if k == "" {
			return nil, fmt.Errorf("config line %d: empty key", lineNo)
		}
		if v == "" {
			return nil, fmt.Errorf("config line %d: empty value for key %q", lineNo, k)
		}

		key := Key(k)
		if !recognizedKeys[key] {
			return nil, fmt.Errorf("config line %d: unrecognized key %q", lineNo, k)
		}

		cfg.values[key] = v
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return cfg, nil
}

// LoadDefault loads the config file at DefaultPath().
func LoadDefault() (*Config, error) {
	return Load(DefaultPath())
}
