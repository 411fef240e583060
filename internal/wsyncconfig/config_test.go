// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package wsyncconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wsync.config")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, "WorkspaceConfigFilePath=/etc/wsync/registry.json\nDaemonCommandSocketPath=/run/wsync.sock\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	v, ok := cfg.Get(WorkspaceConfigFilePath)
	assert.True(t, ok)
	assert.Equal(t, "/etc/wsync/registry.json", v)

	v, ok = cfg.Get(DaemonCommandSocketPath)
	assert.True(t, ok)
	assert.Equal(t, "/run/wsync.sock", v)

	_, ok = cfg.Get(MonitorExecutablePath)
	assert.False(t, ok)
}

func TestLoadSkipsBlankLines(t *testing.T) {
	path := writeConfig(t, "\nWorkspaceConfigFilePath=/a\n\nDaemonCommandSocketPath=/b\n\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.values, 2)
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	path := writeConfig(t, "SomeUnknownKey=value\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "unrecognized key")
}

func TestLoadRejectsEmptyKey(t *testing.T) {
	path := writeConfig(t, "=value\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "empty key")
}

func TestLoadRejectsEmptyValue(t *testing.T) {
	path := writeConfig(t, "WorkspaceConfigFilePath=\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "empty value")
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	path := writeConfig(t, "not-a-kv-line\n")

	_, err := Load(path)
	assert.ErrorContains(t, err, "KEY=VALUE")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.config"))
	assert.Error(t, err)
}

func TestDefaultPathUsesEnvVar(t *testing.T) {
	t.Setenv("WSYNC_CONFIG_PATH", "/custom/path.config")
	assert.Equal(t, "/custom/path.config", DefaultPath())
}

func TestDefaultPathFallsBackToHome(t *testing.T) {
	t.Setenv("WSYNC_CONFIG_PATH", "")
	t.Setenv("HOME", "/home/tester")
	assert.Equal(t, "/home/tester/.wsync/wsync.config", DefaultPath())
}
