// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)
	for in, want := range map[string]string{
		"":             "",
		"/tmp/x":       "/tmp/x",
		"~":            usr.HomeDir,
		"~/data/a.csv": filepath.Join(usr.HomeDir, "data/a.csv"),
	} {
		got, err := ReplaceTildeInDir(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "ReplaceTildeInDir(%q)", in)
	}
	_, err = ReplaceTildeInDir("~no_such_user_for_sure/x")
	assert.Error(t, err)
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a", "b", "weights.db")
	assert.False(t, MustFileExists(filePath))
	require.NoError(t, CreateParentDir(filePath))
	require.NoError(t, os.WriteFile(filePath, []byte("x"), 0o644))
	assert.True(t, MustFileExists(filePath))
}
