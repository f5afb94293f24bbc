package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.moji/history.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".moji", "history.db"), got)

	got, err = ExpandHome("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", got)

	_, err = ExpandHome("~other/x")
	assert.Error(t, err)
}

func TestValidateFile(t *testing.T) {
	dir := t.TempDir()
	v := &PathValidator{AllowedBaseDirs: []string{dir}, MaxPathLength: 4096}

	got, err := v.ValidateFile(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history.db"), got)

	_, err = v.ValidateFile(dir + "/../escape.db")
	assert.ErrorContains(t, err, "traversal")

	_, err = v.ValidateFile("/etc/passwd")
	assert.ErrorContains(t, err, "not within allowed")

	_, err = v.ValidateFile(dir)
	assert.ErrorContains(t, err, "is a directory")

	sub := filepath.Join(dir, "db")
	require.NoError(t, os.Mkdir(sub, 0o755))
	_, err = v.ValidateFile(sub)
	assert.ErrorContains(t, err, "is a directory")

	_, err = v.ValidateFile("")
	assert.Error(t, err)

	_, err = v.ValidateFile(filepath.Join(dir, "a\x01b"))
	assert.ErrorContains(t, err, "control")
}

func TestEnsureParentCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	v := NewPermissivePathValidator()

	target := filepath.Join(dir, "nested", "moji.log")
	got, err := v.EnsureParent(target)
	require.NoError(t, err)
	assert.Equal(t, target, got)

	info, err := os.Stat(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
