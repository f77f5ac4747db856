package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProjectRoot(t *testing.T) {
	root, err := GetProjectRoot()
	require.NoError(t, err)
	assert.True(t, FileExists(filepath.Join(root, "go.mod")))

	validated, err := GetProjectRootValidated()
	require.NoError(t, err)
	assert.Equal(t, root, validated)
}

func TestValidateProjectRoot(t *testing.T) {
	assert.Error(t, ValidateProjectRoot(t.TempDir()))
}

func TestEnsureDir(t *testing.T) {
	testDir := filepath.Join(t.TempDir(), "test", "nested", "dir")

	require.NoError(t, EnsureDir(testDir))
	assert.True(t, DirExists(testDir))
	assert.False(t, DirExists(filepath.Join(testDir, "missing")))
}

func TestFileExists(t *testing.T) {
	assert.False(t, FileExists("/non/existent/file"))
}
