package hashing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMD5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive.zip")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	sum, err := MD5File(path)
	require.NoError(t, err)
	assert.Equal(t, "5eb63bbbe01eeed093cb22bb8f5acdc3", sum)
}

func TestMD5FileMissing(t *testing.T) {
	_, err := MD5File(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
}
