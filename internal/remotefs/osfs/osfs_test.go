package osfs

import (
	"errors"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhogenson/fsmore"
)

func TestOpen_MissingFileIsFileNotFound(t *testing.T) {
	_, err := FS{}.Open(filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)

	var fileErr *fsmore.FileError
	require.True(t, errors.As(err, &fileErr))
	assert.Equal(t, fsmore.FileNotFound, fileErr.Kind)

	// RemoveAll's recursive cleanup still relies on errors.Is detecting
	// a missing path through the wrapped taxonomy error.
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestCreate_ThenRemove(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "file.txt")

	f, err := FS{}.Create(name, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, FS{}.Remove(name))

	_, err = FS{}.Stat(name)
	require.Error(t, err)
	var fileErr *fsmore.FileError
	require.True(t, errors.As(err, &fileErr))
	assert.Equal(t, fsmore.FileNotFound, fileErr.Kind)
}
