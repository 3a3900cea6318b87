package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWriteFile(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// buildTree lays out:
//
//	root/top.txt
//	root/sub/nested.txt
//	root/sub/deeper/leaf.txt
func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "top.txt"), "top")
	mustWriteFile(t, filepath.Join(root, "sub", "nested.txt"), "nested")
	mustWriteFile(t, filepath.Join(root, "sub", "deeper", "leaf.txt"), "leaf")
	return root
}

func TestWalk_Unbounded(t *testing.T) {
	root := buildTree(t)

	s, err := Walk(root, nil, true, true)
	require.NoError(t, err)

	assert.ElementsMatch(t, []DirectoryDescriptor{
		{RelPath: "sub", Kind: Directory},
		{RelPath: filepath.Join("sub", "deeper"), Kind: Directory},
	}, s.Directories)
	assert.ElementsMatch(t, []FileDescriptor{
		{RelPath: "top.txt", Size: int64(len("top")), Kind: File},
		{RelPath: filepath.Join("sub", "nested.txt"), Size: int64(len("nested")), Kind: File},
		{RelPath: filepath.Join("sub", "deeper", "leaf.txt"), Size: int64(len("leaf")), Kind: File},
	}, s.Files)
	assert.False(t, s.DepthBoundReached)
}

// Depth 0 means "only root's direct children": root/top.txt is discovered,
// root/sub is not explored (so its contents never appear), matching the
// concrete scenario in which a depth-0 copy creates zero subdirectories.
func TestWalk_DepthZero(t *testing.T) {
	root := buildTree(t)
	zero := 0

	s, err := Walk(root, &zero, true, true)
	require.NoError(t, err)

	assert.Empty(t, s.Directories)
	assert.Equal(t, []FileDescriptor{{RelPath: "top.txt", Size: int64(len("top")), Kind: File}}, s.Files)
	assert.True(t, s.DepthBoundReached)
}

// Depth 1 permits root's direct subdirectories to be explored (so "sub" is
// created and its immediate file discovered), but not "sub/deeper".
func TestWalk_DepthOne(t *testing.T) {
	root := buildTree(t)
	one := 1

	s, err := Walk(root, &one, true, true)
	require.NoError(t, err)

	assert.Equal(t, []DirectoryDescriptor{{RelPath: "sub", Kind: Directory}}, s.Directories)
	assert.ElementsMatch(t, []FileDescriptor{
		{RelPath: "top.txt", Size: int64(len("top")), Kind: File},
		{RelPath: filepath.Join("sub", "nested.txt"), Size: int64(len("nested")), Kind: File},
	}, s.Files)
	assert.True(t, s.DepthBoundReached)
}

func TestWalk_EmptyDirectoryIsValid(t *testing.T) {
	root := t.TempDir()

	s, err := Walk(root, nil, true, true)
	require.NoError(t, err)
	assert.Empty(t, s.Directories)
	assert.Empty(t, s.Files)
	assert.False(t, s.DepthBoundReached)
}

func TestWalk_SymlinkToFileIsRecordedAsFile(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "real.txt"), "hello")
	require.NoError(t, os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")))

	s, err := Walk(root, nil, true, true)
	require.NoError(t, err)

	assert.Contains(t, s.Files, FileDescriptor{RelPath: "link.txt", Size: int64(len("hello")), Kind: SymlinkToFile})
}

// A symlink-to-directory at the scan root itself, when not followed, is
// recorded as a single leaf entry — not discarded into an empty scan — so
// a caller that walks a symlinked source root still sees it represented.
func TestWalk_SymlinkToDirectoryRootNotFollowedIsRecordedAsLeaf(t *testing.T) {
	target := t.TempDir()
	mustWriteFile(t, filepath.Join(target, "inside.txt"), "inside")
	root := filepath.Join(t.TempDir(), "link-root")
	require.NoError(t, os.Symlink(target, root))

	s, err := Walk(root, nil, false, true)
	require.NoError(t, err)

	assert.Equal(t, []DirectoryDescriptor{{RelPath: ".", Kind: SymlinkToDirectory}}, s.Directories)
	assert.Empty(t, s.Files)
}

// An interior symlink pointing at a directory outside the source tree is
// still followed and its contents scanned, since the walker never special-
// cases where a symlink's target physically lives.
func TestWalk_SymlinkToDirectoryOutsideTree_Followed(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mustWriteFile(t, filepath.Join(outside, "external.txt"), "ext")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link-dir")))

	s, err := Walk(root, nil, true, true)
	require.NoError(t, err)

	assert.Contains(t, s.Directories, DirectoryDescriptor{RelPath: "link-dir", Kind: SymlinkToDirectory})
	assert.Contains(t, s.Files, FileDescriptor{RelPath: filepath.Join("link-dir", "external.txt"), Size: int64(len("ext")), Kind: File})
}

// The public DirectoryScan contract (recurseIntoDirSymlinks=false) preserves
// a symlinked directory as a single leaf entry instead of descending into it.
func TestWalk_SymlinkToDirectory_NotRecursedWhenDisabled(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	mustWriteFile(t, filepath.Join(outside, "external.txt"), "ext")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "link-dir")))

	s, err := Walk(root, nil, true, false)
	require.NoError(t, err)

	assert.Contains(t, s.Directories, DirectoryDescriptor{RelPath: "link-dir", Kind: SymlinkToDirectory})
	assert.Empty(t, s.Files)
}

func TestWalk_TotalSizeInBytes(t *testing.T) {
	root := buildTree(t)

	s, err := Walk(root, nil, true, true)
	require.NoError(t, err)
	assert.Equal(t, int64(len("top")+len("nested")+len("leaf")), s.TotalSizeInBytes())
}

func TestWalk_SourceNotFound(t *testing.T) {
	_, err := Walk(filepath.Join(t.TempDir(), "nope"), nil, true, true)
	assert.Error(t, err)
}
