package fsmore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// S1: an unbounded AllowEmpty copy of a two-file, one-subdirectory tree.
func TestCopyDirectory_S1(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")
	mustWriteFile(t, filepath.Join(src, "sub", "b.txt"), "bye")
	require.NoError(t, os.Mkdir(dst, 0o755))

	finished, err := CopyDirectory(src, dst, DirectoryCopyOptions{
		TargetDirectoryRule: TargetDirectoryRule{Kind: AllowEmpty},
	})
	require.NoError(t, err)
	assert.Equal(t, DirectoryCopyFinished{
		TotalBytesCopied:      8,
		NumFilesCopied:        2,
		NumDirectoriesCreated: 1,
	}, finished)
}

// S2: same source, depth 0 — only a.txt is copied; dst/sub never appears.
func TestCopyDirectory_S2(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")
	mustWriteFile(t, filepath.Join(src, "sub", "b.txt"), "bye")
	zero := 0

	finished, err := CopyDirectory(src, dst, DirectoryCopyOptions{
		MaximumCopyDepth: &zero,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, finished.NumFilesCopied)
	assert.Equal(t, 0, finished.NumDirectoriesCreated)
	assert.Equal(t, uint64(5), finished.TotalBytesCopied)

	_, err = os.Stat(filepath.Join(dst, "sub"))
	assert.True(t, os.IsNotExist(err))
}

// S3: a file collision under AllowNonEmpty{files:false} is rejected, with
// zero progress callbacks and the colliding file left untouched.
func TestCopyDirectory_S3(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "foo"), 0o755))
	mustWriteFile(t, filepath.Join(src, "d.bin"), "new-contents")
	mustWriteFile(t, filepath.Join(dst, "d.bin"), "original")

	var updates []DirectoryCopyProgress
	_, err := CopyDirectoryWithProgress(src, dst, DirectoryCopyOptions{
		TargetDirectoryRule: TargetDirectoryRule{
			Kind:                            AllowNonEmpty,
			OverwriteExistingFiles:          false,
			OverwriteExistingSubdirectories: true,
		},
	}, func(p DirectoryCopyProgress) { updates = append(updates, p) })

	require.Error(t, err)
	var de *DirectoryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, TargetItemAlreadyExists, de.Kind)
	assert.Equal(t, filepath.Join(dst, "d.bin"), de.Path)
	assert.Empty(t, updates)

	got, err := os.ReadFile(filepath.Join(dst, "d.bin"))
	require.NoError(t, err)
	assert.Equal(t, "original", string(got))
}

// S4: a directory collision under AllowNonEmpty{subdirs:false} is rejected.
func TestCopyDirectory_S4(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "foo"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dst, "foo"), 0o755))

	_, err := CopyDirectory(src, dst, DirectoryCopyOptions{
		TargetDirectoryRule: TargetDirectoryRule{
			Kind:                            AllowNonEmpty,
			OverwriteExistingFiles:          true,
			OverwriteExistingSubdirectories: false,
		},
	})

	require.Error(t, err)
	var de *DirectoryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, TargetItemAlreadyExists, de.Kind)
	assert.Equal(t, filepath.Join(dst, "foo"), de.Path)
}

// S5: same-file detection for differently-cased paths depends on the
// underlying filesystem's case sensitivity.
func TestCopyFile_S5_CaseVariants(t *testing.T) {
	root := t.TempDir()
	original := filepath.Join(root, "A.TXT")
	mustWriteFile(t, original, "hi")
	lowerCased := filepath.Join(root, "a.txt")

	n, err := CopyFile(original, lowerCased, FileCopyOptions{})

	if runtime.GOOS == "windows" {
		require.Error(t, err)
		var fe *FileError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, SourceAndTargetAreTheSameFile, fe.Kind)
	} else {
		require.NoError(t, err)
		assert.Equal(t, uint64(2), n)
	}
}

// S6: a depth-1 copy that crosses a symlink-to-directory materializes the
// symlink's immediate children but not its grandchildren.
func TestCopyDirectory_S6(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(src, "sub", "b.txt"), "b-content")
	mustWriteFile(t, filepath.Join(src, "sub", "bar", "c.txt"), "c-content")
	require.NoError(t, os.Symlink(filepath.Join(src, "sub"), filepath.Join(src, "link")))

	one := 1
	_, err := CopyDirectory(src, dst, DirectoryCopyOptions{MaximumCopyDepth: &one})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dst, "link", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b-content", string(got))

	_, err = os.Stat(filepath.Join(dst, "link", "bar", "c.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestMoveDirectory_SameFilesystemRename(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")
	mustWriteFile(t, filepath.Join(src, "sub", "b.txt"), "bye")

	finished, err := MoveDirectory(src, dst, DirectoryMoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, finished.NumFilesCopied)
	assert.Equal(t, 1, finished.NumDirectoriesCreated)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err), "source must be gone after a successful move")
	got, err := os.ReadFile(filepath.Join(dst, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestMoveDirectory_RejectsMoveIntoOwnSubdirectory(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")
	dst := filepath.Join(src, "nested")

	_, err := MoveDirectory(src, dst, DirectoryMoveOptions{
		TargetDirectoryRule: TargetDirectoryRule{Kind: AllowNonEmpty, OverwriteExistingFiles: true, OverwriteExistingSubdirectories: true},
	})
	require.Error(t, err)
	var de *DirectoryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, InvalidTargetDirectoryPath, de.Kind)
}

func TestMoveFile_SameFileRejected(t *testing.T) {
	root := t.TempDir()
	f := filepath.Join(root, "a.txt")
	mustWriteFile(t, f, "x")
	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(f, link))

	_, err := MoveFile(f, link, FileMoveOptions{})
	require.Error(t, err)
	var fe *FileError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, SourceAndTargetAreTheSameFile, fe.Kind)
}

func TestMoveFile_RenameFastPath(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "a.txt")
	dst := filepath.Join(root, "b.txt")
	mustWriteFile(t, src, "hello")

	n, err := MoveFile(src, dst, FileMoveOptions{})
	require.NoError(t, err)
	assert.Equal(t, uint64(5), n)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

// The final progress emission must report completion: the last operation
// index one below the total, and bytes finished equal to bytes total.
func TestCopyDirectoryWithProgress_FinalUpdateReportsCompletion(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	dst := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(src, "a.txt"), "hello")
	mustWriteFile(t, filepath.Join(src, "sub", "b.txt"), "world")

	var updates []DirectoryCopyProgress
	finished, err := CopyDirectoryWithProgress(src, dst, DirectoryCopyOptions{}, func(p DirectoryCopyProgress) {
		updates = append(updates, p)
	})
	require.NoError(t, err)
	require.NotEmpty(t, updates)

	last := updates[len(updates)-1]
	assert.Equal(t, last.TotalOperations-1, last.CurrentOperationIndex)
	assert.Equal(t, finished.TotalBytesCopied, last.BytesFinished)
	assert.Equal(t, last.BytesFinished, last.BytesTotal)

	indices := make([]int, len(updates))
	for i, u := range updates {
		indices[i] = u.CurrentOperationIndex
	}
	if diff := cmp.Diff(true, isNonDecreasing(indices)); diff != "" {
		t.Fatalf("operation index sequence was not non-decreasing (-want +got):\n%s", diff)
	}
}

func isNonDecreasing(xs []int) bool {
	for i := 1; i < len(xs); i++ {
		if xs[i] < xs[i-1] {
			return false
		}
	}
	return true
}

func TestScan_DepthBoundReachedFlag(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "top.txt"), "t")
	mustWriteFile(t, filepath.Join(root, "sub", "nested.txt"), "n")
	zero := 0

	s, err := Scan(root, &zero, true)
	require.NoError(t, err)
	assert.True(t, s.DepthBoundReached)
	assert.Equal(t, []FileDescriptor{{RelPath: "top.txt", Size: 1}}, s.Files)
	assert.Equal(t, uint64(1), s.TotalSizeInBytes())
}
