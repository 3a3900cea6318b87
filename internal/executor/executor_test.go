package executor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rhogenson/fsmore/internal/planner"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestExecute_CreatesDirectoriesAndCopiesFiles(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	target := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(source, "top.txt"), "top")
	mustWriteFile(t, filepath.Join(source, "sub", "nested.txt"), "nested")

	plan, err := planner.Plan(source, target, planner.NewDisallowExisting(), nil)
	require.NoError(t, err)

	var updates []Progress
	finished, err := Execute(plan, FilePolicy{}, func(p Progress) { updates = append(updates, p) })
	require.NoError(t, err)

	assert.Equal(t, 2, finished.NumFilesCopied)
	assert.Equal(t, 1, finished.NumDirectoriesCreated)
	assert.Equal(t, uint64(len("top")+len("nested")), finished.TotalBytesCopied)

	got, err := os.ReadFile(filepath.Join(target, "sub", "nested.txt"))
	require.NoError(t, err)
	assert.Equal(t, "nested", string(got))

	require.NotEmpty(t, updates)
	last := updates[len(updates)-1]
	assert.Equal(t, last.TotalOperations-1, last.CurrentOperationIndex)
	assert.Equal(t, last.BytesTotal, last.BytesFinished)

	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].CurrentOperationIndex, updates[i-1].CurrentOperationIndex)
		assert.GreaterOrEqual(t, updates[i].BytesFinished, updates[i-1].BytesFinished)
	}
}

func TestExecute_EmptyPlanProducesNoUpdates(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	target := filepath.Join(root, "dst")
	require.NoError(t, os.Mkdir(source, 0o755))

	plan, err := planner.Plan(source, target, planner.NewDisallowExisting(), nil)
	require.NoError(t, err)

	var updates []Progress
	finished, err := Execute(plan, FilePolicy{}, func(p Progress) { updates = append(updates, p) })
	require.NoError(t, err)
	assert.Empty(t, updates)
	assert.Zero(t, finished.NumFilesCopied)
}

func TestDelete_RemovesFilesThenDirectories(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	target := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(source, "sub", "nested.txt"), "nested")

	plan, err := planner.Plan(source, target, planner.NewDisallowExisting(), nil)
	require.NoError(t, err)
	_, err = Execute(plan, FilePolicy{}, nil)
	require.NoError(t, err)

	require.NoError(t, Delete(plan))

	_, err = os.Stat(filepath.Join(source, "sub", "nested.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(source, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestExecute_OverwriteExistingFile(t *testing.T) {
	root := t.TempDir()
	source := filepath.Join(root, "src")
	target := filepath.Join(root, "dst")
	mustWriteFile(t, filepath.Join(source, "a.txt"), "new")
	mustWriteFile(t, filepath.Join(target, "a.txt"), "old-longer")

	plan, err := planner.Plan(source, target, planner.NewAllowNonEmpty(true, false), nil)
	require.NoError(t, err)

	_, err = Execute(plan, FilePolicy{OverwriteExistingFiles: true}, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}
