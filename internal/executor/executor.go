// Package executor implements the Directory Copy/Move Executor (design
// §4.5): consuming a validated plan, creating directories, dispatching
// per-file work to the File Copy Engine, maintaining aggregate progress,
// and removing the source after a move's copy phase. The move's rename
// attempt is made by the caller, not here.
package executor

import (
	"os"

	"github.com/pkg/errors"

	"github.com/rhogenson/fsmore/internal/fileio"
	"github.com/rhogenson/fsmore/internal/planner"
)

// OperationKind tags the OperationDescriptor variant reported in progress.
type OperationKind int

const (
	CreatingDirectory OperationKind = iota
	CopyingFile
)

// Operation is the OperationDescriptor of design §3: a tagged variant
// naming the destination path currently being acted on, and (for file
// copies) that file's own progress.
type Operation struct {
	Kind         OperationKind
	Path         string
	FileProgress fileio.Progress
}

// Progress is the DirectoryCopyProgress of design §3.
type Progress struct {
	BytesTotal            uint64
	BytesFinished         uint64
	FilesCopied           int
	DirectoriesCreated    int
	CurrentOperation      Operation
	CurrentOperationIndex int
	TotalOperations       int
}

// Sink receives Progress updates.
type Sink func(Progress)

// NoopSink discards every update.
func NoopSink(Progress) {}

// Finished is the DirectoryCopyFinished result of design §6.
type Finished struct {
	TotalBytesCopied      uint64
	NumFilesCopied        int
	NumDirectoriesCreated int
}

// FilePolicy derives the per-file overwrite policy from the directory
// rule: overwrite iff the rule authorizes it, never skip (skip_existing
// has no directory-level equivalent; a pre-flight rejection already
// guards collisions the rule disallows).
type FilePolicy struct {
	OverwriteExistingFiles bool
}

// Execute walks plan in order, creating directories and copying files,
// invoking sink with monotonically increasing aggregate progress. No
// emission occurs before Execute is called (the Planner has already
// validated the plan with zero mutation).
func Execute(plan *planner.Plan, policy FilePolicy, sink Sink) (Finished, error) {
	if sink == nil {
		sink = NoopSink
	}

	agg := Progress{
		BytesTotal:      plan.BytesTotal,
		TotalOperations: plan.TotalOperations,
	}

	// The target root itself is not a planned operation, but a rule that
	// accepts a missing target expects it to be created.
	if err := os.MkdirAll(plan.TargetRoot, 0o755); err != nil {
		return toFinished(agg), &DirError{Kind: planner.ErrUnableToAccess, Path: plan.TargetRoot, cause: errors.Wrapf(err, "create target directory %q", plan.TargetRoot)}
	}

	for _, op := range plan.Ops {
		switch op.Kind {
		case planner.CreateDirectory:
			if err := os.MkdirAll(op.TargetAbs, 0o755); err != nil {
				return toFinished(agg), &DirError{Kind: planner.ErrUnableToAccess, Path: op.TargetAbs, cause: errors.Wrapf(err, "create directory %q", op.TargetAbs)}
			}
			agg.DirectoriesCreated++
			agg.CurrentOperationIndex = agg.DirectoriesCreated + agg.FilesCopied - 1
			agg.CurrentOperation = Operation{Kind: CreatingDirectory, Path: op.TargetAbs}
			sink(agg)

		case planner.CopyFile:
			baseFinished := agg.BytesFinished
			_, err := fileio.Copy(op.SourceAbs, op.TargetAbs, fileio.Options{
				OverwriteExisting: policy.OverwriteExistingFiles,
			}, func(p fileio.Progress) {
				agg.BytesFinished = baseFinished + p.BytesFinished
				agg.CurrentOperation = Operation{Kind: CopyingFile, Path: op.TargetAbs, FileProgress: p}
				agg.CurrentOperationIndex = agg.DirectoriesCreated + agg.FilesCopied
				sink(agg)
			})
			if err != nil {
				return toFinished(agg), &DirError{Kind: planner.ErrFileCopy, Path: op.TargetAbs, cause: err}
			}
			agg.BytesFinished = baseFinished + uint64(op.SizeBytes)
			agg.FilesCopied++
			agg.CurrentOperationIndex = agg.DirectoriesCreated + agg.FilesCopied - 1
			sink(agg)
		}
	}

	return toFinished(agg), nil
}

func toFinished(agg Progress) Finished {
	return Finished{
		TotalBytesCopied:      agg.BytesFinished,
		NumFilesCopied:        agg.FilesCopied,
		NumDirectoriesCreated: agg.DirectoriesCreated,
	}
}

// DirError adapts a planner.ErrorKind-tagged failure encountered during
// execution (as opposed to planning) into the same Error shape so callers
// only need one type switch.
type DirError struct {
	Kind  planner.ErrorKind
	Path  string
	cause error
}

func (e *DirError) Error() string {
	if e.cause != nil {
		return e.cause.Error()
	}
	return "directory operation failed: " + e.Path
}

func (e *DirError) Unwrap() error { return e.cause }

// Delete removes every planned file (in reverse plan order) and then every
// planned directory (also in reverse order, so children are removed
// before parents), used by the move fallback after a successful copy.
func Delete(plan *planner.Plan) error {
	// plan.Ops holds every CreateDirectory op before any CopyFile op
	// (design §4.4 step 3), so walking plan.Ops backwards naturally
	// visits every file (in reverse plan order) before any directory.
	for i := len(plan.Ops) - 1; i >= 0; i-- {
		op := plan.Ops[i]
		if op.Kind != planner.CopyFile {
			continue
		}
		if err := os.Remove(op.SourceAbs); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove source file %q", op.SourceAbs)
		}
	}
	for i := len(plan.Ops) - 1; i >= 0; i-- {
		op := plan.Ops[i]
		if op.Kind != planner.CreateDirectory {
			continue
		}
		if err := os.Remove(op.SourceAbs); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove emptied source directory %q", op.SourceAbs)
		}
	}
	return nil
}
