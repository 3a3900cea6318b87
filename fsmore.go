// Package fsmore is an enriched filesystem copy/move library. It layers
// explicit collision policies, depth-bounded directory traversal,
// streaming progress notifications, symbolic-link handling, and
// identity-aware same-path detection on top of the host platform's
// primitive copy/move operations.
//
// The core is single-threaded and synchronous: every operation runs on
// the calling goroutine, and progress callbacks are invoked inline
// between read/write syscalls. Callers that need a responsive UI while a
// large tree copies should run the call in its own goroutine and forward
// progress back over a channel, the way cmd/fscp does.
package fsmore

import (
	"os"

	"github.com/pkg/errors"

	"github.com/rhogenson/fsmore/internal/executor"
	"github.com/rhogenson/fsmore/internal/fileio"
	"github.com/rhogenson/fsmore/internal/pathid"
	"github.com/rhogenson/fsmore/internal/planner"
	"github.com/rhogenson/fsmore/internal/scan"
)

// FileCopyOptions configures CopyFile and CopyFileWithProgress.
type FileCopyOptions struct {
	// OverwriteExisting replaces an existing target file. Ignored if
	// SkipExisting is true.
	OverwriteExisting bool
	// SkipExisting, if the target exists, makes the call a no-op that
	// returns zero bytes copied. Takes precedence over
	// OverwriteExisting.
	SkipExisting bool
	// BufferSize is bytes read/written per chunk; zero means 64 KiB.
	BufferSize int
	// ProgressUpdateInterval is the minimum number of bytes between
	// progress emissions; zero means 64 KiB. Only meaningful for
	// CopyFileWithProgress.
	ProgressUpdateInterval uint64
}

// FileMoveOptions configures MoveFile and MoveFileWithProgress. Its
// fields have identical meaning to FileCopyOptions; they are kept as a
// distinct type so call sites read clearly and so the two operations can
// diverge independently later.
type FileMoveOptions FileCopyOptions

// FileProgress reports one file copy's progress. BytesTotal is fixed for
// the lifetime of the copy; BytesFinished is monotonically non-decreasing
// and ends exactly equal to BytesTotal on success.
type FileProgress struct {
	BytesFinished uint64
	BytesTotal    uint64
}

// FileProgressCallback receives FileProgress updates, invoked synchronously
// on the calling goroutine.
type FileProgressCallback func(FileProgress)

func toFileProgress(p fileio.Progress) FileProgress {
	return FileProgress{BytesFinished: p.BytesFinished, BytesTotal: p.BytesTotal}
}

// TargetDirectoryRuleKind tags the TargetDirectoryRule variant.
type TargetDirectoryRuleKind int

const (
	// DisallowExisting requires the target directory not to exist; it
	// will be created.
	DisallowExisting TargetDirectoryRuleKind = iota
	// AllowEmpty permits the target directory to exist only if empty.
	AllowEmpty
	// AllowNonEmpty permits the target directory to contain items;
	// each colliding file or subdirectory is permitted only if the
	// corresponding flag is set.
	AllowNonEmpty
)

// TargetDirectoryRule is the tagged variant of design §3 governing what a
// directory copy/move may find already present at its target.
type TargetDirectoryRule struct {
	Kind TargetDirectoryRuleKind
	// OverwriteExistingFiles and OverwriteExistingSubdirectories are
	// only meaningful when Kind == AllowNonEmpty.
	OverwriteExistingFiles          bool
	OverwriteExistingSubdirectories bool
}

func (r TargetDirectoryRule) toPlannerRule() planner.Rule {
	switch r.Kind {
	case AllowEmpty:
		return planner.NewAllowEmpty()
	case AllowNonEmpty:
		return planner.NewAllowNonEmpty(r.OverwriteExistingFiles, r.OverwriteExistingSubdirectories)
	default:
		return planner.NewDisallowExisting()
	}
}

// DirectoryCopyOptions configures CopyDirectory and
// CopyDirectoryWithProgress.
type DirectoryCopyOptions struct {
	TargetDirectoryRule TargetDirectoryRule
	// MaximumCopyDepth bounds traversal: nil means unbounded, a pointer
	// to 0 means copy only immediate children of the source root.
	MaximumCopyDepth *int
}

// DirectoryMoveOptions configures MoveDirectory and
// MoveDirectoryWithProgress.
type DirectoryMoveOptions DirectoryCopyOptions

// OperationKind tags the OperationDescriptor variant.
type OperationKind int

const (
	CreatingDirectory OperationKind = iota
	CopyingFile
)

// OperationDescriptor names the destination path currently being acted on
// during a directory copy/move, and (for file copies) that file's own
// progress.
type OperationDescriptor struct {
	Kind         OperationKind
	Path         string
	FileProgress FileProgress
}

// DirectoryCopyProgress is the aggregate progress of an in-flight
// directory copy/move. TotalOperations is fixed at planning time and
// equal to DirectoriesToCreate + FilesToCopy; CurrentOperationIndex
// starts at 0, increases by 0 or 1 between successive emissions, and on
// the final emission satisfies CurrentOperationIndex+1 == TotalOperations
// and BytesFinished == BytesTotal.
type DirectoryCopyProgress struct {
	BytesTotal            uint64
	BytesFinished         uint64
	FilesCopied           int
	DirectoriesCreated    int
	CurrentOperation      OperationDescriptor
	CurrentOperationIndex int
	TotalOperations       int
}

// DirectoryProgressCallback receives DirectoryCopyProgress updates,
// invoked synchronously on the calling goroutine. No emission occurs
// before pre-flight validation succeeds.
type DirectoryProgressCallback func(DirectoryCopyProgress)

func toDirectoryProgress(p executor.Progress) DirectoryCopyProgress {
	return DirectoryCopyProgress{
		BytesTotal:         p.BytesTotal,
		BytesFinished:      p.BytesFinished,
		FilesCopied:        p.FilesCopied,
		DirectoriesCreated: p.DirectoriesCreated,
		CurrentOperation: OperationDescriptor{
			Kind:         OperationKind(p.CurrentOperation.Kind),
			Path:         p.CurrentOperation.Path,
			FileProgress: toFileProgress(p.CurrentOperation.FileProgress),
		},
		CurrentOperationIndex: p.CurrentOperationIndex,
		TotalOperations:       p.TotalOperations,
	}
}

// DirectoryCopyFinished is the successful result of a directory copy or
// move.
type DirectoryCopyFinished struct {
	TotalBytesCopied      uint64
	NumFilesCopied        int
	NumDirectoriesCreated int
}

func toDirectoryCopyFinished(f executor.Finished) DirectoryCopyFinished {
	return DirectoryCopyFinished{
		TotalBytesCopied:      f.TotalBytesCopied,
		NumFilesCopied:        f.NumFilesCopied,
		NumDirectoriesCreated: f.NumDirectoriesCreated,
	}
}

// FileErrorKind tags the closed set of file-operation failure reasons of
// design §7.
type FileErrorKind int

const (
	FileNotFound FileErrorKind = iota
	FileAlreadyExists
	SourceAndTargetAreTheSameFile
	NotAFile
	UnableToAccessSource
	UnableToAccessTarget
	OtherFileIoError
)

// FileError is returned by CopyFile, MoveFile, and their progress
// variants.
type FileError struct {
	Kind  FileErrorKind
	Path  string
	cause error
}

func (e *FileError) Error() string {
	switch e.Kind {
	case FileNotFound:
		return "not found: " + e.Path
	case FileAlreadyExists:
		return "already exists: " + e.Path
	case SourceAndTargetAreTheSameFile:
		return "source and target are the same file: " + e.Path
	case NotAFile:
		return "not a regular file: " + e.Path
	default:
		return e.cause.Error()
	}
}

func (e *FileError) Unwrap() error { return e.cause }

// NewFileError constructs a FileError for callers outside this package —
// internal/remotefs (for its local and SFTP filesystem implementations)
// and internal/remotecopy, so far —
// that need to surface a file-operation failure through fsmore's own
// taxonomy instead of a bare wrapped error.
func NewFileError(kind FileErrorKind, path string, cause error) *FileError {
	return &FileError{Kind: kind, Path: path, cause: cause}
}

func toFileError(err error) *FileError {
	if err == nil {
		return nil
	}
	fe, ok := err.(*fileio.Error)
	if !ok {
		return &FileError{Kind: OtherFileIoError, cause: err}
	}
	kind := map[fileio.Kind]FileErrorKind{
		fileio.KindNotFound:      FileNotFound,
		fileio.KindAlreadyExists: FileAlreadyExists,
		fileio.KindSameFile:      SourceAndTargetAreTheSameFile,
		fileio.KindNotAFile:      NotAFile,
		fileio.KindSourceAccess:  UnableToAccessSource,
		fileio.KindTargetAccess:  UnableToAccessTarget,
		fileio.KindOther:         OtherFileIoError,
	}[fe.Kind]
	return &FileError{Kind: kind, Path: fe.Path, cause: fe}
}

// DirectoryErrorKind tags the closed set of directory-operation failure
// reasons of design §7.
type DirectoryErrorKind int

const (
	SourceDirectoryNotFound DirectoryErrorKind = iota
	InvalidTargetDirectoryPath
	TargetItemAlreadyExists
	FileCopyError
	UnableToAccess
	OtherDirectoryIoError
)

// DirectoryError is returned by CopyDirectory, MoveDirectory, and their
// progress variants.
type DirectoryError struct {
	Kind  DirectoryErrorKind
	Path  string
	cause error
}

func (e *DirectoryError) Error() string {
	switch e.Kind {
	case SourceDirectoryNotFound:
		return "source directory not found: " + e.Path
	case InvalidTargetDirectoryPath:
		return "invalid target directory path: " + e.Path
	case TargetItemAlreadyExists:
		return "target item already exists: " + e.Path
	default:
		if e.cause != nil {
			return e.cause.Error()
		}
		return "directory operation failed: " + e.Path
	}
}

func (e *DirectoryError) Unwrap() error { return e.cause }

func toDirectoryErrorKind(k planner.ErrorKind) DirectoryErrorKind {
	switch k {
	case planner.ErrSourceNotFound:
		return SourceDirectoryNotFound
	case planner.ErrInvalidTargetPath:
		return InvalidTargetDirectoryPath
	case planner.ErrTargetItemAlreadyExists:
		return TargetItemAlreadyExists
	case planner.ErrFileCopy:
		return FileCopyError
	case planner.ErrUnableToAccess:
		return UnableToAccess
	default:
		return OtherDirectoryIoError
	}
}

func toDirectoryError(err error) *DirectoryError {
	if err == nil {
		return nil
	}
	switch e := err.(type) {
	case *planner.Error:
		return &DirectoryError{Kind: toDirectoryErrorKind(e.Kind), Path: e.Path, cause: e}
	case *executor.DirError:
		return &DirectoryError{Kind: toDirectoryErrorKind(e.Kind), Path: e.Path, cause: e}
	default:
		return &DirectoryError{Kind: OtherDirectoryIoError, cause: err}
	}
}

// CopyFile copies source to target according to opts, returning the
// number of bytes copied.
func CopyFile(source, target string, opts FileCopyOptions) (uint64, error) {
	return CopyFileWithProgress(source, target, opts, nil)
}

// CopyFileWithProgress is CopyFile plus a progress callback invoked
// synchronously as bytes are transferred.
func CopyFileWithProgress(source, target string, opts FileCopyOptions, callback FileProgressCallback) (uint64, error) {
	var sink fileio.Sink
	if callback != nil {
		sink = func(p fileio.Progress) { callback(toFileProgress(p)) }
	}
	n, err := fileio.Copy(source, target, fileio.Options{
		OverwriteExisting:      opts.OverwriteExisting,
		SkipExisting:           opts.SkipExisting,
		BufferSize:             opts.BufferSize,
		ProgressUpdateInterval: opts.ProgressUpdateInterval,
	}, sink)
	if err != nil {
		return n, toFileError(err)
	}
	return n, nil
}

// MoveFile moves source to target according to opts, returning the
// number of bytes moved. A same-filesystem rename is attempted first;
// failing that, it falls back to copy-then-delete.
func MoveFile(source, target string, opts FileMoveOptions) (uint64, error) {
	return MoveFileWithProgress(source, target, opts, nil)
}

// MoveFileWithProgress is MoveFile plus a progress callback.
func MoveFileWithProgress(source, target string, opts FileMoveOptions, callback FileProgressCallback) (uint64, error) {
	same, err := pathid.Same(source, target)
	if err != nil {
		return 0, &FileError{Kind: UnableToAccessTarget, Path: target, cause: err}
	}
	if same {
		return 0, &FileError{Kind: SourceAndTargetAreTheSameFile, Path: target}
	}

	targetExists := exists(target)
	if targetExists {
		if opts.SkipExisting {
			return 0, nil
		}
		if !opts.OverwriteExisting {
			return 0, &FileError{Kind: FileAlreadyExists, Path: target}
		}
	}

	if err := os.Rename(source, target); err == nil {
		info, statErr := os.Stat(target)
		var size uint64
		if statErr == nil {
			size = uint64(info.Size())
		}
		if callback != nil {
			callback(FileProgress{BytesFinished: size, BytesTotal: size})
		}
		return size, nil
	}

	// The rename failed for some non-fatal reason (crossing
	// filesystems is the common case); fall back to copy-then-delete.
	n, err := CopyFileWithProgress(source, target, FileCopyOptions(opts), callback)
	if err != nil {
		return n, err
	}
	if err := os.Remove(source); err != nil {
		return n, &FileError{Kind: UnableToAccessSource, Path: source, cause: errors.Wrapf(err, "remove source %q after move", source)}
	}
	return n, nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// CopyDirectory copies the tree rooted at source into target according to
// opts, returning the totals of what was created/copied. Pre-flight
// validation (design §4.4) runs to completion, with zero mutation, before
// anything is created.
func CopyDirectory(source, target string, opts DirectoryCopyOptions) (DirectoryCopyFinished, error) {
	return CopyDirectoryWithProgress(source, target, opts, nil)
}

// CopyDirectoryWithProgress is CopyDirectory plus a progress callback
// invoked synchronously as directories are created and files copied. No
// callback fires if pre-flight validation rejects the plan.
func CopyDirectoryWithProgress(source, target string, opts DirectoryCopyOptions, callback DirectoryProgressCallback) (DirectoryCopyFinished, error) {
	plan, err := planner.Plan(source, target, opts.TargetDirectoryRule.toPlannerRule(), opts.MaximumCopyDepth)
	if err != nil {
		return DirectoryCopyFinished{}, toDirectoryError(err)
	}
	var sink executor.Sink
	if callback != nil {
		sink = func(p executor.Progress) { callback(toDirectoryProgress(p)) }
	}
	finished, err := executor.Execute(plan, executor.FilePolicy{
		OverwriteExistingFiles: opts.TargetDirectoryRule.Kind == AllowNonEmpty && opts.TargetDirectoryRule.OverwriteExistingFiles,
	}, sink)
	if err != nil {
		return toDirectoryCopyFinished(finished), toDirectoryError(err)
	}
	return toDirectoryCopyFinished(finished), nil
}

// MoveDirectory moves the tree rooted at source into target according to
// opts. When target does not exist yet, a single filesystem rename is
// attempted first; if target exists, or the rename fails for a non-fatal
// reason (e.g. crossing filesystems), it falls back to copy-then-delete,
// leaving the source intact if the copy phase fails.
func MoveDirectory(source, target string, opts DirectoryMoveOptions) (DirectoryCopyFinished, error) {
	return MoveDirectoryWithProgress(source, target, opts, nil)
}

// MoveDirectoryWithProgress is MoveDirectory plus a progress callback.
func MoveDirectoryWithProgress(source, target string, opts DirectoryMoveOptions, callback DirectoryProgressCallback) (DirectoryCopyFinished, error) {
	rule := TargetDirectoryRule(opts.TargetDirectoryRule)

	same, err := pathid.Same(source, target)
	if err != nil {
		return DirectoryCopyFinished{}, &DirectoryError{Kind: UnableToAccess, Path: target, cause: err}
	}
	contains, err := pathid.Contains(source, target)
	if err != nil {
		return DirectoryCopyFinished{}, &DirectoryError{Kind: UnableToAccess, Path: target, cause: err}
	}
	if same || contains {
		return DirectoryCopyFinished{}, &DirectoryError{Kind: InvalidTargetDirectoryPath, Path: target}
	}

	// A plain rename only ever lands cleanly when nothing already
	// occupies target, so that's the only case worth trying before
	// falling back to the validated plan-and-copy path (which is what
	// AllowNonEmpty's per-item collision rules require anyway).
	if !exists(target) {
		if err := os.Rename(source, target); err == nil {
			scanResult, scanErr := scan.Walk(target, opts.MaximumCopyDepth, true, true)
			finished := DirectoryCopyFinished{}
			if scanErr == nil {
				finished.NumFilesCopied = len(scanResult.Files)
				finished.NumDirectoriesCreated = len(scanResult.Directories)
				finished.TotalBytesCopied = uint64(scanResult.TotalSizeInBytes())
			}
			if callback != nil {
				callback(DirectoryCopyProgress{
					BytesTotal:            finished.TotalBytesCopied,
					BytesFinished:         finished.TotalBytesCopied,
					FilesCopied:           finished.NumFilesCopied,
					DirectoriesCreated:    finished.NumDirectoriesCreated,
					CurrentOperationIndex: finished.NumFilesCopied + finished.NumDirectoriesCreated - 1,
					TotalOperations:       finished.NumFilesCopied + finished.NumDirectoriesCreated,
				})
			}
			return finished, nil
		}
	}

	plan, err := planner.Plan(source, target, rule.toPlannerRule(), opts.MaximumCopyDepth)
	if err != nil {
		return DirectoryCopyFinished{}, toDirectoryError(err)
	}
	var sink executor.Sink
	if callback != nil {
		sink = func(p executor.Progress) { callback(toDirectoryProgress(p)) }
	}
	finished, err := executor.Execute(plan, executor.FilePolicy{
		OverwriteExistingFiles: rule.Kind == AllowNonEmpty && rule.OverwriteExistingFiles,
	}, sink)
	if err != nil {
		return toDirectoryCopyFinished(finished), toDirectoryError(err)
	}
	if err := executor.Delete(plan); err != nil {
		return toDirectoryCopyFinished(finished), &DirectoryError{Kind: OtherDirectoryIoError, Path: source, cause: err}
	}
	return toDirectoryCopyFinished(finished), nil
}

// DirectoryScan is the result of scanning a directory tree: an ordered
// sequence of directory paths relative to root, an ordered sequence of
// file descriptors (relative path + byte size), and a flag indicating
// whether the bounded depth was reached.
type DirectoryScan struct {
	Root              string
	Directories       []string
	Files             []FileDescriptor
	DepthBoundReached bool
}

// FileDescriptor is one scanned file, relative to DirectoryScan.Root.
type FileDescriptor struct {
	RelPath string
	Size    int64
}

// TotalSizeInBytes sums the size of every scanned file.
func (s *DirectoryScan) TotalSizeInBytes() uint64 {
	var total uint64
	for _, f := range s.Files {
		total += uint64(f.Size)
	}
	return total
}

// Scan produces a depth-bounded enumeration of root: maxDepth == nil means
// unbounded, a pointer to 0 means only root's direct children.
// followRootSymlink controls whether a symlink at the scan root itself is
// followed (treated as a directory) rather than recorded as a single leaf
// entry.
func Scan(root string, maxDepth *int, followRootSymlink bool) (*DirectoryScan, error) {
	s, err := scan.Walk(root, maxDepth, followRootSymlink, false)
	if err != nil {
		return nil, errors.Wrap(err, "scan directory")
	}
	files := make([]FileDescriptor, len(s.Files))
	for i, f := range s.Files {
		files[i] = FileDescriptor{RelPath: f.RelPath, Size: f.Size}
	}
	dirs := make([]string, len(s.Directories))
	for i, d := range s.Directories {
		dirs[i] = d.RelPath
	}
	return &DirectoryScan{
		Root:              s.Root,
		Directories:       dirs,
		Files:             files,
		DepthBoundReached: s.DepthBoundReached,
	}, nil
}
