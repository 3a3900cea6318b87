// Package planner implements the Directory Planner (design §4.4): walking
// the source, enumerating target-side collisions, and either proving a
// plan satisfies the caller's TargetDirectoryRule or rejecting it before
// any mutation occurs.
package planner

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rhogenson/fsmore/internal/pathid"
	"github.com/rhogenson/fsmore/internal/scan"
)

// Rule is the tagged TargetDirectoryRule variant of design §3.
type Rule struct {
	kind                            ruleKind
	OverwriteExistingFiles          bool
	OverwriteExistingSubdirectories bool
}

type ruleKind int

const (
	DisallowExisting ruleKind = iota
	AllowEmpty
	AllowNonEmpty
)

// NewDisallowExisting builds the DisallowExisting rule.
func NewDisallowExisting() Rule { return Rule{kind: DisallowExisting} }

// NewAllowEmpty builds the AllowEmpty rule.
func NewAllowEmpty() Rule { return Rule{kind: AllowEmpty} }

// NewAllowNonEmpty builds the AllowNonEmpty rule.
func NewAllowNonEmpty(overwriteFiles, overwriteSubdirectories bool) Rule {
	return Rule{
		kind:                            AllowNonEmpty,
		OverwriteExistingFiles:          overwriteFiles,
		OverwriteExistingSubdirectories: overwriteSubdirectories,
	}
}

func (r Rule) Kind() ruleKind { return r.kind }

// OpKind tags one planned operation.
type OpKind int

const (
	CreateDirectory OpKind = iota
	CopyFile
)

// Op is one item of a validated Plan, carrying absolute source and target
// paths so execution is pure I/O with no further policy decisions.
type Op struct {
	Kind      OpKind
	RelPath   string
	SourceAbs string
	TargetAbs string
	SizeBytes int64 // only meaningful for CopyFile
}

// Plan is the Planner's output: an ordered, self-contained sequence of
// operations plus the aggregate totals computed from it.
type Plan struct {
	SourceRoot       string
	TargetRoot       string
	Ops              []Op
	TotalOperations  int
	BytesTotal       uint64
	DirectoriesTotal int
	FilesTotal       int
}

// ErrorKind tags the closed set of directory-planning/execution failures
// from design §7.
type ErrorKind int

const (
	ErrSourceNotFound ErrorKind = iota
	ErrInvalidTargetPath
	ErrTargetItemAlreadyExists
	ErrFileCopy
	ErrUnableToAccess
	ErrOther
)

// Error is fsmore's typed directory-operation error.
type Error struct {
	Kind  ErrorKind
	Path  string
	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrSourceNotFound:
		return "source directory not found: " + e.Path
	case ErrInvalidTargetPath:
		return "invalid target directory path: " + e.Path
	case ErrTargetItemAlreadyExists:
		return "target item already exists: " + e.Path
	default:
		if e.cause != nil {
			return e.cause.Error()
		}
		return "directory operation failed: " + e.Path
	}
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind ErrorKind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, cause: cause}
}

// Plan walks sourceRoot (bounded by maxDepth, nil meaning unbounded),
// validates targetRoot against rule, and performs the pre-flight collision
// scan, returning either a fully validated Plan or the first error found —
// before any filesystem mutation.
func Plan(sourceRoot, targetRoot string, rule Rule, maxDepth *int) (*Plan, error) {
	if _, err := os.Stat(sourceRoot); err != nil {
		if os.IsNotExist(err) {
			return nil, newError(ErrSourceNotFound, sourceRoot, err)
		}
		return nil, newError(ErrUnableToAccess, sourceRoot, errors.Wrapf(err, "stat source %q", sourceRoot))
	}

	same, err := pathid.Same(sourceRoot, targetRoot)
	if err != nil {
		return nil, newError(ErrUnableToAccess, targetRoot, err)
	}
	contains, err := pathid.Contains(sourceRoot, targetRoot)
	if err != nil {
		return nil, newError(ErrUnableToAccess, targetRoot, err)
	}
	if same || contains {
		return nil, newError(ErrInvalidTargetPath, targetRoot, nil)
	}

	targetInfo, targetErr := os.Stat(targetRoot)
	targetExists := targetErr == nil
	if targetErr != nil && !os.IsNotExist(targetErr) {
		return nil, newError(ErrUnableToAccess, targetRoot, errors.Wrapf(targetErr, "stat target %q", targetRoot))
	}

	switch rule.Kind() {
	case DisallowExisting:
		if targetExists {
			return nil, newError(ErrTargetItemAlreadyExists, targetRoot, nil)
		}
	case AllowEmpty:
		if targetExists {
			entries, err := os.ReadDir(targetRoot)
			if err != nil {
				return nil, newError(ErrUnableToAccess, targetRoot, errors.Wrapf(err, "read target %q", targetRoot))
			}
			if len(entries) > 0 {
				return nil, newError(ErrTargetItemAlreadyExists, targetRoot, nil)
			}
		}
	case AllowNonEmpty:
		if targetExists && !targetInfo.IsDir() {
			return nil, newError(ErrTargetItemAlreadyExists, targetRoot, nil)
		}
	}

	sourceScan, err := scan.Walk(sourceRoot, maxDepth, true, true)
	if err != nil {
		return nil, newError(ErrUnableToAccess, sourceRoot, err)
	}

	plan := &Plan{SourceRoot: sourceRoot, TargetRoot: targetRoot}

	for _, dir := range sourceScan.Directories {
		targetAbs := filepath.Join(targetRoot, dir.RelPath)
		if err := checkDirCollision(targetAbs, rule); err != nil {
			return nil, err
		}
		plan.Ops = append(plan.Ops, Op{
			Kind:      CreateDirectory,
			RelPath:   dir.RelPath,
			SourceAbs: filepath.Join(sourceScan.Root, dir.RelPath),
			TargetAbs: targetAbs,
		})
		plan.DirectoriesTotal++
	}
	for _, f := range sourceScan.Files {
		targetAbs := filepath.Join(targetRoot, f.RelPath)
		if err := checkFileCollision(targetAbs, rule); err != nil {
			return nil, err
		}
		plan.Ops = append(plan.Ops, Op{
			Kind:      CopyFile,
			RelPath:   f.RelPath,
			SourceAbs: filepath.Join(sourceScan.Root, f.RelPath),
			TargetAbs: targetAbs,
			SizeBytes: f.Size,
		})
		plan.FilesTotal++
		plan.BytesTotal += uint64(f.Size)
	}

	plan.TotalOperations = plan.DirectoriesTotal + plan.FilesTotal
	return plan, nil
}

func checkDirCollision(targetAbs string, rule Rule) error {
	info, err := os.Lstat(targetAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newError(ErrUnableToAccess, targetAbs, errors.Wrapf(err, "stat %q", targetAbs))
	}
	if !info.IsDir() {
		// A file occupies the path a directory needs; always a collision
		// regardless of rule, since no directory-overwrite flag
		// authorizes replacing a file with a directory.
		return newError(ErrTargetItemAlreadyExists, targetAbs, nil)
	}
	if rule.Kind() == AllowNonEmpty && rule.OverwriteExistingSubdirectories {
		return nil
	}
	return newError(ErrTargetItemAlreadyExists, targetAbs, nil)
}

func checkFileCollision(targetAbs string, rule Rule) error {
	info, err := os.Lstat(targetAbs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return newError(ErrUnableToAccess, targetAbs, errors.Wrapf(err, "stat %q", targetAbs))
	}
	if info.IsDir() {
		return newError(ErrTargetItemAlreadyExists, targetAbs, nil)
	}
	if rule.Kind() == AllowNonEmpty && rule.OverwriteExistingFiles {
		return nil
	}
	return newError(ErrTargetItemAlreadyExists, targetAbs, nil)
}
