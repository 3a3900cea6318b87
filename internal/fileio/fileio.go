// Package fileio implements the File Copy Engine (design §4.3): streaming
// one file's bytes to a destination, respecting overwrite/skip policy, and
// emitting rate-limited progress updates.
package fileio

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/rhogenson/fsmore/internal/pathid"
)

const (
	// DefaultBufferSize is the default number of bytes read/written per
	// chunk during a file copy.
	DefaultBufferSize = 64 * 1024
	// DefaultProgressUpdateInterval is the default minimum number of
	// bytes between progress emissions.
	DefaultProgressUpdateInterval = 64 * 1024
)

// Progress reports a single file copy's progress. BytesTotal is fixed for
// the lifetime of one copy; BytesFinished is monotonically non-decreasing
// and equals BytesTotal on the final, successful emission.
type Progress struct {
	BytesFinished uint64
	BytesTotal    uint64
}

// Sink receives Progress updates. A nil Sink is never invoked; NoopSink
// exists for callers who want to share code paths between the progress and
// non-progress entry points.
type Sink func(Progress)

// NoopSink discards every update.
func NoopSink(Progress) {}

// Options configures one file copy.
type Options struct {
	// OverwriteExisting replaces an existing target file.
	OverwriteExisting bool
	// SkipExisting, if true and the target exists, makes the copy a
	// no-op returning zero bytes transferred. Takes precedence over
	// OverwriteExisting.
	SkipExisting bool
	// BufferSize is the number of bytes read/written per chunk; zero
	// means DefaultBufferSize.
	BufferSize int
	// ProgressUpdateInterval is the minimum number of bytes between
	// progress emissions; zero means DefaultProgressUpdateInterval.
	ProgressUpdateInterval uint64
}

func (o Options) bufferSize() int {
	if o.BufferSize > 0 {
		return o.BufferSize
	}
	return DefaultBufferSize
}

func (o Options) progressUpdateInterval() uint64 {
	if o.ProgressUpdateInterval > 0 {
		return o.ProgressUpdateInterval
	}
	return DefaultProgressUpdateInterval
}

// Kind tags the closed set of file-copy failure reasons from design §7.
type Kind int

const (
	KindNotFound Kind = iota
	KindAlreadyExists
	KindSameFile
	KindNotAFile
	KindSourceAccess
	KindTargetAccess
	KindOther
)

// Error is fsmore's typed file-operation error. It wraps the underlying
// cause (if any) so callers can still use errors.Is/errors.As against it.
type Error struct {
	Kind  Kind
	Path  string
	cause error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindNotFound:
		return "not found: " + e.Path
	case KindAlreadyExists:
		return "already exists: " + e.Path
	case KindSameFile:
		return "source and target are the same file: " + e.Path
	case KindNotAFile:
		return "not a regular file: " + e.Path
	default:
		return e.cause.Error()
	}
}

func (e *Error) Unwrap() error { return e.cause }

func newError(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, cause: cause}
}

// Copy streams source's content to target according to opts, invoking sink
// with rate-limited progress along the way. It returns the number of bytes
// transferred.
func Copy(source, target string, opts Options, sink Sink) (uint64, error) {
	if sink == nil {
		sink = NoopSink
	}

	srcInfo, err := os.Stat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, newError(KindNotFound, source, err)
		}
		return 0, newError(KindSourceAccess, source, errors.Wrapf(err, "stat source %q", source))
	}
	if srcInfo.IsDir() {
		return 0, newError(KindNotAFile, source, nil)
	}

	targetExists := false
	if _, err := os.Lstat(target); err == nil {
		targetExists = true
		same, err := pathid.Same(source, target)
		if err != nil {
			return 0, newError(KindTargetAccess, target, err)
		}
		if same {
			return 0, newError(KindSameFile, target, nil)
		}
	} else if !os.IsNotExist(err) {
		return 0, newError(KindTargetAccess, target, errors.Wrapf(err, "stat target %q", target))
	}

	if targetExists {
		if opts.SkipExisting {
			return 0, nil
		}
		if !opts.OverwriteExisting {
			return 0, newError(KindAlreadyExists, target, nil)
		}
	}

	in, err := os.Open(source)
	if err != nil {
		return 0, newError(KindSourceAccess, source, errors.Wrapf(err, "open source %q", source))
	}
	defer in.Close()

	flags := os.O_WRONLY | os.O_CREATE
	if targetExists {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	out, err := os.OpenFile(target, flags, srcInfo.Mode().Perm())
	if err != nil {
		return 0, newError(KindTargetAccess, target, errors.Wrapf(err, "open target %q", target))
	}
	defer out.Close()

	total := uint64(srcInfo.Size())
	buf := make([]byte, opts.bufferSize())
	interval := opts.progressUpdateInterval()
	var finished, lastReported uint64

	for {
		n, readErr := in.Read(buf)
		if n > 0 {
			if _, err := out.Write(buf[:n]); err != nil {
				return finished, newError(KindTargetAccess, target, errors.Wrapf(err, "write target %q", target))
			}
			finished += uint64(n)
			if finished-lastReported >= interval {
				sink(Progress{BytesFinished: finished, BytesTotal: total})
				lastReported = finished
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return finished, newError(KindSourceAccess, source, errors.Wrapf(readErr, "read source %q", source))
		}
	}

	if err := out.Close(); err != nil {
		return finished, newError(KindTargetAccess, target, errors.Wrapf(err, "close target %q", target))
	}
	if finished != lastReported {
		sink(Progress{BytesFinished: finished, BytesTotal: total})
	} else if total == 0 {
		// Always emit a final update, even for an empty file, so the
		// contract "exactly one callback with bytes_finished ==
		// bytes_total on success" holds for the zero-byte case.
		sink(Progress{BytesFinished: 0, BytesTotal: 0})
	}
	return finished, nil
}
