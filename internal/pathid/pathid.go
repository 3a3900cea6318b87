// Package pathid answers one question: do two differently-spelled paths
// name the same live filesystem entity? It backs the "same file" and
// "target is inside source" checks used by the copy/move entry points and
// the directory planner.
package pathid

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// canonicalize resolves symlinks and ".."/"." components and returns an
// absolute path. It only succeeds if path exists.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve absolute path for %q", path)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", errors.Wrapf(err, "resolve symlinks for %q", path)
	}
	return resolved, nil
}

// normalize performs lexical normalization only (no filesystem access),
// used as a fallback when a path doesn't exist yet.
func normalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve absolute path for %q", path)
	}
	return filepath.Clean(abs), nil
}

func equalPaths(a, b string) bool {
	if caseInsensitiveFS {
		return strings.EqualFold(a, b)
	}
	return a == b
}

// Same reports whether a and b denote the same file or directory on the
// underlying filesystem. If both exist, comparison is done on their
// canonicalized (symlink-resolved) form; if either is missing, comparison
// falls back to lexical normalization, case-folded on platforms whose
// filesystem is case-insensitive (see §4.1 of the design).
func Same(a, b string) (bool, error) {
	aExists := exists(a)
	bExists := exists(b)
	if aExists && bExists {
		ca, err := canonicalize(a)
		if err != nil {
			return false, err
		}
		cb, err := canonicalize(b)
		if err != nil {
			return false, err
		}
		return ca == cb, nil
	}
	na, err := normalize(a)
	if err != nil {
		return false, err
	}
	nb, err := normalize(b)
	if err != nil {
		return false, err
	}
	return equalPaths(na, nb), nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Contains reports whether target is inside source — either equal to it or
// nested below it — using canonicalized forms of both. It fails (as
// opposed to returning false) only on I/O errors; a non-existent target is
// canonicalized via its nearest existing ancestor.
func Contains(source, target string) (bool, error) {
	cSource, err := canonicalizeBestEffort(source)
	if err != nil {
		return false, err
	}
	cTarget, err := canonicalizeBestEffort(target)
	if err != nil {
		return false, err
	}
	if cSource == cTarget {
		return true, nil
	}
	return strings.HasPrefix(cTarget, cSource+string(filepath.Separator)), nil
}

// canonicalizeBestEffort canonicalizes the longest existing prefix of path
// and re-appends the remaining (non-existent) components lexically. This
// lets Contains reason about a target directory that hasn't been created
// yet (the common case for a copy/move destination).
func canonicalizeBestEffort(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", errors.Wrapf(err, "resolve absolute path for %q", path)
	}
	abs = filepath.Clean(abs)
	var tail []string
	cur := abs
	for {
		if exists(cur) {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", errors.Wrapf(err, "resolve symlinks for %q", cur)
			}
			for i := len(tail) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, tail[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached the filesystem root without finding an existing
			// ancestor; fall back to pure lexical normalization.
			return abs, nil
		}
		tail = append(tail, filepath.Base(cur))
		cur = parent
	}
}
