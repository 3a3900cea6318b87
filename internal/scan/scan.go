// Package scan implements the depth-bounded directory enumeration
// described in design §4.2 ("Directory Scanner"). It classifies every entry
// as a file, directory, or symlink-to-file/symlink-to-directory, and can
// total the size of the scanned subset on demand. The enumeration is not
// lazy: Walk collects every entry within the depth bound before returning.
package scan

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// EntryKind classifies one scanned filesystem entry.
type EntryKind int

const (
	File EntryKind = iota
	Directory
	SymlinkToFile
	SymlinkToDirectory
)

func (k EntryKind) String() string {
	switch k {
	case File:
		return "file"
	case Directory:
		return "directory"
	case SymlinkToFile:
		return "symlink-to-file"
	case SymlinkToDirectory:
		return "symlink-to-directory"
	default:
		return "unknown"
	}
}

// FileDescriptor is one scanned file or symlink-to-file, relative to the
// scan root. Kind is always File or SymlinkToFile.
type FileDescriptor struct {
	RelPath string
	Size    int64
	Kind    EntryKind
}

// DirectoryDescriptor is one scanned directory or symlink-to-directory
// preserved as a leaf, relative to the scan root. Kind is always Directory
// or SymlinkToDirectory.
type DirectoryDescriptor struct {
	RelPath string
	Kind    EntryKind
}

// Scan is the result of scanning a directory tree: an ordered list of
// directories (parents before children) and an ordered list of files, both
// relative to Root, plus whether the configured depth bound was reached
// (in which case size totals describe only the scanned subset).
type Scan struct {
	Root              string
	Directories       []DirectoryDescriptor
	Files             []FileDescriptor
	DepthBoundReached bool
}

// TotalSizeInBytes sums the size of every File and SymlinkToFile entry. It
// cannot fail: Walk itself fails when an entry cannot be stat'ed, and a
// dangling symlink is counted with the length of its target string.
func (s *Scan) TotalSizeInBytes() int64 {
	var total int64
	for _, f := range s.Files {
		total += f.Size
	}
	return total
}

// Walk performs one breadth-first-for-collision-purposes, depth-bounded
// scan of root. maxDepth == nil means unbounded; maxDepth pointing at 0
// means "only root's direct children". recurseIntoDirSymlinks controls
// whether an interior symlink-to-directory is walked into (as the
// directory executor requires, design §4.5) or preserved as a single leaf
// entry (the public DirectoryScan contract, design §4.2).
func Walk(root string, maxDepth *int, followRootSymlink, recurseIntoDirSymlinks bool) (*Scan, error) {
	result := &Scan{Root: root}

	rootInfo, err := os.Lstat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "stat scan root %q", root)
	}

	rootIsSymlink := rootInfo.Mode()&os.ModeSymlink != 0
	if rootIsSymlink {
		if !followRootSymlink {
			// The root itself is the only entry; nothing more to scan.
			// It is still recorded — as a single leaf entry, per the
			// public DirectoryScan contract (fsmore.go's Scan) — rather
			// than discarded: a directory-symlink root is not the same
			// thing as an empty scan.
			target, err := os.Readlink(root)
			if err != nil {
				return nil, errors.Wrapf(err, "read root symlink %q", root)
			}
			targetInfo, statErr := os.Stat(root)
			if statErr == nil && targetInfo.IsDir() {
				result.Directories = append(result.Directories, DirectoryDescriptor{RelPath: ".", Kind: SymlinkToDirectory})
				return result, nil
			}
			size := int64(len(target))
			if statErr == nil {
				size = targetInfo.Size()
			}
			result.Files = append(result.Files, FileDescriptor{RelPath: ".", Size: size, Kind: SymlinkToFile})
			return result, nil
		}
		resolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve root symlink %q", root)
		}
		root = resolved
		result.Root = resolved
	}

	// level is the nesting level of the directory whose children are
	// about to be listed; the root itself is level -1, so its direct
	// children (files and subdirectories alike) are always discovered.
	// A subdirectory discovered at level L is itself explored (listed,
	// and thus created) only if L < maxDepth — this is what makes
	// maxDepth == 0 yield the root's immediate files with zero
	// subdirectories created (design §3, "0 = copy only immediate
	// children of source root").
	type queued struct {
		relPath string
		level   int
	}
	queue := []queued{{relPath: ".", level: -1}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		absPath := filepath.Join(root, cur.relPath)
		entries, err := os.ReadDir(absPath)
		if err != nil {
			return nil, errors.Wrapf(err, "read directory %q", absPath)
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

		for _, entry := range entries {
			relPath := entry.Name()
			if cur.relPath != "." {
				relPath = filepath.Join(cur.relPath, entry.Name())
			}
			childLevel := cur.level + 1
			absChild := filepath.Join(root, relPath)

			info, err := entry.Info()
			if err != nil {
				return nil, errors.Wrapf(err, "stat %q", absChild)
			}

			switch {
			case info.Mode()&os.ModeSymlink != 0:
				target, targetInfo, err := resolveSymlink(absChild)
				if err != nil {
					return nil, err
				}
				if targetInfo != nil && targetInfo.IsDir() {
					if !exploreAtLevel(childLevel, maxDepth) {
						result.DepthBoundReached = true
						continue
					}
					result.Directories = append(result.Directories, DirectoryDescriptor{RelPath: relPath, Kind: SymlinkToDirectory})
					if recurseIntoDirSymlinks {
						// Descend as if this were a plain directory: its
						// children are enumerated relative to the
						// symlink's own path, bounded by remaining depth
						// (design §4.5). The link target's real entries
						// are what get read, via absChild, which
						// os.ReadDir follows transparently.
						queue = append(queue, queued{relPath: relPath, level: childLevel})
					}
					continue
				}
				size := int64(len(target))
				if targetInfo != nil {
					size = targetInfo.Size()
				}
				result.Files = append(result.Files, FileDescriptor{RelPath: relPath, Size: size, Kind: SymlinkToFile})

			case info.IsDir():
				if !exploreAtLevel(childLevel, maxDepth) {
					result.DepthBoundReached = true
					continue
				}
				result.Directories = append(result.Directories, DirectoryDescriptor{RelPath: relPath, Kind: Directory})
				queue = append(queue, queued{relPath: relPath, level: childLevel})

			default:
				result.Files = append(result.Files, FileDescriptor{RelPath: relPath, Size: info.Size(), Kind: File})
			}
		}
	}

	return result, nil
}

// exploreAtLevel reports whether a subdirectory discovered at the given
// nesting level (0 = root's immediate subdirectory) should be listed (and
// thus created) given maxDepth, where maxDepth == nil means unbounded.
func exploreAtLevel(level int, maxDepth *int) bool {
	if maxDepth == nil {
		return true
	}
	return level < *maxDepth
}

func resolveSymlink(path string) (target string, info os.FileInfo, err error) {
	target, err = os.Readlink(path)
	if err != nil {
		return "", nil, errors.Wrapf(err, "read symlink %q", path)
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		// A dangling symlink is not an error at scan time; it is recorded
		// with the size of its target string.
		return target, nil, nil
	}
	return target, info, nil
}
