// Package osfs implements [remotefs.FS] over the local host filesystem.
package osfs

import (
	"io"
	"io/fs"
	"os"

	"github.com/rhogenson/fsmore/internal/remotefs"
)

var (
	_ remotefs.FS          = FS{}
	_ remotefs.MkdirModeFS = FS{}
	_ remotefs.ReadLinkFS  = FS{}
	_ fs.StatFS            = FS{}
)

// FS is the local-disk implementation of remotefs.FS. Every method
// classifies its os error through [remotefs.WrapError] rather than
// returning it bare, so a caller gets the same fsmore.FileError taxonomy
// whether the failing item sits on local disk or behind sftpfs.
type FS struct{}

func (FS) Open(name string) (fs.File, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, remotefs.WrapError("open", name, err)
	}
	return f, nil
}

func (FS) Stat(name string) (fs.FileInfo, error) {
	fi, err := os.Stat(name)
	if err != nil {
		return nil, remotefs.WrapError("stat", name, err)
	}
	return fi, nil
}

func (FS) Lstat(name string) (fs.FileInfo, error) {
	fi, err := os.Lstat(name)
	if err != nil {
		return nil, remotefs.WrapError("lstat", name, err)
	}
	return fi, nil
}

func (FS) ReadLink(name string) (string, error) {
	target, err := os.Readlink(name)
	if err != nil {
		return "", remotefs.WrapError("readlink", name, err)
	}
	return target, nil
}

func (FS) Create(name string, perm fs.FileMode) (io.WriteCloser, error) {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return nil, remotefs.WrapError("create", name, err)
	}
	return f, nil
}

func (FS) Remove(name string) error {
	return remotefs.WrapError("remove", name, os.Remove(name))
}

func (FS) Mkdir(name string) error {
	return remotefs.WrapError("mkdir", name, os.Mkdir(name, 0o700))
}

func (FS) MkdirMode(name string, mode fs.FileMode) error {
	return remotefs.WrapError("mkdir", name, os.Mkdir(name, mode))
}

func (FS) Symlink(oldname, newname string) error {
	return remotefs.WrapError("symlink", newname, os.Symlink(oldname, newname))
}

func (FS) Chmod(name string, mode fs.FileMode) error {
	return remotefs.WrapError("chmod", name, os.Chmod(name, mode))
}
