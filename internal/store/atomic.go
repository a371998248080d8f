package store

import (
	"os"
	"path/filepath"

	"github.com/roach88/specforge/internal/specerr"
)

// WriteFileAtomic writes data to a temp file beside path and renames it
// into place, so readers observe either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := writeTemp(filepath.Dir(path), filepath.Base(path), data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return specerr.Wrap(specerr.IOError, err, "replace "+path)
	}
	return nil
}

// writeTemp writes data to a synced temp file in dir and returns its path.
func writeTemp(dir, base string, data []byte, perm os.FileMode) (string, error) {
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return "", specerr.Wrap(specerr.IOError, err, "create temp file in "+dir)
	}
	tmp := f.Name()

	fail := func(err error, msg string) (string, error) {
		f.Close()
		os.Remove(tmp)
		return "", specerr.Wrap(specerr.IOError, err, msg)
	}
	if _, err := f.Write(data); err != nil {
		return fail(err, "write "+tmp)
	}
	if err := f.Sync(); err != nil {
		return fail(err, "sync "+tmp)
	}
	if err := f.Chmod(perm); err != nil {
		return fail(err, "chmod "+tmp)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", specerr.Wrap(specerr.IOError, err, "close "+tmp)
	}
	return tmp, nil
}
