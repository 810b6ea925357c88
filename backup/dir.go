package backup

import (
	"context"
	"os"
	"path/filepath"

	"github.com/kjk/cfgstore/u"

	"github.com/spf13/afero"
)

// Some references:
// - https://www.slideshare.net/nan1nan1/eat-my-data
// - https://lwn.net/Articles/457667/

// writeFileAtomically writes d to a temporary file in the same directory
// as path and renames it to path. On failure path is untouched and
// the temporary file is removed.
func writeFileAtomically(fs afero.Fs, path string, d []byte, perm os.FileMode) error {
	dir, name := filepath.Split(path)
	if name == "" {
		return &os.PathError{Op: "open", Path: path, Err: os.ErrInvalid}
	}
	if dir == "" {
		dir = "."
	}
	tmpFile, err := afero.TempFile(fs, dir, name+".tmp-")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	didRename := false
	defer func() {
		if !didRename {
			// ignoring error on this one
			_ = fs.Remove(tmpPath)
		}
	}()

	_, err = tmpFile.Write(d)
	// https://www.joeshaw.org/dont-defer-close-on-writable-files/
	errSync := tmpFile.Sync()
	errClose := tmpFile.Close()
	if err = u.FirstErr(err, errSync, errClose); err != nil {
		return err
	}
	// temp files are created with 0600
	if err = fs.Chmod(tmpPath, perm); err != nil {
		return err
	}
	// this will over-write path (if it exists)
	if err = fs.Rename(tmpPath, path); err != nil {
		return err
	}
	didRename = true

	// for extra protection against crashes, sync directory after rename
	if fdir, _ := fs.Open(dir); fdir != nil {
		// ignore errors as those are a nice have, not must have
		_ = fdir.Sync()
		_ = fdir.Close()
	}
	return nil
}

// Dir stores snapshots as files in a directory
type Dir struct {
	Path string
	// nil means the OS file system
	FS afero.Fs
}

var _ Target = &Dir{}

func (d *Dir) fs() afero.Fs {
	if d.FS != nil {
		return d.FS
	}
	return afero.NewOsFs()
}

func (d *Dir) Name() string {
	return "dir:" + d.Path
}

func (d *Dir) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := filepath.Join(d.Path, filepath.FromSlash(name))
	fs := d.fs()
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return writeFileAtomically(fs, path, data, 0644)
}

func (d *Dir) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(d.Path, filepath.FromSlash(name))
	return afero.ReadFile(d.fs(), path)
}
