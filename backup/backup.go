// Package backup stores compressed snapshots of a config file in a Target
// (local directory, S3, SFTP server or HTTP endpoint) and restores them.
//
// Compression is picked by extension of snapshot name:
// .gz, .zst, .br or none.
//
//	c := &backup.Config{Target: &backup.Dir{Path: "backups"}}
//	name := backup.SnapshotName("app", time.Now(), ".cfg.br")
//	_, err := backup.Backup(ctx, c, name, f)
//	...
//	_, err = backup.Restore(ctx, c, name, "app.cfg")
//	f = cfgfile.New("app.cfg")
package backup

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/kjk/cfgstore/cfgfile"
	"github.com/kjk/cfgstore/log"
	"github.com/kjk/cfgstore/u"

	"github.com/spf13/afero"
)

var (
	// ErrMissingConfig is returned by constructors when required
	// config fields are not set
	ErrMissingConfig = errors.New("missing config")

	// ErrInvalidName is returned for snapshot names that could
	// escape the target
	ErrInvalidName = errors.New("invalid snapshot name")
)

// Target is where snapshots are stored
type Target interface {
	// Name describes the target in logs e.g. "s3:bucket/prefix"
	Name() string
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Config is shared by Backup and Restore
type Config struct {
	Target Target
	// FS is where Restore writes the file. nil means the OS file system.
	FS afero.Fs
	// Logf, if set, gets a line per backup / restore
	Logf func(format string, args ...any)
}

func (c *Config) logf(format string, args ...any) {
	if c.Logf != nil {
		c.Logf(format, args...)
	}
}

func (c *Config) fs() afero.Fs {
	if c.FS != nil {
		return c.FS
	}
	return afero.NewOsFs()
}

// Info describes a finished backup or restore
type Info struct {
	Name   string
	Target string
	// size of config file data
	Size int64
	// size after compression, as stored in the target
	CompressedSize int64
	Duration       time.Duration
}

// SnapshotName returns a name like app-20261014-093000.cfg.br
func SnapshotName(base string, t time.Time, ext string) string {
	return fmt.Sprintf("%s-%s%s", base, t.UTC().Format("20060102-150405"), ext)
}

// validateName accepts relative, slash-separated names
// that don't escape the target
func validateName(name string) error {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	if path.Clean(name) != name || name == "." || strings.HasPrefix(name, "../") || name == ".." {
		return fmt.Errorf("%w: '%s'", ErrInvalidName, name)
	}
	return nil
}

func validateConfig(c *Config) error {
	if c == nil || c.Target == nil {
		return fmt.Errorf("%w: Target", ErrMissingConfig)
	}
	return nil
}

// Backup compresses current content of f and stores it as name.
// It stores what f holds in memory, which is what f would write
// to disk, even if the last write failed.
func Backup(ctx context.Context, c *Config, name string, f *cfgfile.File) (*Info, error) {
	if err := validateConfig(c); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	timeStart := time.Now()
	d := f.Bytes()
	compressed, err := u.CompressForPath(name, d)
	if err != nil {
		return nil, fmt.Errorf("compressing '%s' failed: %w", name, err)
	}
	if err = c.Target.Put(ctx, name, compressed); err != nil {
		return nil, fmt.Errorf("storing '%s' in %s failed: %w", name, c.Target.Name(), err)
	}
	info := &Info{
		Name:           name,
		Target:         c.Target.Name(),
		Size:           int64(len(d)),
		CompressedSize: int64(len(compressed)),
		Duration:       time.Since(timeStart),
	}
	c.logf("backup: '%s' => '%s' in %s (%s => %s) in %s\n", f.Path(), name, info.Target, u.FormatSize(info.Size), u.FormatSize(info.CompressedSize), info.Duration)
	log.Event("backup", "config", f.Path(), "name", name, "target", info.Target, "size", info.Size, "compressed", info.CompressedSize)
	return info, nil
}

// Restore fetches snapshot name, decompresses it and atomically
// replaces the file at dstPath. Open dstPath with cfgfile.New after that.
func Restore(ctx context.Context, c *Config, name string, dstPath string) (*Info, error) {
	if err := validateConfig(c); err != nil {
		return nil, err
	}
	if err := validateName(name); err != nil {
		return nil, err
	}
	timeStart := time.Now()
	compressed, err := c.Target.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("fetching '%s' from %s failed: %w", name, c.Target.Name(), err)
	}
	d, err := u.DecompressForPath(name, compressed)
	if err != nil {
		return nil, fmt.Errorf("decompressing '%s' failed: %w", name, err)
	}
	if err = writeFileAtomically(c.fs(), dstPath, d, 0644); err != nil {
		return nil, err
	}
	info := &Info{
		Name:           name,
		Target:         c.Target.Name(),
		Size:           int64(len(d)),
		CompressedSize: int64(len(compressed)),
		Duration:       time.Since(timeStart),
	}
	c.logf("restore: '%s' from %s => '%s' (%s) in %s\n", name, info.Target, dstPath, u.FormatSize(info.Size), info.Duration)
	log.Event("restore", "config", dstPath, "name", name, "target", info.Target, "size", info.Size)
	return info, nil
}
