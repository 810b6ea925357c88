package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/assert"
)

func TestFormatEvent(t *testing.T) {
	tm := time.UnixMilli(1700000000000).UTC()
	s, err := FormatEvent("backup", tm)
	assert.NoError(t, err)
	assert.Equal(t, "backup 1700000000000\n", s)

	s, err = FormatEvent("backup", tm, "target", "dir", "size", 12)
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(s, "backup 1700000000000 "), s)
	assert.True(t, strings.HasSuffix(s, "\n"), s)
	assert.Equal(t, 1, strings.Count(s, "\n"), s)
	assert.True(t, strings.Contains(s, "target: dir"), s)
	assert.True(t, strings.Contains(s, "size: 12"), s)

	_, err = FormatEvent("backup", tm, "target")
	assert.Error(t, err)
	_, err = FormatEvent("backup", tm, 5, "v")
	assert.Error(t, err)
}

func TestWriteDaily(t *testing.T) {
	dir := t.TempDir()
	w := NewWriteDaily(dir)
	assert.NoError(t, w.WriteString("line 1\n"))
	assert.NoError(t, w.WriteString("line 2\n"))
	assert.NoError(t, w.Sync())
	assert.NoError(t, w.Close())
	// Close twice is ok
	assert.NoError(t, w.Close())

	name := time.Now().UTC().Format("2006-01-02") + ".txt"
	d, err := os.ReadFile(filepath.Join(dir, name))
	assert.NoError(t, err)
	assert.Equal(t, "line 1\nline 2\n", string(d))
}

func TestWriteDailyNil(t *testing.T) {
	var w *WriteDaily
	assert.NoError(t, w.WriteString("ignored"))
	assert.NoError(t, w.Sync())
	assert.NoError(t, w.Close())
}

func TestLogf(t *testing.T) {
	var buf bytes.Buffer
	prevOut := Out
	Out = &buf
	defer func() { Out = prevOut }()

	dir := t.TempDir()
	Init(&Config{Dir: dir})
	defer Close()

	Logf("hello %s\n", "world")
	Verbosef("not logged\n")
	assert.Equal(t, "hello world\n", buf.String())

	Event("set", "key", "theme")
	Close()

	day := time.Now().UTC().Format("2006-01-02") + ".txt"
	d, err := os.ReadFile(filepath.Join(dir, "log", day))
	assert.NoError(t, err)
	assert.Equal(t, "hello world\n", string(d))

	d, err = os.ReadFile(filepath.Join(dir, "events", day))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(d), "set "), string(d))
}

func TestIfErrf(t *testing.T) {
	var buf bytes.Buffer
	prevOut := Out
	Out = &buf
	defer func() { Out = prevOut }()

	assert.False(t, IfErrf(nil))
	assert.True(t, IfErrf(os.ErrNotExist, "open '%s' failed", "a.cfg"))
	assert.True(t, strings.HasPrefix(buf.String(), "open 'a.cfg' failed\n"), buf.String())
}
