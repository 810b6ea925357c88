package cfgfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alecthomas/assert"
	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/afero"
)

// countingFs counts opens of files for writing
type countingFs struct {
	afero.Fs
	nWrites int
}

func isWriteFlag(flag int) bool {
	return flag&(os.O_WRONLY|os.O_RDWR) != 0
}

func (fs *countingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if isWriteFlag(flag) {
		fs.nWrites++
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

var errSimulated = errors.New("simulated")

// readOnlyFs fails every open for writing
type readOnlyFs struct {
	afero.Fs
}

func (fs *readOnlyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if isWriteFlag(flag) {
		return nil, errSimulated
	}
	return fs.Fs.OpenFile(name, flag, perm)
}

// failingReadFile returns an error after reading n bytes
type failingReadFile struct {
	afero.File
	n int
}

func (f *failingReadFile) Read(p []byte) (int, error) {
	if f.n <= 0 {
		return 0, errSimulated
	}
	if len(p) > f.n {
		p = p[:f.n]
	}
	n, err := f.File.Read(p)
	f.n -= n
	return n, err
}

type failingReadFs struct {
	afero.Fs
	n int
}

func (fs *failingReadFs) Open(name string) (afero.File, error) {
	f, err := fs.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &failingReadFile{File: f, n: fs.n}, nil
}

type logRecorder struct {
	msgs []string
}

func (l *logRecorder) Logf(format string, args ...any) {
	l.msgs = append(l.msgs, fmt.Sprintf(format, args...))
}

const testPath = "/cfg/app.cfg"

func writeTestFile(t *testing.T, fs afero.Fs, content string) {
	t.Helper()
	err := afero.WriteFile(fs, testPath, []byte(content), 0644)
	assert.NoError(t, err)
}

func readTestFile(t *testing.T, fs afero.Fs) string {
	t.Helper()
	d, err := afero.ReadFile(fs, testPath)
	assert.NoError(t, err)
	return string(d)
}

func openMem(t *testing.T, content string) (*File, *countingFs) {
	t.Helper()
	mem := afero.NewMemMapFs()
	writeTestFile(t, mem, content)
	fs := &countingFs{Fs: mem}
	f := NewWithOptions(testPath, &Options{FS: fs})
	assert.NoError(t, f.Err())
	assert.Equal(t, 0, fs.nWrites)
	return f, fs
}

func TestNewCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.cfg")
	f := New(path)
	assert.NoError(t, f.Err())
	assert.Equal(t, path, f.Path())
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, "", f.Get("anything"))

	d, err := os.ReadFile(path)
	assert.NoError(t, err)
	assert.Equal(t, "# Config File\n", string(d))

	// header is not an entry when re-opened
	f = New(path)
	assert.NoError(t, f.Err())
	assert.Equal(t, 0, f.Len())
}

func TestParse(t *testing.T) {
	content := strings.Join([]string{
		"# Config File",
		"",
		"   ",
		"  foo   =   bar  ",
		"no equal sign",
		"a=b=c",
		"url = http://x.com/?q=1",
		"dup = first",
		"empty =",
		"=no key",
		"dup = second",
		"crlf = yes\r",
	}, "\n")
	f, _ := openMem(t, content)
	exp := []Entry{
		{"foo", "bar"},
		{"a", "b=c"},
		{"url", "http://x.com/?q=1"},
		{"dup", "second"},
		{"empty", ""},
		{"", "no key"},
		{"crlf", "yes"},
	}
	got := f.Entries()
	assert.Equal(t, exp, got, spew.Sdump(got))

	v, ok := f.Lookup("empty")
	assert.True(t, ok)
	assert.Equal(t, "", v)
	_, ok = f.Lookup("missing")
	assert.False(t, ok)
	assert.True(t, f.Has(" foo "))
	assert.Equal(t, "bar", f.Get("foo  "))
}

func TestParseLegacySplit(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeTestFile(t, fs, "a=b=c\nurl = http://x.com/?q=1\nk = v\n")
	f := NewWithOptions(testPath, &Options{FS: fs, LegacySplit: true})
	assert.Equal(t, "b", f.Get("a"))
	assert.Equal(t, "http://x.com/?q", f.Get("url"))
	assert.Equal(t, "v", f.Get("k"))
}

func TestParseBOM(t *testing.T) {
	f, _ := openMem(t, "\ufeffkey = value\n")
	assert.Equal(t, []string{"key"}, f.Keys())
	assert.Equal(t, "value", f.Get("key"))
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line   string
		legacy bool
		key    string
		value  string
		ok     bool
	}{
		{"k=v", false, "k", "v", true},
		{" k = v ", false, "k", "v", true},
		{"k==v", false, "k", "=v", true},
		{"k==v", true, "k", "", true},
		{"k", false, "", "", false},
		{"k", true, "", "", false},
		{"", false, "", "", false},
		{"\t \t", false, "", "", false},
		{"=", false, "", "", true},
	}
	for _, test := range tests {
		key, value, ok := splitLine(test.line, test.legacy)
		assert.Equal(t, test.ok, ok, "line: %q", test.line)
		assert.Equal(t, test.key, key, "line: %q", test.line)
		assert.Equal(t, test.value, value, "line: %q", test.line)
	}
}

func TestRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.cfg")
	f := New(path)
	var exp []Entry
	for i := 0; i < 50; i++ {
		e := Entry{Key: fmt.Sprintf("key%d", i), Value: fmt.Sprintf("value %d", i)}
		f.Set(e.Key, e.Value)
		exp = append(exp, e)
	}
	assert.NoError(t, f.Err())

	f2 := New(path)
	assert.NoError(t, f2.Err())
	assert.Equal(t, exp, f2.Entries())
}

func TestAddDoesNotOverwrite(t *testing.T) {
	var l logRecorder
	fs := &countingFs{Fs: afero.NewMemMapFs()}
	f := NewWithOptions(testPath, &Options{FS: fs, Logf: l.Logf})
	assert.Equal(t, 1, fs.nWrites)

	f.Add("k", "v1")
	assert.Equal(t, 2, fs.nWrites)
	f.Add("k", "v2")
	assert.Equal(t, 2, fs.nWrites)
	assert.Equal(t, "v1", f.Get("k"))
	assert.Equal(t, "k = v1\n", readTestFile(t, fs))

	assert.Equal(t, 1, len(l.msgs), spew.Sdump(l.msgs))
	assert.True(t, strings.Contains(l.msgs[0], "already exists"), l.msgs[0])
}

func TestSetOverwrites(t *testing.T) {
	f, fs := openMem(t, "a = 1\nb = 2\nc = 3\n")
	f.Set("b", "v1")
	f.Set("b", "v2")
	assert.Equal(t, 2, fs.nWrites)
	assert.Equal(t, "v2", f.Get("b"))
	// b keeps its position
	assert.Equal(t, "a = 1\nb = v2\nc = 3\n", readTestFile(t, fs))
}

func TestSetTrims(t *testing.T) {
	f, fs := openMem(t, "")
	f.Set("  k\t", "  v  ")
	f.Add(" k2 ", " v2 ")
	assert.Equal(t, "k = v\nk2 = v2\n", readTestFile(t, fs))
	assert.Equal(t, "v", f.Get(" k "))
}

func TestDelete(t *testing.T) {
	f, fs := openMem(t, "a = 1\nb = 2\nc = 3\n")

	f.Delete("missing")
	assert.Equal(t, 0, fs.nWrites)
	assert.Equal(t, 3, f.Len())

	f.Delete("a")
	assert.Equal(t, 1, fs.nWrites)
	assert.Equal(t, "b = 2\nc = 3\n", readTestFile(t, fs))

	// re-added key goes to the end
	f.Set("a", "4")
	assert.Equal(t, []string{"b", "c", "a"}, f.Keys())

	f.Delete(" b ")
	f.Delete("c")
	f.Delete("a")
	assert.Equal(t, 0, f.Len())
	// empty config is an empty file
	assert.Equal(t, "", readTestFile(t, fs))
}

func TestGetOnEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	f := NewWithOptions(testPath, &Options{FS: fs})
	assert.Equal(t, "", f.Get(""))
	assert.Equal(t, "", f.Get("k"))
	assert.Equal(t, 0, len(f.Keys()))
	assert.Equal(t, 0, len(f.Entries()))
}

func TestWriteFailureIsSwallowed(t *testing.T) {
	var l logRecorder
	mem := afero.NewMemMapFs()
	writeTestFile(t, mem, "a = 1\n")
	f := NewWithOptions(testPath, &Options{FS: &readOnlyFs{Fs: mem}, Logf: l.Logf})
	assert.NoError(t, f.Err())

	f.Set("b", "2")
	assert.Equal(t, errSimulated, f.Err())
	assert.Equal(t, "2", f.Get("b"))
	assert.Equal(t, "a = 1\n", readTestFile(t, mem))
	assert.Equal(t, 1, len(l.msgs))
	assert.True(t, strings.Contains(l.msgs[0], "error writing"), l.msgs[0])

	f.Delete("a")
	assert.Equal(t, "", f.Get("a"))
	assert.Equal(t, 2, len(l.msgs))
}

func TestCreateFailureIsSwallowed(t *testing.T) {
	var l logRecorder
	path := filepath.Join(t.TempDir(), "missing-dir", "app.cfg")
	f := NewWithOptions(path, &Options{Logf: l.Logf})
	assert.Error(t, f.Err())
	assert.Equal(t, 0, f.Len())
	assert.Equal(t, 1, len(l.msgs))
	assert.True(t, strings.Contains(l.msgs[0], "error creating"), l.msgs[0])

	// memory is still usable
	f.Set("k", "v")
	assert.Error(t, f.Err())
	assert.Equal(t, "v", f.Get("k"))
}

func TestPathIsDir(t *testing.T) {
	dir := t.TempDir()
	f := New(dir)
	assert.Error(t, f.Err())
	assert.Equal(t, 0, f.Len())
}

func TestReadFailureKeepsPartial(t *testing.T) {
	var l logRecorder
	mem := afero.NewMemMapFs()
	content := "a = 1\nb = 2\n"
	writeTestFile(t, mem, content+"c = 3\n")
	fs := &failingReadFs{Fs: mem, n: len(content)}
	f := NewWithOptions(testPath, &Options{FS: fs, Logf: l.Logf})
	assert.Equal(t, errSimulated, f.Err())
	assert.Equal(t, []string{"a", "b"}, f.Keys())
	assert.Equal(t, 1, len(l.msgs))
	assert.True(t, strings.Contains(l.msgs[0], "error reading"), l.msgs[0])

	// a successful write clears the error
	f.Set("c", "4")
	assert.NoError(t, f.Err())
	assert.Equal(t, "a = 1\nb = 2\nc = 4\n", readTestFile(t, mem))
}

func TestInstancesAreIndependent(t *testing.T) {
	fs := afero.NewMemMapFs()
	f1 := NewWithOptions("/a.cfg", &Options{FS: fs})
	f2 := NewWithOptions("/b.cfg", &Options{FS: fs})
	f1.Set("k", "1")
	f2.Set("k", "2")
	assert.Equal(t, "1", f1.Get("k"))
	assert.Equal(t, "2", f2.Get("k"))
}

func TestPerm(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.cfg")
	_ = NewWithOptions(path, &Options{Perm: 0600})
	st, err := os.Stat(path)
	assert.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), st.Mode().Perm())
}

func TestMultilineValueIsReported(t *testing.T) {
	mem := afero.NewMemMapFs()
	var l logRecorder
	f := NewWithOptions(testPath, &Options{FS: mem, Logf: l.Logf})
	f.Set("k", "v\nother = 1")
	f.Add("k2", "x\ny")
	f.Set("plain", "value")
	assert.Equal(t, 2, len(l.msgs), "msgs: %v", l.msgs)
	assert.True(t, strings.Contains(l.msgs[0], "Set('k')"), l.msgs[0])
	assert.True(t, strings.Contains(l.msgs[1], "Add('k2')"), l.msgs[1])

	// memory still has the value, re-reading splits it
	assert.Equal(t, "v\nother = 1", f.Get("k"))
	f2 := NewWithOptions(testPath, &Options{FS: mem})
	assert.Equal(t, "v", f2.Get("k"))
	assert.Equal(t, "1", f2.Get("other"))
	assert.Equal(t, "x", f2.Get("k2"))
}
