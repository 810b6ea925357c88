package cfgfile

import (
	"os"
	"slices"
	"strings"

	"github.com/kjk/cfgstore/u"

	"github.com/spf13/afero"
)

// Header is the only content of a newly created config file
const Header = "# Config File"

const defaultPerm os.FileMode = 0644

// Options customize a File. The zero value is ready to use.
type Options struct {
	// Logf receives a message for every swallowed failure
	// and for Add of an existing key. nil discards them.
	Logf func(format string, args ...any)
	// FS is where the backing file lives. nil means the OS file system.
	FS afero.Fs
	// Perm is used when creating the backing file. 0 means 0644.
	Perm os.FileMode
	// LegacySplit truncates values at the second '=' ("a=b=c" => "b")
	// like older versions of this format did. By default only
	// the first '=' separates key from value ("a=b=c" => "b=c").
	LegacySplit bool
}

// Entry is a single key / value pair
type Entry struct {
	Key   string
	Value string
}

// File is a config file loaded into memory
type File struct {
	path        string
	fs          afero.Fs
	perm        os.FileMode
	logf        func(format string, args ...any)
	legacySplit bool

	// keys in write-out order, values has the same keys
	keys   []string
	values map[string]string

	// error from the last I/O operation
	err error
}

func logfNop(format string, args ...any) {}

// New opens config file at path, creating it if it doesn't exist.
// It never fails: I/O errors are swallowed (see Err).
func New(path string) *File {
	return NewWithOptions(path, nil)
}

// NewWithOptions is like New but allows customizing the File
func NewWithOptions(path string, opts *Options) *File {
	if opts == nil {
		opts = &Options{}
	}
	f := &File{
		path:        path,
		fs:          opts.FS,
		perm:        opts.Perm,
		logf:        opts.Logf,
		legacySplit: opts.LegacySplit,
		values:      map[string]string{},
	}
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}
	if f.perm == 0 {
		f.perm = defaultPerm
	}
	if f.logf == nil {
		f.logf = logfNop
	}

	st, err := f.fs.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		f.create()
	} else {
		f.load()
	}
	return f
}

func (f *File) create() {
	f.err = f.writeFile([]byte(Header + "\n"))
	if f.err != nil {
		f.logf("cfgfile: error creating config file '%s': %s\n", f.path, f.err)
	}
}

func (f *File) load() {
	r, err := f.fs.Open(f.path)
	if err != nil {
		f.err = err
		f.logf("cfgfile: error reading config file '%s': %s\n", f.path, err)
		return
	}
	defer u.CloseNoError(r)

	// entries parsed before a read error are kept
	f.err = parse(r, f.legacySplit, f.set)
	if f.err != nil {
		f.logf("cfgfile: error reading config file '%s': %s\n", f.path, f.err)
	}
}

// writeFile truncates the backing file and writes d to it
func (f *File) writeFile(d []byte) (err error) {
	w, err := f.fs.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.perm)
	if err != nil {
		return err
	}
	defer func() {
		// errors from Close() on writable files matter
		err = u.FirstErr(err, w.Close())
	}()
	_, err = w.Write(d)
	return err
}

// save re-writes the whole file from the entries
func (f *File) save() {
	f.err = f.writeFile(f.Bytes())
	if f.err != nil {
		f.logf("cfgfile: error writing config file '%s': %s\n", f.path, f.err)
	}
}

// set inserts or over-writes, preserving position of existing key
func (f *File) set(key, value string) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

// Path returns path of the backing file
func (f *File) Path() string {
	return f.path
}

// Err returns the error from the most recent read or write of the
// backing file, nil if it succeeded
func (f *File) Err() error {
	return f.err
}

// warnMultiline logs entries that won't read back the same.
// They are still written as-is.
func (f *File) warnMultiline(op, key, value string) {
	if strings.Contains(key, "\n") || strings.Contains(value, "\n") {
		f.logf("cfgfile: %s('%s'): key or value contains a newline and will be read back as separate lines\n", op, key)
	}
}

// Add adds an entry only if key doesn't exist yet
func (f *File) Add(key, value string) {
	key = strings.TrimSpace(key)
	if _, ok := f.values[key]; ok {
		f.logf("cfgfile: Add('%s'): entry already exists\n", key)
		return
	}
	value = strings.TrimSpace(value)
	f.warnMultiline("Add", key, value)
	f.set(key, value)
	f.save()
}

// Set adds a new entry or over-writes the value of an existing one
func (f *File) Set(key, value string) {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	f.warnMultiline("Set", key, value)
	f.set(key, value)
	f.save()
}

// Get returns value for key or empty string if key doesn't exist.
// Use Lookup to tell missing key from empty value.
func (f *File) Get(key string) string {
	return f.values[strings.TrimSpace(key)]
}

// Lookup returns value for key and true if key exists
func (f *File) Lookup(key string) (string, bool) {
	v, ok := f.values[strings.TrimSpace(key)]
	return v, ok
}

// Has returns true if key exists
func (f *File) Has(key string) bool {
	_, ok := f.values[strings.TrimSpace(key)]
	return ok
}

// Delete removes an entry. Deleting a key that doesn't exist
// doesn't write the file.
func (f *File) Delete(key string) {
	key = strings.TrimSpace(key)
	if _, ok := f.values[key]; !ok {
		return
	}
	delete(f.values, key)
	if i := slices.Index(f.keys, key); i >= 0 {
		f.keys = slices.Delete(f.keys, i, i+1)
	}
	f.save()
}

// Len returns number of entries
func (f *File) Len() int {
	return len(f.keys)
}

// Keys returns keys in the order they are written to the file
func (f *File) Keys() []string {
	return slices.Clone(f.keys)
}

// Entries returns a copy of all entries in write-out order
func (f *File) Entries() []Entry {
	res := make([]Entry, 0, len(f.keys))
	for _, k := range f.keys {
		res = append(res, Entry{Key: k, Value: f.values[k]})
	}
	return res
}

// Bytes returns the content that is written to the backing file
func (f *File) Bytes() []byte {
	return serialize(f.Entries())
}
