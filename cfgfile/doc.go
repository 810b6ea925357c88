/*
Package cfgfile manages a flat `key = value` configuration file.

The file is parsed once by New and every mutation (Add, Set, Delete)
rewrites the whole file from the in-memory entries:

	f := cfgfile.New("app.cfg")
	f.Set("theme", "dark")
	f.Add("lang", "en") // no-op if "lang" is already set
	theme := f.Get("theme")
	f.Delete("lang")

# File format

One entry per line. A line is an entry if it's not blank and contains `=`.
Key and value are split on the first `=` and trimmed:

	  foo   =   bar    => "foo": "bar"
	a=b=c              => "a": "b=c"

Other lines (including the "# Config File" header written when the file is
created) are ignored when reading and not written back. Entries are written
as `key = value` in insertion order.

There is no escaping: a key or value with a newline is written as-is and
reads back as separate lines. Add and Set report such entries to
Options.Logf.

# Errors

None of the operations fail. I/O errors are reported to Options.Logf and
otherwise swallowed: the in-memory entries stay the source of truth even
if the file couldn't be written. Err returns the most recent I/O error
for callers that want to check.

# Concurrency

A File is not safe for concurrent use and there is no locking of the
backing file. Two Files bound to the same path overwrite each other's
changes. Wrap a File in a mutex if it's shared between goroutines.
*/
package cfgfile
