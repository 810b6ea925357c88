package cfgfile

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/afero"
	"github.com/tidwall/pretty"
	"github.com/toon-format/toon-go"
)

// JSON returns entries as pretty-printed JSON object.
// Keys are in write-out order.
func (f *File) JSON() []byte {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range f.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		// marshalling a string can't fail
		kd, _ := json.Marshal(k)
		vd, _ := json.Marshal(f.values[k])
		buf.Write(kd)
		buf.WriteByte(':')
		buf.Write(vd)
	}
	buf.WriteByte('}')
	return pretty.Pretty(buf.Bytes())
}

// TOON returns entries encoded in toon format
func (f *File) TOON() ([]byte, error) {
	m := make(map[string]any, len(f.keys))
	for _, k := range f.keys {
		m[k] = f.values[k]
	}
	return toon.Marshal(m)
}

// Diff returns unified diff between the backing file on disk and
// what would be written for current entries. It's empty if they
// are the same. Use it to detect changes made to the file
// after it was loaded.
func (f *File) Diff() (string, error) {
	onDisk, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		return "", err
	}
	inMem := f.Bytes()
	if bytes.Equal(onDisk, inMem) {
		return "", nil
	}
	ud := difflib.UnifiedDiff{
		A:        splitLines(string(onDisk)),
		B:        splitLines(string(inMem)),
		FromFile: f.path,
		ToFile:   f.path + " (in memory)",
		Context:  1,
	}
	return difflib.GetUnifiedDiffString(ud)
}

// splitLines is like difflib.SplitLines but doesn't add an empty
// line after the final newline
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	last := len(lines) - 1
	if lines[last] == "" {
		return lines[:last]
	}
	// no newline at the end of the file
	lines[last] += "\n"
	return lines
}
