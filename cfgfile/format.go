package cfgfile

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

const (
	utf8BOM = "\ufeff"
	// lines longer than this fail the read
	maxLineLen = 1024 * 1024
)

// splitLine returns key and value of a config line.
// ok is false for lines that are not entries.
func splitLine(line string, legacy bool) (key, value string, ok bool) {
	if strings.TrimSpace(line) == "" {
		return "", "", false
	}
	if legacy {
		parts := strings.Split(line, "=")
		if len(parts) < 2 {
			return "", "", false
		}
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), true
	}
	key, value, ok = strings.Cut(line, "=")
	if !ok {
		return "", "", false
	}
	return strings.TrimSpace(key), strings.TrimSpace(value), true
}

// parse calls onEntry for every entry in r.
// On error, entries read so far have already been reported.
func parse(r io.Reader, legacy bool, onEntry func(key, value string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLen)
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, utf8BOM)
			first = false
		}
		if key, value, ok := splitLine(line, legacy); ok {
			onEntry(key, value)
		}
	}
	return scanner.Err()
}

func serialize(entries []Entry) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		buf.WriteString(e.Key)
		buf.WriteString(" = ")
		buf.WriteString(e.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}
