package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/toon-format/toon-go"
)

var (
	log       *WriteDaily
	eventsLog *WriteDaily

	// if true, Verbosef() will log messages
	Verbose bool

	// where Logf() prints, in addition to the daily log file
	Out io.Writer = os.Stdout
)

// WriteDaily writes to a file per UTC day, named YYYY-MM-DD.txt
type WriteDaily struct {
	Dir         string
	currentDate int // YYYYMMDD format
	file        *os.File
	mu          sync.Mutex
}

func NewWriteDaily(dir string) *WriteDaily {
	return &WriteDaily{
		Dir: dir,
	}
}

// dayFromTime converts a time.Time to YYYYMMDD integer format
func dayFromTime(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

// Writer returns an io.Writer for today's log file
// it creates a new file if needed
func (w *WriteDaily) Writer() (io.Writer, error) {
	if w == nil {
		return nil, fmt.Errorf("w is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC()
	today := dayFromTime(now)

	if w.file != nil && w.currentDate != today {
		if err := w.close(); err != nil {
			return nil, err
		}
	}

	if w.file == nil {
		path := filepath.Join(w.Dir, now.Format("2006-01-02")+".txt")
		if err := os.MkdirAll(w.Dir, 0755); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, err
		}
		w.file = f
		w.currentDate = today
	}
	return w.file, nil
}

// Write writes data to the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) Write(d []byte) error {
	if w == nil {
		return nil
	}
	wr, err := w.Writer()
	if err != nil {
		return err
	}
	_, err = wr.Write(d)
	return err
}

// WriteString is like Write
func (w *WriteDaily) WriteString(s string) error {
	return w.Write([]byte(s))
}

func (w *WriteDaily) close() error {
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = 0
	return err
}

// Close closes the daily log file
// it's safe to call on nil receiver
func (w *WriteDaily) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.close()
}

// Sync flushes the daily log file to disk
// it's safe to call on nil receiver
func (w *WriteDaily) Sync() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		return w.file.Sync()
	}
	return nil
}

type Config struct {
	// log files go to Dir/log, events to Dir/events
	// if empty, Logf() only prints
	Dir string
}

// Init initializes the logging system
func Init(config *Config) {
	if config == nil || config.Dir == "" {
		return
	}
	log = NewWriteDaily(filepath.Join(config.Dir, "log"))
	// doesn't create files until first Event()
	eventsLog = NewWriteDaily(filepath.Join(config.Dir, "events"))
}

// CloseWriteDaily closes the WriteDaily and sets its pointer to nil
func CloseWriteDaily(wd **WriteDaily) {
	if *wd == nil {
		return
	}
	_ = (*wd).Sync()
	_ = (*wd).Close()
	*wd = nil
}

func Close() {
	CloseWriteDaily(&log)
	CloseWriteDaily(&eventsLog)
}

// Logf formats a message and writes it to Out and to the daily log.
// Its signature matches cfgfile.Options.Logf.
func Logf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	if Out != nil {
		fmt.Fprint(Out, s)
	}
	_ = log.WriteString(s)
}

func Verbosef(format string, args ...any) {
	if !Verbose {
		return
	}
	Logf(format, args...)
}

func GetCallstackFrames(skip int) []string {
	var callers [32]uintptr
	n := runtime.Callers(skip+1, callers[:])
	frames := runtime.CallersFrames(callers[:n])
	var cs []string
	for {
		frame, more := frames.Next()
		if !more {
			break
		}
		cs = append(cs, frame.File+":"+strconv.Itoa(frame.Line))
	}
	return cs
}

func GetCallstack(skip int) string {
	frames := GetCallstackFrames(skip + 1)
	return strings.Join(frames, "\n")
}

// Errorf logs an error message along with the callstack
func Errorf(s string, args ...any) {
	if len(args) > 0 {
		s = fmt.Sprintf(s, args...)
	}
	cs := GetCallstack(1)
	Logf("%s\n%s\n", s, cs)
}

// if err != nil, log and return true
// IfErrf(err) => logs err.Error()
// IfErrf(err, "error is: %v", err) => logs message formatted
func IfErrf(err error, a ...any) bool {
	if err == nil {
		return false
	}
	if len(a) == 0 {
		Errorf("%s", err.Error())
		return true
	}
	s, ok := a[0].(string)
	if !ok {
		s = fmt.Sprintf("%s", a[0])
	}
	if len(a) > 1 {
		s = fmt.Sprintf(s, a[1:]...)
	}
	Errorf("%s", s)
	return true
}

// FormatEvent formats event as a single line:
// "<name> <unix ms> <toon encoded key / values>\n"
// Newlines in toon output are replaced with "; "
func FormatEvent(name string, t time.Time, vals ...any) (string, error) {
	n := len(vals)
	if n%2 != 0 {
		return "", fmt.Errorf("odd number of key / value arguments (%d)", n)
	}
	s := name + " " + strconv.FormatInt(t.UnixMilli(), 10)
	if n == 0 {
		return s + "\n", nil
	}
	m := map[string]any{}
	for i := 0; i < n; i += 2 {
		k, ok := vals[i].(string)
		if !ok {
			return "", fmt.Errorf("key at position %d is %T, not string", i, vals[i])
		}
		m[k] = vals[i+1]
	}
	d, err := toon.Marshal(m)
	if err != nil {
		return "", err
	}
	kv := strings.ReplaceAll(strings.TrimSpace(string(d)), "\n", "; ")
	return s + " " + kv + "\n", nil
}

// Event logs event to events log
// vals are key / value pairs
func Event(name string, vals ...any) {
	s, err := FormatEvent(name, time.Now().UTC(), vals...)
	if err != nil {
		Errorf("log.Event('%s'): %s", name, err)
		return
	}
	_ = eventsLog.WriteString(s)
}
