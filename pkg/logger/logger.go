package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// Level is a Janus log level. Lower is more severe.
type Level int

const (
	// Fatal is for errors the gateway cannot continue after
	Fatal Level = iota + 1
	// Err is for failed operations
	Err
	// Warn is for recoverable problems
	Warn
	// Info is for general informational messages
	Info
	// Verb is for verbose operational detail
	Verb
	// Huge is for very verbose detail
	Huge
	// Dbg is for debugging output
	Dbg
)

// String returns the upper-case name used in severity tags
func (l Level) String() string {
	switch l {
	case Fatal:
		return "FATAL"
	case Err:
		return "ERR"
	case Warn:
		return "WARN"
	case Info:
		return "INFO"
	case Verb:
		return "VERB"
	case Huge:
		return "HUGE"
	case Dbg:
		return "DBG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a level name or number to a Level
func ParseLevel(s string) (Level, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for l := Fatal; l <= Dbg; l++ {
		if s == l.String() || s == fmt.Sprint(int(l)) {
			return l, true
		}
	}
	return 0, false
}

// Params controls how a line is formatted
type Params struct {
	Timestamps bool
	Colors     bool
	Clock      func() time.Time
}

// Format builds one log line: optional timestamp, a severity tag for Warn and
// more severe levels, the message and a trailing newline.
func Format(level Level, message string, params Params) string {
	var b strings.Builder
	b.Grow(len(message) + 48)
	if params.Timestamps {
		clock := params.Clock
		if clock == nil {
			clock = time.Now
		}
		b.WriteString("[")
		b.WriteString(clock().Format(time.ANSIC))
		b.WriteString("] ")
	}
	if level <= Warn {
		tag := "[" + level.String() + "] "
		if params.Colors {
			tag = colorize(level, tag)
		}
		b.WriteString(tag)
	}
	b.WriteString(message)
	b.WriteString("\n")
	return b.String()
}

// colorize adds ANSI color codes to a severity tag
func colorize(level Level, text string) string {
	const (
		colorReset   = "\033[0m"
		colorMagenta = "\033[35m"
		colorYellow  = "\033[33m"
		colorRed     = "\033[31m"
	)

	switch level {
	case Fatal:
		return colorMagenta + text + colorReset
	case Err:
		return colorRed + text + colorReset
	case Warn:
		return colorYellow + text + colorReset
	default:
		return text
	}
}

// Logger writes formatted lines to a sink
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	prefix    string
	threshold func() Level
	params    func() Params
}

// New creates a Logger that writes lines at or below level to out
func New(out io.Writer, prefix string, level Level) *Logger {
	useColor := isTerminal(out)
	return &Logger{
		out:       out,
		prefix:    prefix,
		threshold: func() Level { return level },
		params: func() Params {
			return Params{Timestamps: true, Colors: useColor, Clock: time.Now}
		},
	}
}

// NewDefault creates a logger on stdout at Info level
func NewDefault(prefix string) *Logger {
	return New(os.Stdout, prefix, Info)
}

// NewDynamic creates a logger whose threshold and parameters are read on
// every call, for sinks whose settings can change at runtime
func NewDynamic(out io.Writer, prefix string, threshold func() Level, params func() Params) *Logger {
	return &Logger{out: out, prefix: prefix, threshold: threshold, params: params}
}

// SetLevel sets the least severe level that is still written
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threshold = func() Level { return level }
}

// Enabled reports whether lines at level are written
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	threshold := l.threshold
	l.mu.Unlock()
	return level <= threshold()
}

// Fatal logs at Fatal level. It does not exit.
func (l *Logger) Fatal(format string, v ...any) { l.log(Fatal, format, v...) }

// Err logs a failed operation
func (l *Logger) Err(format string, v ...any) { l.log(Err, format, v...) }

// Warn logs a warning
func (l *Logger) Warn(format string, v ...any) { l.log(Warn, format, v...) }

// Info logs an informational message
func (l *Logger) Info(format string, v ...any) { l.log(Info, format, v...) }

// Verb logs verbose detail
func (l *Logger) Verb(format string, v ...any) { l.log(Verb, format, v...) }

// Huge logs very verbose detail
func (l *Logger) Huge(format string, v ...any) { l.log(Huge, format, v...) }

// Dbg logs debugging output
func (l *Logger) Dbg(format string, v ...any) { l.log(Dbg, format, v...) }

// Printf provides compatibility with standard log.Logger
func (l *Logger) Printf(format string, v ...any) {
	l.Info(format, v...)
}

// Println provides compatibility with standard log.Logger
func (l *Logger) Println(v ...any) {
	l.Info("%s", fmt.Sprint(v...))
}

// log is the internal logging method
func (l *Logger) log(level Level, format string, v ...any) {
	if !l.Enabled(level) {
		return
	}
	message := fmt.Sprintf(format, v...)
	if l.prefix != "" {
		message = l.prefix + " " + message
	}
	line := Format(level, message, l.params())

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, line)
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if term := os.Getenv("TERM"); term == "" || strings.Contains(term, "dumb") {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
