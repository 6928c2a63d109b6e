package script

import (
	"strings"
	"sync"
)

// NoOutput is returned for scripts that ran without logging anything.
const NoOutput = "Script executed successfully with no output."

type logKind int

const (
	logStdout logKind = iota
	logWarn
	logError
)

// logs collects console output. The loop goroutine writes while the caller
// may read after a timeout, hence the lock.
type logs struct {
	mu       sync.Mutex
	stdout   []string
	warnings []string
	errors   []string
}

func (l *logs) append(kind int, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch logKind(kind) {
	case logWarn:
		l.warnings = append(l.warnings, line)
	case logError:
		l.errors = append(l.errors, line)
	default:
		l.stdout = append(l.stdout, line)
	}
}

func (l *logs) snapshot() (stdout, warnings, errs []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.stdout...),
		append([]string(nil), l.warnings...),
		append([]string(nil), l.errors...)
}

// Report is the outcome of one script run.
type Report struct {
	State    State
	Stdout   []string
	Warnings []string
	Errors   []string
}

// Empty reports whether nothing was logged at all.
func (r Report) Empty() bool {
	return len(r.Stdout) == 0 && len(r.Warnings) == 0 && len(r.Errors) == 0
}

// Text renders the report as the tool's data: stdout, then a Warnings
// section, then an Errors section.
func (r Report) Text() string {
	var b strings.Builder
	if len(r.Stdout) == 0 {
		b.WriteString(NoOutput)
	} else {
		b.WriteString(strings.Join(r.Stdout, "\n"))
	}
	if len(r.Warnings) > 0 {
		b.WriteString("\n\nWarnings:\n")
		b.WriteString(strings.Join(r.Warnings, "\n"))
	}
	if len(r.Errors) > 0 {
		b.WriteString("\n\nErrors:\n")
		b.WriteString(strings.Join(r.Errors, "\n"))
	}
	return b.String()
}
