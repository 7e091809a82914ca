package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// ANSI color escape codes.
const (
	reset  = "\033[0m"
	bold   = "\033[1m"
	dim    = "\033[2m"
	cyan   = "\033[36m"
	green  = "\033[32m"
	yellow = "\033[33m"
	red    = "\033[31m"
)

var (
	consoleMu  sync.Mutex
	consoleOut io.Writer = os.Stderr
	plain      bool
)

// SetConsole redirects the console helpers. With noColor set, lines carry
// no escape codes, which keeps piped CLI output readable.
func SetConsole(w io.Writer, noColor bool) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	consoleOut = w
	plain = noColor
}

func printLine(color, tag, msg string, args ...any) {
	consoleMu.Lock()
	defer consoleMu.Unlock()

	text := fmt.Sprintf(msg, args...)
	ts := time.Now().Format("15:04:05")
	if plain {
		fmt.Fprintf(consoleOut, "%s %-6s %s\n", ts, tag, text)
		return
	}
	fmt.Fprintf(consoleOut, "%s%s%s %s%s%-6s%s %s\n", dim, ts, reset, bold, color, tag, reset, text)
}

// Info prints an informational line with a cyan [INFO] prefix.
func Info(msg string, args ...any) { printLine(cyan, "[INFO]", msg, args...) }

// Success prints a line with a green [OK] prefix.
func Success(msg string, args ...any) { printLine(green, "[OK]", msg, args...) }

// Warning prints a line with a yellow [WARN] prefix.
func Warning(msg string, args ...any) { printLine(yellow, "[WARN]", msg, args...) }

// Error prints a line with a red [ERR] prefix.
func Error(msg string, args ...any) { printLine(red, "[ERR]", msg, args...) }
