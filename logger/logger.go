// This file is part of Coreminer.
//
// Coreminer is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Coreminer is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Coreminer.  If not, see <https://www.gnu.org/licenses/>.

// Package logger is the debugger's structured logging facility. It keeps a
// tailable ring buffer of recent log lines (so the JSON front-end can expose
// a "show me the last N log lines" query without a file to tail) and, in
// parallel, forwards every entry to a standard log/slog.Logger so the
// process's usual log stream still sees everything.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Permission decides whether a call to Log actually records anything. The
// debugger uses this to let call sites decide their own rate-limiting
// (e.g. do not flood the log with "swallowed SIGWINCH" entries).
type Permission interface {
	AllowLogging() bool
}

type allowPermission struct{}

func (allowPermission) AllowLogging() bool { return true }

// Allow is the Permission that always allows logging.
var Allow Permission = allowPermission{}

type entry struct {
	tag     string
	message string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s", e.tag, e.message)
}

// Logger is a fixed-capacity ring buffer of log entries paired with a
// *slog.Logger sink. The zero value is not usable; construct with
// NewLogger.
type Logger struct {
	crit sync.Mutex

	entries []entry
	next    int
	count   int

	slog *slog.Logger
}

// NewLogger creates a Logger that retains at most size entries, discarding
// the oldest as new ones arrive. The slog sink defaults to slog.Default();
// override it with SetSlog if the caller wants its own handler (for
// instance, one that also writes structured JSON to a file).
func NewLogger(size int) *Logger {
	if size < 1 {
		size = 1
	}
	return &Logger{
		entries: make([]entry, size),
		slog:    slog.Default(),
	}
}

// SetSlog replaces the slog sink used for forwarded entries.
func (l *Logger) SetSlog(s *slog.Logger) {
	l.crit.Lock()
	defer l.crit.Unlock()
	l.slog = s
}

// Log records message under tag if perm allows it, and forwards the entry
// to the slog sink at Info level.
func (l *Logger) Log(perm Permission, tag string, message string) {
	if perm != nil && !perm.AllowLogging() {
		return
	}

	l.crit.Lock()
	e := entry{tag: tag, message: message}
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.count < len(l.entries) {
		l.count++
	}
	sink := l.slog
	l.crit.Unlock()

	if sink != nil {
		sink.Info(message, slog.String("tag", tag))
	}
}

// Logf is Log with fmt.Sprintf-style formatting of the message.
func (l *Logger) Logf(perm Permission, tag string, format string, args ...any) {
	l.Log(perm, tag, fmt.Sprintf(format, args...))
}

// Write writes every retained entry, oldest first, one per line, to w.
func (l *Logger) Write(w io.Writer) {
	l.Tail(w, -1)
}

// Tail writes the most recent n entries, oldest first, one per line, to w.
// n <= 0 or n greater than the number of retained entries is treated as "all
// of them".
func (l *Logger) Tail(w io.Writer, n int) {
	l.crit.Lock()
	all := l.orderedLocked()
	l.crit.Unlock()

	if n > 0 && n < len(all) {
		all = all[len(all)-n:]
	}

	sb := strings.Builder{}
	for _, e := range all {
		sb.WriteString(e.String())
		sb.WriteString("\n")
	}
	io.WriteString(w, sb.String())
}

func (l *Logger) orderedLocked() []entry {
	out := make([]entry, 0, l.count)
	start := (l.next - l.count + len(l.entries)) % len(l.entries)
	for i := 0; i < l.count; i++ {
		out = append(out, l.entries[(start+i)%len(l.entries)])
	}
	return out
}

// central is the package-level logger every component shares; the
// package-level Log, Logf, Write and Tail functions all go through it.
var central = NewLogger(1000)

// Log records message under tag on the central logger.
func Log(tag string, message string) {
	central.Log(Allow, tag, message)
}

// Logf is Log with formatting.
func Logf(tag string, format string, args ...any) {
	central.Logf(Allow, tag, format, args...)
}

// Write writes the central logger's full history to w.
func Write(w io.Writer) {
	central.Write(w)
}

// Tail writes the central logger's last n entries to w.
func Tail(w io.Writer, n int) {
	central.Tail(w, n)
}
