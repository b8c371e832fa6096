// Package msglog collects the notable events of a run so they can be
// summarized once all feeds are done.
package msglog

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

type Log struct {
	mu   sync.Mutex
	msgs []string
	errs []string
}

func New() *Log {
	return &Log{}
}

// Msg records an informational message.
func (l *Log) Msg(format string, args ...any) {
	s := l.add(&l.msgs, format, args)
	slog.Info(s)
}

// Warn records a warning on the informational channel.
func (l *Log) Warn(format string, args ...any) {
	s := l.add(&l.msgs, format, args)
	slog.Warn(s)
}

// Err records an error.
func (l *Log) Err(format string, args ...any) {
	s := l.add(&l.errs, format, args)
	slog.Error(s)
}

func (l *Log) Messages() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.msgs...)
}

func (l *Log) Errors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errs...)
}

// Summary renders both channels for the end of the run.
func (l *Log) Summary() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	if len(l.msgs) > 0 {
		b.WriteString("\n===== Messages =====\n")
		for _, m := range l.msgs {
			b.WriteString(m)
			b.WriteByte('\n')
		}
	}
	if len(l.errs) > 0 {
		b.WriteString("\n===== Errors =====\n")
		for _, e := range l.errs {
			b.WriteString(e)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func (l *Log) add(channel *[]string, format string, args []any) string {
	s := fmt.Sprintf(format, args...)
	l.mu.Lock()
	*channel = append(*channel, s)
	l.mu.Unlock()
	return s
}
