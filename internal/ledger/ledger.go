// Package ledger persists the three append-only NDJSON ledgers the run
// leaves behind: debug, error, and report. The report ledger doubles as
// the durable resumption state a later run rebuilds its dedup index from.
//
// All appends funnel through one writer goroutine fed by a channel, so
// concurrent workers never interleave partial lines.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Level selects which ledger file a record is appended to.
type Level string

// The three ledger levels.
const (
	LevelDebug  Level = "debug"
	LevelError  Level = "error"
	LevelReport Level = "report"
)

// Record is the shape of every ledger line.
type Record struct {
	Message any `json:"message"`
	Extra   any `json:"extra,omitempty"`
}

// FileName returns the ledger file name for a level, e.g. "report.json".
func FileName(level Level) string {
	return string(level) + ".json"
}

type entry struct {
	level  Level
	record Record
}

// Ledger owns the three ledger files and their single writer goroutine.
type Ledger struct {
	entries chan entry
	done    chan struct{}
	files   map[Level]*os.File
	logger  *zap.Logger

	closeMu sync.Mutex
	closed  bool
}

// Open creates dir if needed, opens the three ledger files for append, and
// starts the writer goroutine.
func Open(dir string, logger *zap.Logger) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create ledger dir %s: %w", dir, err)
	}
	files := make(map[Level]*os.File, 3)
	for _, level := range []Level{LevelDebug, LevelError, LevelReport} {
		path := filepath.Join(dir, FileName(level))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			for _, open := range files {
				_ = open.Close()
			}
			return nil, fmt.Errorf("open ledger %s: %w", path, err)
		}
		files[level] = f
	}

	l := &Ledger{
		entries: make(chan entry, 256),
		done:    make(chan struct{}),
		files:   files,
		logger:  logger,
	}
	go l.run()
	return l, nil
}

func (l *Ledger) run() {
	defer close(l.done)
	for e := range l.entries {
		line, err := json.Marshal(e.record)
		if err != nil {
			l.logger.Error("ledger marshal failed", zap.String("level", string(e.level)), zap.Error(err))
			continue
		}
		line = append(line, '\n')
		if _, err := l.files[e.level].Write(line); err != nil {
			l.logger.Error("ledger append failed", zap.String("level", string(e.level)), zap.Error(err))
		}
	}
}

func (l *Ledger) append(level Level, message, extra any) {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		l.logger.Warn("ledger append after close", zap.String("level", string(level)))
		return
	}
	l.entries <- entry{level: level, record: Record{Message: message, Extra: extra}}
}

// Debug appends to the debug ledger and mirrors to the operational log.
func (l *Ledger) Debug(message, extra any) {
	l.logger.Debug("ledger", zap.Any("message", message), zap.Any("extra", extra))
	l.append(LevelDebug, message, extra)
}

// Error appends to the error ledger and mirrors to the operational log.
func (l *Ledger) Error(message, extra any) {
	l.logger.Error("ledger", zap.Any("message", message), zap.Any("extra", extra))
	l.append(LevelError, message, extra)
}

// Report appends one result record to the report ledger.
func (l *Ledger) Report(message any) {
	l.append(LevelReport, message, nil)
}

// Close flushes pending records, joins the writer, and closes the files.
func (l *Ledger) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.entries)
	l.closeMu.Unlock()

	<-l.done
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
