// Package errlog provides the append-only failure log shared by adapters
// and the fallback chain engine. It is an explicitly injected collaborator,
// not a global: components hold a *Log and record classified failures into
// it for downstream audit queries.
package errlog

import (
	"log/slog"
	"sync"
	"time"

	"marketfetch/internal/fetch/failure"
)

const defaultMaxRecords = 1000

// Record is one logged failure or fallback activation.
type Record struct {
	Time     time.Time        `json:"time"`
	Provider string           `json:"provider"`
	Category failure.Category `json:"category"`
	DataType string           `json:"data_type,omitempty"`
	Message  string           `json:"message"`
}

// Log is a bounded, append-only failure log. All methods are safe for
// concurrent use and safe on a nil *Log, so holders may treat it as
// optional.
type Log struct {
	mu      sync.Mutex
	records []Record
	max     int
	logger  *slog.Logger
}

// New creates a Log keeping at most max records (oldest dropped first).
// A max of zero or less uses the default bound.
func New(max int, logger *slog.Logger) *Log {
	if max <= 0 {
		max = defaultMaxRecords
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{max: max, logger: logger}
}

// Append adds a record, stamping the time if unset.
func (l *Log) Append(r Record) {
	if l == nil {
		return
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}

	l.mu.Lock()
	l.records = append(l.records, r)
	if len(l.records) > l.max {
		l.records = l.records[len(l.records)-l.max:]
	}
	l.mu.Unlock()

	l.logger.Warn("provider failure",
		"provider", r.Provider,
		"category", string(r.Category),
		"data_type", r.DataType,
		"message", r.Message,
	)
}

// RecordError classifies err if needed and appends it.
func (l *Log) RecordError(provider, dataType string, err error) {
	if l == nil || err == nil {
		return
	}
	f := failure.As(err, provider)
	l.Append(Record{
		Provider: f.Provider,
		Category: f.Category,
		DataType: dataType,
		Message:  f.Message,
	})
}

// ByProvider returns all records raised by the named provider, oldest first.
func (l *Log) ByProvider(provider string) []Record {
	return l.filter(func(r Record) bool { return r.Provider == provider })
}

// ByCategory returns all records of the given category, oldest first.
func (l *Log) ByCategory(c failure.Category) []Record {
	return l.filter(func(r Record) bool { return r.Category == c })
}

// Recent returns up to n of the newest records, oldest first.
func (l *Log) Recent(n int) []Record {
	if l == nil || n <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if n > len(l.records) {
		n = len(l.records)
	}
	out := make([]Record, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Len returns the number of retained records.
func (l *Log) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Log) filter(keep func(Record) bool) []Record {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Record
	for _, r := range l.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
