package telemetry

import (
	"context"
	"time"
)

// Recorder defines the journal interface
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	Close() error
}

// Repository defines the interface for journal storage
type Repository interface {
	Store(entry *Entry) error
	Close() error
}

// Entry is one journaled measurement: the command that ran, the length of
// the measurement window and the energy counter readings taken across it
type Entry struct {
	Timestamp time.Time
	Command   string
	Elapsed   time.Duration
	Counters  []CounterValue
}

// CounterValue is one counter reading inside an entry
type CounterValue struct {
	Name  string
	Unit  string
	Value uint64
}
