package domain

import (
	"time"

	"github.com/runger/bikeshare/internal/sheet"
)

// Log table columns, 0-based.
const (
	LogColTimestamp = iota
	LogColEventKey
	LogColOperation
	LogColEmail
	LogColBike
	LogColUsageHours
	LogColNotes
)

// LogHeader is the Log header row.
var LogHeader = []any{"timestamp", "event_key", "operation", "email", "bike", "usage_hours", "notes"}

// LogEntry is one appended row of the Log table.
type LogEntry struct {
	Timestamp  time.Time `col:"0"`
	EventKey   string    `col:"1"`
	Operation  string    `col:"2"`
	Email      string    `col:"3"`
	Bike       string    `col:"4"`
	UsageHours float64   `col:"5"`
	Notes      string    `col:"6"`
}

// Values renders e as a Log row.
func (e LogEntry) Values() ([]any, error) { return sheet.Encode(e) }
