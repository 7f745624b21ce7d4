// Package state loads a point-in-time view of the Bikes, Users and Log
// tables into typed records.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/settings"
	"github.com/runger/bikeshare/internal/sheet"
)

// ErrMalformedRow is returned when a row cannot be converted to its record.
var ErrMalformedRow = errors.New("malformed row")

// Tables names the tables a Loader reads.
type Tables struct {
	Bikes string
	Users string
	Log   string
}

// TablesFrom reads table names from a settings snapshot.
func TablesFrom(snap *settings.Snapshot) Tables {
	return Tables{Bikes: snap.BikesTable(), Users: snap.UsersTable(), Log: snap.LogTable()}
}

// State is the loaded view. Records are copies; changing them does not
// touch the store.
type State struct {
	Tables Tables
	Bikes  []domain.Bike
	Users  []domain.User

	// EventKeys holds every event key already present in the Log table.
	EventKeys map[string]struct{}

	// LogRows is the number of rows in the Log table, header included.
	LogRows int
}

// HasEvent reports whether key was already logged.
func (s *State) HasEvent(key string) bool {
	_, ok := s.EventKeys[key]
	return ok
}

// UserIndex returns the position in Users of the user with email, or -1.
func (s *State) UserIndex(email string) int {
	for i, u := range s.Users {
		if domain.SameEmail(u.Email, email) {
			return i
		}
	}
	return -1
}

// BikeByRow returns the position in Bikes of the bike at table row, or -1.
func (s *State) BikeByRow(row int) int {
	for i, b := range s.Bikes {
		if b.Row == row {
			return i
		}
	}
	return -1
}

// Loader reads State from a store.
type Loader struct {
	store  sheet.Reader
	logger *slog.Logger
}

// NewLoader creates a Loader. logger may be nil.
func NewLoader(store sheet.Reader, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{store: store, logger: logger}
}

// Load reads the Bikes and Users tables in full and the event keys of the
// Log table. The header row and rows with an empty primary key are skipped.
// A missing Log table is treated as empty.
func (l *Loader) Load(ctx context.Context, tables Tables) (*State, error) {
	st := &State{Tables: tables, EventKeys: make(map[string]struct{})}

	bikeRows, err := l.store.GetAllRows(ctx, tables.Bikes)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", tables.Bikes, err)
	}
	for i, row := range bikeRows {
		pos := i + 1
		if pos <= sheet.HeaderRow || blankKey(row, domain.BikeColName) {
			continue
		}
		b, err := domain.DecodeBike(row, pos)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrMalformedRow, tables.Bikes, pos, err)
		}
		st.Bikes = append(st.Bikes, b)
	}

	userRows, err := l.store.GetAllRows(ctx, tables.Users)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", tables.Users, err)
	}
	for i, row := range userRows {
		pos := i + 1
		if pos <= sheet.HeaderRow || blankKey(row, domain.UserColEmail) {
			continue
		}
		u, err := domain.DecodeUser(row, pos)
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrMalformedRow, tables.Users, pos, err)
		}
		st.Users = append(st.Users, u)
	}

	logRows, err := l.store.GetAllRows(ctx, tables.Log)
	switch {
	case errors.Is(err, sheet.ErrTableNotFound):
		l.logger.Warn("log table missing; duplicate detection disabled", "table", tables.Log)
	case err != nil:
		return nil, fmt.Errorf("load %s: %w", tables.Log, err)
	default:
		st.LogRows = len(logRows)
		for i, row := range logRows {
			if i+1 <= sheet.HeaderRow || blankKey(row, domain.LogColEventKey) {
				continue
			}
			st.EventKeys[strings.TrimSpace(sheet.ToString(row[domain.LogColEventKey]))] = struct{}{}
		}
	}

	l.logger.Debug("state loaded",
		"bikes", len(st.Bikes),
		"users", len(st.Users),
		"events", len(st.EventKeys),
	)
	return st, nil
}

func blankKey(row []any, col int) bool {
	return col >= len(row) || strings.TrimSpace(sheet.ToString(row[col])) == ""
}
