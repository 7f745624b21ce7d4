// Package domain holds the typed records read from and written to the
// Bikes, Users and Log tables, and the form events that drive them.
package domain

import (
	"strings"
	"time"

	"github.com/runger/bikeshare/internal/sheet"
)

// Availability values.
const (
	Available  = "available"
	CheckedOut = "checked out"
)

// Maintenance status values.
const (
	MaintenanceOK = "ok"
	HasIssue      = "has issue"
)

// Bikes table columns, 0-based.
const (
	BikeColName = iota
	BikeColHash
	BikeColSize
	BikeColMaintenance
	BikeColAvailability
	BikeColLastCheckout
	BikeColLastReturn
	BikeColUsageTimer
	BikeColTotalUsage
	BikeColRecentUser1
	BikeColRecentUser2
	BikeColRecentUser3
)

// BikeHeader is the Bikes header row.
var BikeHeader = []any{
	"name", "hash", "size", "maintenance_status", "availability",
	"last_checkout", "last_return", "usage_timer_hours", "total_usage_hours",
	"recent_user_1", "recent_user_2", "recent_user_3",
}

// Bike is one row of the Bikes table.
type Bike struct {
	Row int `col:"-"`

	Name              string    `col:"0"`
	Hash              string    `col:"1"`
	Size              string    `col:"2"`
	MaintenanceStatus string    `col:"3"`
	Availability      string    `col:"4"`
	LastCheckout      time.Time `col:"5"`
	LastReturn        time.Time `col:"6"`
	UsageTimerHours   float64   `col:"7"`
	TotalUsageHours   float64   `col:"8"`

	RecentUsers RecentUsers `col:"-"`
}

// DecodeBike converts a Bikes row. row is the 1-based table position.
func DecodeBike(values []any, row int) (Bike, error) {
	var b Bike
	if err := sheet.Decode(values, &b); err != nil {
		return Bike{}, err
	}
	b.Row = row
	slots := make([]string, RecentUsersSize)
	for i := range slots {
		if c := BikeColRecentUser1 + i; c < len(values) {
			slots[i] = strings.TrimSpace(sheet.ToString(values[c]))
		}
	}
	b.RecentUsers = RecentUsersFrom(slots...)
	return b, nil
}

// Values renders b as a full Bikes row.
func (b Bike) Values() ([]any, error) {
	row, err := sheet.Encode(b)
	if err != nil {
		return nil, err
	}
	for _, u := range b.RecentUsers.Slots() {
		row = append(row, u)
	}
	return row, nil
}

// IsAvailable reports whether the bike can be checked out.
func (b Bike) IsAvailable() bool { return normalizeStatus(b.Availability) == Available }

// IsCheckedOut reports whether the bike is currently held.
func (b Bike) IsCheckedOut() bool { return normalizeStatus(b.Availability) == CheckedOut }

// Holder returns the email of the current holder, or "".
func (b Bike) Holder() string {
	if !b.IsCheckedOut() {
		return ""
	}
	return b.RecentUsers.Latest()
}

// Keys returns the identifiers a form may use to name the bike.
func (b Bike) Keys() []string {
	keys := []string{b.Name}
	if b.Hash != "" {
		keys = append(keys, b.Hash)
	}
	return keys
}

func normalizeStatus(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
