package domain

import (
	"strings"
	"time"

	"github.com/runger/bikeshare/internal/sheet"
)

// Users table columns, 0-based.
const (
	UserColEmail = iota
	UserColHasUnreturned
	UserColLastCheckoutName
	UserColLastCheckout
	UserColLastReturnName
	UserColLastReturn
	UserColCheckouts
	UserColReturns
	UserColMismatches
	UserColUsageHours
	UserColOverdueReturns
	UserColFirstUsage
)

// UserHeader is the Users header row.
var UserHeader = []any{
	"email", "has_unreturned", "last_checkout_name", "last_checkout",
	"last_return_name", "last_return", "checkouts", "returns", "mismatches",
	"usage_hours", "overdue_returns", "first_usage",
}

// User is one row of the Users table. Row 0 means the user is not yet in the
// table and must be appended.
type User struct {
	Row int `col:"-"`

	Email            string    `col:"0"`
	HasUnreturned    bool      `col:"1"`
	LastCheckoutName string    `col:"2"`
	LastCheckout     time.Time `col:"3"`
	LastReturnName   string    `col:"4"`
	LastReturn       time.Time `col:"5"`
	Checkouts        int       `col:"6"`
	Returns          int       `col:"7"`
	Mismatches       int       `col:"8"`
	UsageHours       float64   `col:"9"`
	OverdueReturns   int       `col:"10"`
	FirstUsage       time.Time `col:"11"`
}

// DecodeUser converts a Users row. row is the 1-based table position.
func DecodeUser(values []any, row int) (User, error) {
	var u User
	if err := sheet.Decode(values, &u); err != nil {
		return User{}, err
	}
	u.Row = row
	u.Email = strings.TrimSpace(u.Email)
	return u, nil
}

// Values renders u as a full Users row.
func (u User) Values() ([]any, error) { return sheet.Encode(u) }

// NormalizeEmail lower-cases and trims an address for comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SameEmail reports whether a and b name the same mailbox.
func SameEmail(a, b string) bool {
	return a != "" && NormalizeEmail(a) == NormalizeEmail(b)
}
