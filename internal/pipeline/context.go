// Package pipeline holds the unit of work threaded through one run and the
// validation and business-logic steps that operate on it.
package pipeline

import (
	"time"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/fuzzy"
	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/settings"
	"github.com/runger/bikeshare/internal/state"
)

// Write is a pending row write. Row 0 appends.
type Write struct {
	Table  string
	Row    int
	Values []any
}

// IsAppend reports whether w adds a new row.
func (w Write) IsAppend() bool { return w.Row == 0 }

// Context is the unit of work for one run. It is owned by a single run and
// never shared.
type Context struct {
	Event    domain.Event
	State    *state.State
	Settings *settings.Snapshot
	Matcher  fuzzy.Matcher

	// BikeIdx and UserIdx point into State once resolved; -1 until then.
	// UserIdx stays -1 for a user not yet in the Users table.
	BikeIdx int
	UserIdx int

	// Bike and User are the working copies the business steps update.
	Bike domain.Bike
	User domain.User

	// ElapsedHours is the usage of the bike being returned.
	ElapsedHours float64
	Overdue      bool

	Writes  []Write
	Intents []notify.Intent
	Errors  []error
}

// NewContext prepares a context for ev.
func NewContext(ev domain.Event, st *state.State, snap *settings.Snapshot) *Context {
	return &Context{
		Event:    ev,
		State:    st,
		Settings: snap,
		Matcher:  fuzzy.NewMatcher(snap.FuzzyThreshold()),
		BikeIdx:  -1,
		UserIdx:  -1,
	}
}

// At is the event time. Every timestamp a step writes comes from here.
func (c *Context) At() time.Time { return c.Event.Time() }

// Return returns the event as a ReturnEvent when it is one.
func (c *Context) Return() (domain.ReturnEvent, bool) {
	ev, ok := c.Event.(domain.ReturnEvent)
	return ev, ok
}

// Fail records err and returns it, so steps can write `return c.Fail(err)`.
func (c *Context) Fail(err error) error {
	c.Errors = append(c.Errors, err)
	return err
}

// Queue adds a write descriptor.
func (c *Context) Queue(w Write) { c.Writes = append(c.Writes, w) }

// Notify adds an intent.
func (c *Context) Notify(in notify.Intent) { c.Intents = append(c.Intents, in) }
