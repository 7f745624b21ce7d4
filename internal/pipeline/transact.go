package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/notify"
)

var (
	errNoBike    = errors.New("no bike resolved")
	errNotReturn = errors.New("event is not a return")
)

// RoundHours rounds h to two decimals.
func RoundHours(h float64) float64 { return math.Round(h*100) / 100 }

// ProcessCheckoutTransaction marks the bike checked out at the event time,
// records the submitter as its most recent user, and starts the timer.
// Applying it to a bike already checked out by the same submitter at the
// same time leaves the ring buffer alone.
var ProcessCheckoutTransaction = StepFunc("processCheckoutTransaction", func(c *Context) error {
	if c.BikeIdx < 0 {
		return c.Fail(Fail(notify.CodeMutation, "processCheckoutTransaction", errNoBike))
	}
	at := c.At()
	email := domain.NormalizeEmail(c.Event.Submitter())

	replay := domain.SameEmail(c.Bike.RecentUsers.Latest(), email) && c.Bike.LastCheckout.Equal(at)
	if !replay {
		c.Bike.RecentUsers.Push(email)
	}
	c.Bike.Availability = domain.CheckedOut
	c.Bike.LastCheckout = at
	c.Bike.UsageTimerHours = 0
	return nil
})

// ProcessReturnTransaction marks the bike available at the event time and
// folds the elapsed usage into its total.
var ProcessReturnTransaction = StepFunc("processReturnTransaction", func(c *Context) error {
	if c.BikeIdx < 0 {
		return c.Fail(Fail(notify.CodeMutation, "processReturnTransaction", errNoBike))
	}
	ev, ok := c.Return()
	if !ok {
		return c.Fail(Fail(notify.CodeMutation, "processReturnTransaction", errNotReturn))
	}
	at := c.At()

	elapsed := 0.0
	if !c.Bike.LastCheckout.IsZero() && at.After(c.Bike.LastCheckout) {
		elapsed = RoundHours(at.Sub(c.Bike.LastCheckout).Hours())
	}
	c.ElapsedHours = elapsed

	c.Bike.Availability = domain.Available
	c.Bike.LastReturn = at
	c.Bike.TotalUsageHours = RoundHours(c.Bike.TotalUsageHours + elapsed)
	c.Bike.UsageTimerHours = 0
	if ev.HasIssue {
		c.Bike.MaintenanceStatus = domain.HasIssue
	}
	return nil
})

// CalculateUsageHours folds the elapsed usage into the holder's record and
// counts the return, flagging it overdue past the maximum checkout hours.
var CalculateUsageHours = StepFunc("calculateUsageHours", func(c *Context) error {
	c.User.UsageHours = RoundHours(c.User.UsageHours + c.ElapsedHours)
	c.User.Returns++
	c.Overdue = c.ElapsedHours > c.Settings.MaxCheckoutHours()
	if c.Overdue {
		c.User.OverdueReturns++
	}
	return nil
})

// UpdateBikeStatus queues the updated bike row.
var UpdateBikeStatus = StepFunc("updateBikeStatus", func(c *Context) error {
	values, err := c.Bike.Values()
	if err != nil {
		return c.Fail(Fail(notify.CodeMutation, "updateBikeStatus", err))
	}
	c.Queue(Write{Table: c.State.Tables.Bikes, Row: c.Bike.Row, Values: values})
	return nil
})

// UpdateUserStatus applies the operation to the user record and queues it.
// Users not yet in the table are appended.
var UpdateUserStatus = StepFunc("updateUserStatus", func(c *Context) error {
	at := c.At()
	switch c.Event.Op() {
	case domain.OpCheckout:
		c.User.HasUnreturned = true
		c.User.LastCheckoutName = c.Bike.Name
		c.User.LastCheckout = at
		c.User.Checkouts++
		if c.User.FirstUsage.IsZero() {
			c.User.FirstUsage = at
		}
	case domain.OpReturn:
		// Returns was already counted; a user holding a second bike under
		// the unreturned override still has one out.
		c.User.HasUnreturned = c.User.Checkouts > c.User.Returns
		c.User.LastReturnName = c.Bike.Name
		c.User.LastReturn = at
		if !domain.SameEmail(c.Event.Submitter(), c.User.Email) {
			c.User.Mismatches++
		}
	}

	values, err := c.User.Values()
	if err != nil {
		return c.Fail(Fail(notify.CodeMutation, "updateUserStatus", err))
	}
	row := 0
	if c.UserIdx >= 0 {
		row = c.User.Row
	}
	c.Queue(Write{Table: c.State.Tables.Users, Row: row, Values: values})
	return nil
})

// AppendLogEntry queues the Log row that also records the event key.
var AppendLogEntry = StepFunc("appendLogEntry", func(c *Context) error {
	entry := domain.LogEntry{
		Timestamp:  c.At(),
		EventKey:   c.Event.Key(),
		Operation:  string(c.Event.Op()),
		Email:      domain.NormalizeEmail(c.Event.Submitter()),
		Bike:       c.Bike.Name,
		UsageHours: c.ElapsedHours,
	}
	if ev, ok := c.Return(); ok {
		entry.Notes = returnNotes(ev, c.User.Email)
	}
	values, err := entry.Values()
	if err != nil {
		return c.Fail(Fail(notify.CodeMutation, "appendLogEntry", err))
	}
	c.Queue(Write{Table: c.State.Tables.Log, Values: values})
	return nil
})

// QueueConfirmation adds the success intent for the run.
var QueueConfirmation = StepFunc("queueConfirmation", func(c *Context) error {
	fields := map[string]any{
		"email": domain.NormalizeEmail(c.Event.Submitter()),
		"bike":  c.Bike.Name,
	}
	switch c.Event.Op() {
	case domain.OpCheckout:
		fields["checkout_date"] = c.At()
		c.Notify(notify.New(notify.CodeCheckoutOK, fields))
	case domain.OpReturn:
		fields["usage_hours"] = c.ElapsedHours
		fields["overdue"] = c.Overdue
		ev, _ := c.Return()
		if ev.HasIssue {
			fields["issue_notes"] = ev.IssueNotes
		}
		code := notify.CodeReturnOK
		if !domain.SameEmail(ev.Email, c.User.Email) {
			code = notify.CodeReturnFriendOK
			fields["friend_email"] = c.User.Email
		}
		c.Notify(notify.New(code, fields))
	}
	return nil
})

func returnNotes(ev domain.ReturnEvent, holder string) string {
	var notes string
	if !domain.SameEmail(ev.Email, holder) {
		notes = fmt.Sprintf("returned on behalf of %s", holder)
	}
	if ev.HasIssue {
		issue := "issue reported"
		if ev.IssueNotes != "" {
			issue += ": " + ev.IssueNotes
		}
		if notes != "" {
			notes += "; "
		}
		notes += issue
	}
	return notes
}
