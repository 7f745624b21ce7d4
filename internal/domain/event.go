package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownOperation is returned for an operation other than checkout or return.
var ErrUnknownOperation = errors.New("unknown operation")

// Operation is the kind of submitted form.
type Operation string

const (
	OpCheckout Operation = "checkout"
	OpReturn   Operation = "return"
)

// ParseOperation normalizes an operation name.
func ParseOperation(s string) (Operation, error) {
	switch Operation(strings.ToLower(strings.TrimSpace(s))) {
	case OpCheckout:
		return OpCheckout, nil
	case OpReturn:
		return OpReturn, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// Checkout form fields, by response position.
const (
	CheckoutFieldEmail = iota
	CheckoutFieldBike
	CheckoutFieldAgreeTerms
	CheckoutFieldConditionOK
)

// Return form fields, by response position.
const (
	ReturnFieldEmail = iota
	ReturnFieldBike
	ReturnFieldConfirmBike
	ReturnFieldForFriend
	ReturnFieldFriendEmail
	ReturnFieldHasIssue
	ReturnFieldIssueNotes
)

// RawEvent is a form submission as delivered by intake.
type RawEvent struct {
	Operation   string
	Responses   []string
	SourceRange string
	SubmittedAt time.Time
}

// Event is a normalized, immutable form submission.
type Event interface {
	Op() Operation
	Submitter() string
	BikeInput() string
	Time() time.Time
	Source() string
	Key() string
}

// CheckoutEvent is a normalized checkout submission.
type CheckoutEvent struct {
	Email       string
	Bike        string
	AgreeTerms  bool
	ConditionOK bool
	SubmittedAt time.Time
	SourceRange string
}

func (e CheckoutEvent) Op() Operation     { return OpCheckout }
func (e CheckoutEvent) Submitter() string { return e.Email }
func (e CheckoutEvent) BikeInput() string { return e.Bike }
func (e CheckoutEvent) Time() time.Time   { return e.SubmittedAt }
func (e CheckoutEvent) Source() string    { return e.SourceRange }
func (e CheckoutEvent) Key() string       { return EventKey(OpCheckout, e.Email, e.Bike, e.SubmittedAt) }

// ReturnEvent is a normalized return submission.
type ReturnEvent struct {
	Email       string
	Bike        string
	ConfirmBike string
	ForFriend   bool
	FriendEmail string
	HasIssue    bool
	IssueNotes  string
	SubmittedAt time.Time
	SourceRange string
}

func (e ReturnEvent) Op() Operation     { return OpReturn }
func (e ReturnEvent) Submitter() string { return e.Email }
func (e ReturnEvent) BikeInput() string { return e.Bike }
func (e ReturnEvent) Time() time.Time   { return e.SubmittedAt }
func (e ReturnEvent) Source() string    { return e.SourceRange }
func (e ReturnEvent) Key() string       { return EventKey(OpReturn, e.Email, e.Bike, e.SubmittedAt) }

// Parse normalizes raw into a CheckoutEvent or ReturnEvent. Missing trailing
// responses are zero values and extra ones are ignored. A zero SubmittedAt
// is replaced by now.
func Parse(raw RawEvent, now time.Time) (Event, error) {
	op, err := ParseOperation(raw.Operation)
	if err != nil {
		return nil, err
	}
	at := raw.SubmittedAt
	if at.IsZero() {
		at = now
	}
	at = at.UTC()

	field := func(i int) string {
		if i < len(raw.Responses) {
			return strings.TrimSpace(raw.Responses[i])
		}
		return ""
	}

	if op == OpCheckout {
		return CheckoutEvent{
			Email:       field(CheckoutFieldEmail),
			Bike:        field(CheckoutFieldBike),
			AgreeTerms:  IsYes(field(CheckoutFieldAgreeTerms)),
			ConditionOK: IsYes(field(CheckoutFieldConditionOK)),
			SubmittedAt: at,
			SourceRange: raw.SourceRange,
		}, nil
	}
	return ReturnEvent{
		Email:       field(ReturnFieldEmail),
		Bike:        field(ReturnFieldBike),
		ConfirmBike: field(ReturnFieldConfirmBike),
		ForFriend:   IsYes(field(ReturnFieldForFriend)),
		FriendEmail: field(ReturnFieldFriendEmail),
		HasIssue:    IsYes(field(ReturnFieldHasIssue)),
		IssueNotes:  field(ReturnFieldIssueNotes),
		SubmittedAt: at,
		SourceRange: raw.SourceRange,
	}, nil
}

// IsYes reports whether a form answer is affirmative.
func IsYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1", "checked":
		return true
	}
	return false
}

// EventKey identifies a submission for duplicate detection.
func EventKey(op Operation, email, bike string, at time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s",
		op,
		NormalizeEmail(email),
		strings.ToLower(strings.TrimSpace(bike)),
		at.UTC().Format(time.RFC3339Nano),
	)
	return hex.EncodeToString(h.Sum(nil))
}
