package pipeline

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/fuzzy"
	"github.com/runger/bikeshare/internal/notify"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

// ValidInstitutionalEmail reports whether email is well formed and belongs to
// one of domains or a subdomain of one.
func ValidInstitutionalEmail(email string, domains []string) bool {
	email = strings.TrimSpace(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	host := strings.ToLower(email[at+1:])
	for _, d := range domains {
		d = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d), "@"))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// CheckDuplicate rejects an event whose key is already in the Log table.
var CheckDuplicate = StepFunc("checkDuplicate", func(c *Context) error {
	if c.State.HasEvent(c.Event.Key()) {
		return c.Fail(Invalid(notify.CodeDuplicate, "event already processed", map[string]any{
			"email": c.Event.Submitter(),
			"bike":  c.Event.BikeInput(),
		}))
	}
	return nil
})

// ValidateEmailDomain rejects submitters outside the institutional domains.
var ValidateEmailDomain = StepFunc("validateEmailDomain", func(c *Context) error {
	if !ValidInstitutionalEmail(c.Event.Submitter(), c.Settings.EmailDomains()) {
		return c.Fail(Invalid(notify.CodeInvalidEmail, "email is not an institutional address", map[string]any{
			"email": c.Event.Submitter(),
		}))
	}
	return nil
})

// CheckSystemActive rejects every event while the system is switched off.
var CheckSystemActive = StepFunc("checkSystemActive", func(c *Context) error {
	if !c.Settings.SystemActive() {
		return c.Fail(Invalid(notify.CodeSystemInactive, "system is inactive", nil))
	}
	return nil
})

// FindBike resolves the submitted bike identifier to a record.
var FindBike = StepFunc("findBike", func(c *Context) error {
	candidates := make([]fuzzy.Candidate, len(c.State.Bikes))
	for i, b := range c.State.Bikes {
		candidates[i] = fuzzy.Candidate{Keys: b.Keys(), Index: i}
	}
	idx, ok := c.Matcher.Best(c.Event.BikeInput(), candidates)
	if !ok {
		return c.Fail(Invalid(notify.CodeBikeNotFound, "no bike matches the submitted name", map[string]any{
			"bike": c.Event.BikeInput(),
		}))
	}
	c.BikeIdx = idx
	c.Bike = c.State.Bikes[idx]
	return nil
})

// CheckBikeAvailable rejects checkout of a bike that is not available.
var CheckBikeAvailable = StepFunc("checkBikeAvailable", func(c *Context) error {
	if !c.Bike.IsAvailable() {
		return c.Fail(Invalid(notify.CodeBikeUnavailable, "bike is not available", map[string]any{
			"bike":         c.Bike.Name,
			"availability": c.Bike.Availability,
		}))
	}
	return nil
})

// CheckUserEligible resolves the submitter's record and rejects a user who
// still holds a bike unless the override is enabled.
var CheckUserEligible = StepFunc("checkUserEligible", func(c *Context) error {
	resolveUser(c, c.Event.Submitter())
	if c.User.HasUnreturned && !c.Settings.AllowUnreturnedCheckout() {
		return c.Fail(Invalid(notify.CodeUnreturnedBike, "user has an unreturned bike", map[string]any{
			"bike":          c.User.LastCheckoutName,
			"checkout_date": c.User.LastCheckout,
		}))
	}
	return nil
})

// CheckBikeCheckedOut rejects return of a bike that is not checked out.
var CheckBikeCheckedOut = StepFunc("checkBikeCheckedOut", func(c *Context) error {
	if !c.Bike.IsCheckedOut() {
		return c.Fail(Invalid(notify.CodeNotCheckedOut, "bike is not checked out", map[string]any{
			"bike":         c.Bike.Name,
			"availability": c.Bike.Availability,
		}))
	}
	return nil
})

// CheckReturnEligible accepts a return from the recorded holder, or on the
// holder's behalf when the friend email names the holder, and requires the
// submitted bike name to match its confirmation. The holder's record is
// resolved for the business steps.
var CheckReturnEligible = StepFunc("checkReturnEligible", func(c *Context) error {
	ev, ok := c.Return()
	if !ok {
		return c.Fail(Fail(notify.CodeMutation, "checkReturnEligible", errNotReturn))
	}
	holder := c.Bike.Holder()
	if holder == "" {
		// Only a manual edit of the Bikes row can settle this bike.
		return c.Fail(Invalid(notify.CodeNoHolder, "checked-out bike has no recorded holder", map[string]any{
			"bike": c.Bike.Name,
		}))
	}

	if !domain.SameEmail(ev.Email, holder) {
		if !ev.ForFriend {
			return c.Fail(Invalid(notify.CodeNotHolder, "submitter is not the recorded holder", map[string]any{
				"bike": c.Bike.Name,
			}))
		}
		if !ValidInstitutionalEmail(ev.FriendEmail, c.Settings.EmailDomains()) {
			return c.Fail(Invalid(notify.CodeInvalidFriend, "friend email is invalid", map[string]any{
				"friend_email": ev.FriendEmail,
			}))
		}
		if !domain.SameEmail(ev.FriendEmail, holder) {
			return c.Fail(Invalid(notify.CodeNotHolder, "friend is not the recorded holder", map[string]any{
				"bike":         c.Bike.Name,
				"friend_email": ev.FriendEmail,
			}))
		}
	}

	if !c.Matcher.Match(ev.Bike, ev.ConfirmBike, false) {
		return c.Fail(Invalid(notify.CodeNameMismatch, "bike name does not match confirmation", map[string]any{
			"bike":         ev.Bike,
			"confirm_bike": ev.ConfirmBike,
		}))
	}

	resolveUser(c, holder)
	return nil
})

// resolveUser points the context at the user with email, or at a fresh
// record to be appended when the user is not in the table yet.
func resolveUser(c *Context, email string) {
	c.UserIdx = c.State.UserIndex(email)
	if c.UserIdx >= 0 {
		c.User = c.State.Users[c.UserIdx]
		return
	}
	c.User = domain.User{Email: domain.NormalizeEmail(email)}
}
