package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/bikeshare/internal/domain"
	"github.com/runger/bikeshare/internal/notify"
	"github.com/runger/bikeshare/internal/settings"
	"github.com/runger/bikeshare/internal/state"
)

var (
	checkedOutAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now          = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC) // 26.5h later
)

func fixtureState() *state.State {
	return &state.State{
		Tables: state.Tables{Bikes: "Bikes", Users: "Users", Log: "Log"},
		Bikes: []domain.Bike{
			{Row: 2, Name: "Trek100", Hash: "BK-42", MaintenanceStatus: "ok", Availability: domain.Available},
			{
				Row: 3, Name: "trek1", Hash: "BK-01", MaintenanceStatus: "ok", Availability: domain.CheckedOut,
				LastCheckout: checkedOutAt, UsageTimerHours: 2, TotalUsageHours: 10,
				RecentUsers: domain.RecentUsersFrom("a@inst.edu", "b@inst.edu"),
			},
		},
		Users: []domain.User{
			{Row: 2, Email: "a@inst.edu", HasUnreturned: true, LastCheckoutName: "trek1", LastCheckout: checkedOutAt, Checkouts: 4, Returns: 3, UsageHours: 5},
			{Row: 3, Email: "b@inst.edu", Checkouts: 1, Returns: 1},
		},
		EventKeys: map[string]struct{}{},
	}
}

func fixtureSettings(extra map[string]map[string]any) *settings.Snapshot {
	values := map[string]map[string]any{
		settings.SectionSystem: {"system_active": true},
		settings.SectionLists:  {"email_domains": []string{"inst.edu"}},
	}
	for sec, kv := range extra {
		if values[sec] == nil {
			values[sec] = map[string]any{}
		}
		for k, v := range kv {
			values[sec][k] = v
		}
	}
	return settings.NewSnapshot(values)
}

func checkout(email, bike string) domain.CheckoutEvent {
	return domain.CheckoutEvent{Email: email, Bike: bike, AgreeTerms: true, ConditionOK: true, SubmittedAt: now}
}

func giveBack(email, bike, confirm string) domain.ReturnEvent {
	return domain.ReturnEvent{Email: email, Bike: bike, ConfirmBike: confirm, SubmittedAt: now}
}

// runAll runs validators then the transaction the way the orchestrator does.
func runAll(c *Context) (string, error) {
	validators, tx := Chains(c.Event.Op())
	if step, err := validators.Run(c); err != nil {
		return step, err
	}
	return tx.Run(c)
}

func TestChain_StopsAtFirstError(t *testing.T) {
	t.Parallel()

	var ran []string
	step := func(name string, err error) Step {
		return StepFunc(name, func(*Context) error {
			ran = append(ran, name)
			return err
		})
	}
	boom := errors.New("boom")
	ch := Chain{step("a", nil), step("b", boom), step("c", nil)}

	failed, err := ch.Run(&Context{})
	assert.Equal(t, "b", failed)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, []string{"a", "b", "c"}, ch.Names())
}

func TestChains_Order(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{
		"checkDuplicate", "validateEmailDomain", "checkSystemActive",
		"findBike", "checkBikeAvailable", "checkUserEligible",
	}, CheckoutValidators().Names())
	assert.Equal(t, []string{
		"checkDuplicate", "validateEmailDomain", "checkSystemActive",
		"findBike", "checkBikeCheckedOut", "checkReturnEligible",
	}, ReturnValidators().Names())
	assert.Equal(t, []string{
		"processReturnTransaction", "calculateUsageHours", "updateBikeStatus",
		"updateUserStatus", "appendLogEntry", "queueConfirmation",
	}, ReturnTransaction().Names())
}

func TestValidation_Failures(t *testing.T) {
	t.Parallel()

	dup := checkout("new@inst.edu", "BK-42")

	tests := []struct {
		name   string
		event  domain.Event
		extra  map[string]map[string]any
		keys   []string
		code   string
		fields map[string]any
	}{
		{name: "duplicate", event: dup, keys: []string{dup.Key()}, code: notify.CodeDuplicate},
		{name: "foreign domain", event: checkout("x@gmail.com", "BK-42"), code: notify.CodeInvalidEmail},
		{name: "malformed email", event: checkout("not-an-email", "BK-42"), code: notify.CodeInvalidEmail},
		{
			name:  "system inactive",
			event: checkout("new@inst.edu", "BK-42"),
			extra: map[string]map[string]any{settings.SectionSystem: {"system_active": false}},
			code:  notify.CodeSystemInactive,
		},
		{name: "bike not found", event: checkout("new@inst.edu", "Cannondale"), code: notify.CodeBikeNotFound},
		{name: "bike unavailable", event: checkout("new@inst.edu", "trek1"), code: notify.CodeBikeUnavailable},
		{
			name:   "user holds a bike",
			event:  checkout("a@inst.edu", "BK-42"),
			code:   notify.CodeUnreturnedBike,
			fields: map[string]any{"bike": "trek1", "checkout_date": checkedOutAt},
		},
		{name: "return of available bike", event: giveBack("a@inst.edu", "Trek100", "Trek100"), code: notify.CodeNotCheckedOut},
		{name: "not the holder", event: giveBack("b@inst.edu", "trek1", "trek1"), code: notify.CodeNotHolder},
		{
			name: "friend email outside domain",
			event: func() domain.Event {
				ev := giveBack("b@inst.edu", "trek1", "trek1")
				ev.ForFriend, ev.FriendEmail = true, "a@gmail.com"
				return ev
			}(),
			code: notify.CodeInvalidFriend,
		},
		{
			name: "friend is not the holder",
			event: func() domain.Event {
				ev := giveBack("b@inst.edu", "trek1", "trek1")
				ev.ForFriend, ev.FriendEmail = true, "c@inst.edu"
				return ev
			}(),
			code: notify.CodeNotHolder,
		},
		{
			name:   "confirmation mismatch",
			event:  giveBack("a@inst.edu", "trek1", "Giant"),
			code:   notify.CodeNameMismatch,
			fields: map[string]any{"bike": "trek1", "confirm_bike": "Giant"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := fixtureState()
			for _, k := range tt.keys {
				st.EventKeys[k] = struct{}{}
			}
			c := NewContext(tt.event, st, fixtureSettings(tt.extra))

			_, err := runAll(c)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.code, ve.Code)
			assert.Equal(t, tt.code, ErrorCode(err))
			for k, v := range tt.fields {
				assert.Equal(t, v, ve.Fields[k], k)
			}

			// Short-circuit: nothing was queued and no business step ran.
			assert.Empty(t, c.Writes)
			assert.Empty(t, c.Intents)
			assert.Len(t, c.Errors, 1)
			assert.Equal(t, fixtureState().Bikes, st.Bikes, "state must not be mutated")
		})
	}
}

func TestCheckout_UnreturnedOverride(t *testing.T) {
	t.Parallel()

	snap := fixtureSettings(map[string]map[string]any{
		settings.SectionSystem: {"can_checkout_with_unreturned_bike": true},
	})
	c := NewContext(checkout("a@inst.edu", "BK-42"), fixtureState(), snap)
	_, err := runAll(c)
	require.NoError(t, err)
	assert.Equal(t, 5, c.User.Checkouts)
}

func TestReturn_FirstOfTwoBikesUnderOverride(t *testing.T) {
	t.Parallel()

	snap := fixtureSettings(map[string]map[string]any{
		settings.SectionSystem: {"can_checkout_with_unreturned_bike": true},
	})
	st := fixtureState()

	c := NewContext(checkout("a@inst.edu", "BK-42"), st, snap)
	_, err := runAll(c)
	require.NoError(t, err)
	st.Bikes[c.BikeIdx] = c.Bike
	st.Users[c.UserIdx] = c.User

	c = NewContext(giveBack("a@inst.edu", "trek1", "trek1"), st, snap)
	_, err = runAll(c)
	require.NoError(t, err)
	assert.Equal(t, 5, c.User.Checkouts)
	assert.Equal(t, 4, c.User.Returns)
	assert.True(t, c.User.HasUnreturned, "Trek100 is still out")
	st.Bikes[c.BikeIdx] = c.Bike
	st.Users[c.UserIdx] = c.User

	c = NewContext(giveBack("a@inst.edu", "Trek100", "Trek100"), st, snap)
	_, err = runAll(c)
	require.NoError(t, err)
	assert.Equal(t, 5, c.User.Returns)
	assert.False(t, c.User.HasUnreturned)
}

func TestCheckout_Success(t *testing.T) {
	t.Parallel()

	st := fixtureState()
	ev := checkout("New@inst.edu", "bk-42")
	c := NewContext(ev, st, fixtureSettings(nil))

	_, err := runAll(c)
	require.NoError(t, err)

	require.Len(t, c.Writes, 3)
	bikeW, userW, logW := c.Writes[0], c.Writes[1], c.Writes[2]

	assert.Equal(t, "Bikes", bikeW.Table)
	assert.Equal(t, 2, bikeW.Row)
	assert.Equal(t, domain.CheckedOut, bikeW.Values[domain.BikeColAvailability])
	assert.Equal(t, "new@inst.edu", bikeW.Values[domain.BikeColRecentUser1])
	assert.Equal(t, 0.0, bikeW.Values[domain.BikeColUsageTimer])

	assert.Equal(t, "Users", userW.Table)
	assert.True(t, userW.IsAppend(), "unknown users are appended")
	assert.Equal(t, "new@inst.edu", userW.Values[domain.UserColEmail])
	assert.Equal(t, true, userW.Values[domain.UserColHasUnreturned])
	assert.Equal(t, 1.0, userW.Values[domain.UserColCheckouts])
	assert.Equal(t, "Trek100", userW.Values[domain.UserColLastCheckoutName])

	assert.Equal(t, "Log", logW.Table)
	assert.True(t, logW.IsAppend())
	assert.Equal(t, ev.Key(), logW.Values[domain.LogColEventKey])

	require.Len(t, c.Intents, 1)
	assert.Equal(t, notify.CodeCheckoutOK, c.Intents[0].Code)
	assert.Equal(t, notify.ChannelUser, c.Intents[0].Channel)
	assert.Equal(t, "Trek100", c.Intents[0].Fields["bike"])

	// Records are updated as copies.
	assert.Equal(t, domain.Available, st.Bikes[0].Availability)
}

func TestProcessCheckoutTransaction_ReplayDoesNotRotate(t *testing.T) {
	t.Parallel()

	st := fixtureState()
	c := NewContext(checkout("new@inst.edu", "BK-42"), st, fixtureSettings(nil))
	c.BikeIdx = 0
	c.Bike = st.Bikes[0]

	require.NoError(t, ProcessCheckoutTransaction.Apply(c))
	once := c.Bike.RecentUsers.Slice()

	require.NoError(t, ProcessCheckoutTransaction.Apply(c))
	assert.Equal(t, once, c.Bike.RecentUsers.Slice())
	assert.Equal(t, []string{"new@inst.edu"}, once)
}

func TestReturn_Success(t *testing.T) {
	t.Parallel()

	c := NewContext(giveBack("a@inst.edu", "trek1", "TREK1 "), fixtureState(), fixtureSettings(nil))
	_, err := runAll(c)
	require.NoError(t, err)

	assert.InDelta(t, 26.5, c.ElapsedHours, 1e-9)
	assert.False(t, c.Overdue)

	require.Len(t, c.Writes, 3)
	bikeW, userW := c.Writes[0], c.Writes[1]
	assert.Equal(t, 3, bikeW.Row)
	assert.Equal(t, domain.Available, bikeW.Values[domain.BikeColAvailability])
	assert.InDelta(t, 36.5, bikeW.Values[domain.BikeColTotalUsage], 1e-9)
	assert.Equal(t, 0.0, bikeW.Values[domain.BikeColUsageTimer])

	assert.Equal(t, 2, userW.Row)
	assert.Equal(t, false, userW.Values[domain.UserColHasUnreturned])
	assert.Equal(t, 4.0, userW.Values[domain.UserColReturns])
	assert.InDelta(t, 31.5, userW.Values[domain.UserColUsageHours], 1e-9)
	assert.Equal(t, 0.0, userW.Values[domain.UserColMismatches])

	require.Len(t, c.Intents, 1)
	assert.Equal(t, notify.CodeReturnOK, c.Intents[0].Code)
	assert.Equal(t, 26.5, c.Intents[0].Fields["usage_hours"])
	assert.Equal(t, false, c.Intents[0].Fields["overdue"])
}

func TestReturn_OverdueWithIssueOnBehalfOfFriend(t *testing.T) {
	t.Parallel()

	ev := giveBack("b@inst.edu", "trek1", "trek1")
	ev.ForFriend, ev.FriendEmail = true, "A@inst.edu"
	ev.HasIssue, ev.IssueNotes = true, "flat tire"
	snap := fixtureSettings(map[string]map[string]any{
		settings.SectionThresholds: {"max_checkout_hours": 24.0},
	})

	c := NewContext(ev, fixtureState(), snap)
	_, err := runAll(c)
	require.NoError(t, err)

	assert.True(t, c.Overdue)
	bikeW, userW, logW := c.Writes[0], c.Writes[1], c.Writes[2]
	assert.Equal(t, domain.HasIssue, bikeW.Values[domain.BikeColMaintenance])
	assert.Equal(t, "a@inst.edu", userW.Values[domain.UserColEmail], "the holder's record is updated")
	assert.Equal(t, 1.0, userW.Values[domain.UserColMismatches])
	assert.Equal(t, 1.0, userW.Values[domain.UserColOverdueReturns])
	assert.Equal(t, "returned on behalf of a@inst.edu; issue reported: flat tire", logW.Values[domain.LogColNotes])

	require.Len(t, c.Intents, 1)
	assert.Equal(t, notify.CodeReturnFriendOK, c.Intents[0].Code)
	assert.Equal(t, true, c.Intents[0].Fields["overdue"])
	assert.Equal(t, "flat tire", c.Intents[0].Fields["issue_notes"])
}

func TestReturn_NameMismatchAtStrictThreshold(t *testing.T) {
	t.Parallel()

	snap := fixtureSettings(map[string]map[string]any{
		settings.SectionThresholds: {"fuzzy_threshold": 0.2},
	})
	c := NewContext(giveBack("a@inst.edu", "trek1", "trek2"), fixtureState(), snap)

	_, err := runAll(c)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, notify.CodeNameMismatch, ve.Code)
	assert.Equal(t, "trek1", ve.Fields["bike"])
	assert.Equal(t, "trek2", ve.Fields["confirm_bike"])
	assert.Empty(t, c.Writes)
}

func TestReturn_CheckedOutWithoutHolder(t *testing.T) {
	t.Parallel()

	st := fixtureState()
	st.Bikes[1].RecentUsers = domain.RecentUsers{}
	c := NewContext(giveBack("a@inst.edu", "trek1", "trek1"), st, fixtureSettings(nil))

	step, err := runAll(c)
	assert.Equal(t, "checkReturnEligible", step)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, notify.CodeNoHolder, ve.Code)
	assert.Equal(t, "trek1", ve.Fields["bike"])
	assert.Equal(t, notify.ChannelAdmin, notify.ChannelOf(ve.Code))
	assert.Empty(t, c.Writes)
}

func TestBusinessSteps_RequireResolvedBike(t *testing.T) {
	t.Parallel()

	c := NewContext(checkout("a@inst.edu", "BK-42"), fixtureState(), fixtureSettings(nil))
	err := ProcessCheckoutTransaction.Apply(c)
	var se *SystemError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, notify.CodeMutation, se.Code)
	assert.ErrorIs(t, err, errNoBike)
}

func TestValidInstitutionalEmail(t *testing.T) {
	t.Parallel()

	domains := []string{"inst.edu", "@partner.org"}
	tests := map[string]bool{
		"a@inst.edu":    true,
		" A@INST.EDU ":  true,
		"a@cs.inst.edu": true,
		"a@partner.org": true,
		"a@notinst.edu": false,
		"a@gmail.com":   false,
		"inst.edu":      false,
		"":              false,
	}
	for email, want := range tests {
		assert.Equal(t, want, ValidInstitutionalEmail(email, domains), email)
	}
}
