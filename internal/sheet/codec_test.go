package sheet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	Name    string    `col:"0"`
	Count   int       `col:"1"`
	Hours   float64   `col:"2"`
	Active  bool      `col:"3"`
	Since   time.Time `col:"5"`
	Row     int       `col:"-"`
	Ignored string
}

func TestDecode_CoercesAndDefaults(t *testing.T) {
	t.Parallel()

	var rec testRecord
	err := Decode([]any{"  Trek  ", "3", 1.5, "yes", "ignored", "2026-03-01T10:00:00Z"}, &rec)
	require.NoError(t, err)

	assert.Equal(t, "  Trek  ", rec.Name)
	assert.Equal(t, 3, rec.Count)
	assert.InDelta(t, 1.5, rec.Hours, 1e-9)
	assert.True(t, rec.Active)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), rec.Since.UTC())
	assert.Zero(t, rec.Row)
}

func TestDecode_NullDefaults(t *testing.T) {
	t.Parallel()

	var rec testRecord
	require.NoError(t, Decode([]any{"only-name"}, &rec))

	assert.Equal(t, "only-name", rec.Name)
	assert.Zero(t, rec.Count)
	assert.Zero(t, rec.Hours)
	assert.False(t, rec.Active)
	assert.True(t, rec.Since.IsZero())
}

func TestDecode_Errors(t *testing.T) {
	t.Parallel()

	var rec testRecord
	err := Decode([]any{"x", "three"}, &rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCoerce)

	err = Decode([]any{"x"}, rec)
	assert.Error(t, err, "non-pointer target")
}

func TestEncode_RoundTripsThroughDecode(t *testing.T) {
	t.Parallel()

	since := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	row, err := Encode(testRecord{Name: "Trek", Count: 2, Hours: 0.25, Active: true, Since: since, Row: 9})
	require.NoError(t, err)
	require.Len(t, row, 6)
	assert.Equal(t, "", row[4], "gaps are blank cells")
	assert.Equal(t, float64(2), row[1])

	var back testRecord
	require.NoError(t, Decode(row, &back))
	assert.Equal(t, since, back.Since.UTC())
	assert.Equal(t, 2, back.Count)
	assert.Zero(t, back.Row, "untagged row position is not encoded")
}

func TestToTime_Layouts(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC)
	for _, in := range []any{"2026-04-05", "4/5/2026", "2026-04-05 00:00:00", float64(want.UnixMilli())} {
		got, err := ToTime(in)
		require.NoError(t, err, "input %v", in)
		assert.True(t, want.Equal(got), "input %v: got %v", in, got)
	}

	zero, err := ToTime("  ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = ToTime("not a date")
	assert.ErrorIs(t, err, ErrCoerce)
}

func TestToBool(t *testing.T) {
	t.Parallel()

	for _, in := range []any{true, "TRUE", "Yes", "checked", 1.0} {
		b, err := ToBool(in)
		require.NoError(t, err)
		assert.True(t, b, "input %v", in)
	}
	for _, in := range []any{nil, false, "", "no", 0.0} {
		b, err := ToBool(in)
		require.NoError(t, err)
		assert.False(t, b, "input %v", in)
	}
	_, err := ToBool("maybe")
	assert.ErrorIs(t, err, ErrCoerce)
}
