package sheet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSQLite opens a SQLite store in a temp directory.
func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "sheets.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// storeFactories builds each Store implementation with a seeded Bikes table.
func storeFactories(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()

	mem := NewMemoryStore()
	mem.SetRows("Bikes", [][]any{{"name", "size"}, {"Trek", "M"}, {"Giant", "L"}})

	lite := newTestSQLite(t)
	require.NoError(t, lite.CreateTable(ctx, "Bikes", []any{"name", "size"}))
	require.NoError(t, lite.AppendRows(ctx, "Bikes", [][]any{{"Trek", "M"}, {"Giant", "L"}}))

	return map[string]Store{"memory": mem, "sqlite": lite}
}

func TestStore_Contract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, s := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			rows, err := s.GetAllRows(ctx, "Bikes")
			require.NoError(t, err)
			require.Len(t, rows, 3)
			assert.Equal(t, "Trek", rows[1][0])

			require.NoError(t, s.WriteRow(ctx, "Bikes", 2, []any{"Trek", "S"}))
			require.NoError(t, s.BatchUpdate(ctx, "Bikes", []RowUpdate{
				{Row: 2, Values: []any{"Trek", "XL"}},
				{Row: 3, Values: []any{"Giant", "XS"}},
			}))
			require.NoError(t, s.AppendRows(ctx, "Bikes", [][]any{{"Cannondale", "M"}}))

			rows, err = s.GetAllRows(ctx, "Bikes")
			require.NoError(t, err)
			require.Len(t, rows, 4)
			assert.Equal(t, "XL", rows[1][1])
			assert.Equal(t, "XS", rows[2][1])
			assert.Equal(t, "Cannondale", rows[3][0])

			err = s.WriteRow(ctx, "Bikes", 1, []any{"header"})
			assert.ErrorIs(t, err, ErrRowOutOfRange, "header is not writable")

			err = s.BatchUpdate(ctx, "Bikes", []RowUpdate{
				{Row: 2, Values: []any{"Changed", "M"}},
				{Row: 99, Values: []any{"Nope"}},
			})
			assert.ErrorIs(t, err, ErrRowOutOfRange)
			rows, err = s.GetAllRows(ctx, "Bikes")
			require.NoError(t, err)
			assert.Equal(t, "Trek", rows[1][0], "failed batch leaves every row untouched")

			_, err = s.GetAllRows(ctx, "Missing")
			assert.ErrorIs(t, err, ErrTableNotFound)

			require.NoError(t, s.MarkCell(ctx, CellRef("Bikes", 2, 4), Mark{Color: "red", Note: "flat tire"}))
			require.NoError(t, s.MarkCell(ctx, CellRef("Bikes", 2, 4), Mark{Clear: true}))
		})
	}
}

func TestSQLiteStore_PersistsTimesAsStrings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestSQLite(t)
	require.NoError(t, s.CreateTable(ctx, "Log", []any{"ts", "hours"}))

	ts := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, s.AppendRows(ctx, "Log", [][]any{{ts, 1.25}}))

	rows, err := s.GetAllRows(ctx, "Log")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	got, err := ToTime(rows[1][0])
	require.NoError(t, err)
	assert.True(t, ts.Equal(got))
	assert.Equal(t, 1.25, rows[1][1])

	tables, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Log"}, tables)
}

func TestSQLiteStore_MarkMerges(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	s := newTestSQLite(t)
	ref := RowRef("Responses", 4)
	require.NoError(t, s.MarkCell(ctx, ref, Mark{Color: "green", Note: "ok"}))
	require.NoError(t, s.MarkCell(ctx, ref, Mark{Note: "updated"}))

	m, ok, err := s.Mark(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Mark{Color: "green", Note: "updated"}, m)

	require.NoError(t, s.MarkCell(ctx, ref, Mark{Clear: true}))
	m, _, err = s.Mark(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "", m.Note)
	assert.Equal(t, "green", m.Color)
}

func TestMemoryStore_FaultInjectionAndCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := NewMemoryStore()
	m.SetRows("Users", [][]any{{"email"}, {"a@inst.edu"}})
	boom := errors.New("boom")

	m.FailBatch("Users", boom)
	assert.ErrorIs(t, m.BatchUpdate(ctx, "Users", []RowUpdate{{Row: 2, Values: []any{"b@inst.edu"}}}), boom)
	require.NoError(t, m.WriteRow(ctx, "Users", 2, []any{"b@inst.edu"}))

	m.FailBatch("Users", nil)
	require.NoError(t, m.BatchUpdate(ctx, "Users", []RowUpdate{{Row: 2, Values: []any{"c@inst.edu"}}}))

	calls := m.WriteCalls("Users")
	require.Len(t, calls, 3)
	assert.Equal(t, "batch", calls[0].Op)
	assert.Equal(t, "write", calls[1].Op)
	assert.Equal(t, []int{2}, calls[2].Rows)

	// Returned rows are copies.
	rows := m.Rows("Users")
	rows[1][0] = "mutated"
	assert.Equal(t, "c@inst.edu", m.Rows("Users")[1][0])

	require.NoError(t, m.MarkCell(ctx, "Users!R2", Mark{Note: "hello"}))
	mk, ok := m.Mark("Users!R2")
	require.True(t, ok)
	assert.Equal(t, "hello", mk.Note)
}

func TestMemoryStore_DelayHonorsContext(t *testing.T) {
	t.Parallel()

	m := NewMemoryStore()
	m.SetRows("Bikes", [][]any{{"name"}})
	m.SetDelay(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.GetAllRows(ctx, "Bikes")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
