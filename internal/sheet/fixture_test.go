package sheet

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFixture = `
tables:
  System:
    - [key, value]
    - [system_active, true]
  Bikes:
    - [name, hash, size]
    - [Trek100, BK-42, M]
    - [trek1, BK-01, L]
  Log:
    - [timestamp, event_key]
`

func TestReadFixture(t *testing.T) {
	t.Parallel()

	f, err := ReadFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)
	assert.Equal(t, []string{"Bikes", "Log", "System"}, f.Names())
	assert.Equal(t, []any{"Trek100", "BK-42", "M"}, f.Tables["Bikes"][1])
	assert.Equal(t, []any{"system_active", true}, f.Tables["System"][1])
}

func TestReadFixture_Errors(t *testing.T) {
	t.Parallel()

	_, err := ReadFixture(strings.NewReader("tables: {}\n"))
	assert.ErrorIs(t, err, ErrEmptyFixture)

	_, err = ReadFixture(strings.NewReader("tables:\n  Bikes: []\n"))
	assert.ErrorIs(t, err, ErrEmptyFixture)

	_, err = ReadFixture(strings.NewReader("tables: [nope"))
	assert.ErrorContains(t, err, "failed to parse fixture")
}

func TestFixture_ApplyMemory(t *testing.T) {
	t.Parallel()

	f, err := ReadFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	m := NewMemoryStore()
	m.SetRows("Bikes", [][]any{{"stale"}, {"gone"}})
	m.SetRows("Users", [][]any{{"email"}})
	require.NoError(t, f.Apply(context.Background(), m))

	assert.Len(t, m.Rows("Bikes"), 3)
	assert.Equal(t, [][]any{{"timestamp", "event_key"}}, m.Rows("Log"))
	assert.Equal(t, [][]any{{"email"}}, m.Rows("Users"), "untouched tables survive")
}

func TestFixture_ApplySQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	f, err := ReadFixture(strings.NewReader(sampleFixture))
	require.NoError(t, err)

	s, err := OpenSQLite(filepath.Join(t.TempDir(), "fixture.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, f.Apply(ctx, s))
	names, err := s.Tables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Bikes", "Log", "System"}, names)

	rows, err := s.GetAllRows(ctx, "System")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []any{"system_active", true}, rows[1])
}
