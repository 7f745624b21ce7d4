package sheet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrEmptyFixture is returned for a fixture without tables or with a table
// missing its header row.
var ErrEmptyFixture = errors.New("fixture has no tables")

// Builder creates tables and fills them. SQLiteStore and MemoryStore
// implement it.
type Builder interface {
	CreateTable(ctx context.Context, table string, header []any) error
	AppendRows(ctx context.Context, table string, rows [][]any) error
}

// Fixture is a set of tables, each given header row first, as read from
// YAML:
//
//	tables:
//	  System:
//	    - [key, value]
//	    - [system_active, true]
type Fixture struct {
	Tables map[string][][]any `yaml:"tables"`
}

// ReadFixture decodes a YAML fixture.
func ReadFixture(r io.Reader) (*Fixture, error) {
	var f Fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	if len(f.Tables) == 0 {
		return nil, ErrEmptyFixture
	}
	for name, rows := range f.Tables {
		if len(rows) == 0 {
			return nil, fmt.Errorf("%w: %s has no header row", ErrEmptyFixture, name)
		}
	}
	return &f, nil
}

// Names lists the fixture's tables in alphabetical order.
func (f *Fixture) Names() []string {
	names := make([]string, 0, len(f.Tables))
	for name := range f.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply replaces every fixture table in dst. Tables not named by the
// fixture are left alone.
func (f *Fixture) Apply(ctx context.Context, dst Builder) error {
	for _, name := range f.Names() {
		rows := f.Tables[name]
		if err := dst.CreateTable(ctx, name, rows[0]); err != nil {
			return fmt.Errorf("create %s: %w", name, err)
		}
		if len(rows) == 1 {
			continue
		}
		if err := dst.AppendRows(ctx, name, rows[1:]); err != nil {
			return fmt.Errorf("fill %s: %w", name, err)
		}
	}
	return nil
}
