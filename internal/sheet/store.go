// Package sheet is the boundary to the row-oriented datastore.
//
// Tables are addressed by name and rows by 1-based position; row 1 holds the
// header. The core never queries: it reads whole tables and writes rows by
// index or appends them at the end.
package sheet

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTableNotFound is returned when a table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrRowOutOfRange is returned when a write targets a row past the end
	// of the table or the header row.
	ErrRowOutOfRange = errors.New("row out of range")
)

// HeaderRow is the position of the header in every table.
const HeaderRow = 1

// Reader is the read side shared by the store and config collaborators.
type Reader interface {
	// GetAllRows returns every row of table, header included.
	GetAllRows(ctx context.Context, table string) ([][]any, error)
}

// Store is the full row store consumed by the pipeline.
type Store interface {
	Reader

	// WriteRow overwrites a single row.
	WriteRow(ctx context.Context, table string, row int, values []any) error

	// BatchUpdate overwrites several rows of one table in one call.
	// Either every update lands or none do.
	BatchUpdate(ctx context.Context, table string, updates []RowUpdate) error

	// AppendRows adds rows after the current last row.
	AppendRows(ctx context.Context, table string, rows [][]any) error

	// MarkCell annotates a cell, addressed by a reference from CellRef.
	MarkCell(ctx context.Context, ref string, mark Mark) error
}

// RowUpdate is one row of a BatchUpdate.
type RowUpdate struct {
	Row    int
	Values []any
}

// Mark is a visual annotation on a cell. Empty fields leave the existing
// value untouched; set Clear to remove the note.
type Mark struct {
	Color string
	Note  string
	Clear bool
}

// CellRef builds a reference string addressing one cell. Columns are 1-based.
func CellRef(table string, row, col int) string {
	return fmt.Sprintf("%s!R%dC%d", table, row, col)
}

// RowRef builds a reference string addressing a whole row.
func RowRef(table string, row int) string {
	return fmt.Sprintf("%s!R%d", table, row)
}
