package sheet

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Call records one store operation made against a MemoryStore.
type Call struct {
	Op    string // "get", "write", "batch", "append", "mark"
	Table string
	Rows  []int
}

// MemoryStore is an in-process Store. It copies values in and out so callers
// never share slices with it, records every call, and can inject failures.
// It is safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	tables map[string][][]any
	marks  map[string]Mark
	calls  []Call

	failBatch  map[string]error
	failWrite  map[string]error
	failAppend map[string]error
	failGet    map[string]error
	delay      time.Duration
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tables:     make(map[string][][]any),
		marks:      make(map[string]Mark),
		failBatch:  make(map[string]error),
		failWrite:  make(map[string]error),
		failAppend: make(map[string]error),
		failGet:    make(map[string]error),
	}
}

// SetRows replaces table with rows, header first.
func (m *MemoryStore) SetRows(table string, rows [][]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[table] = copyRows(rows)
}

// CreateTable replaces table with a header-only table.
func (m *MemoryStore) CreateTable(_ context.Context, table string, header []any) error {
	m.SetRows(table, [][]any{header})
	return nil
}

// Rows returns a copy of table.
func (m *MemoryStore) Rows(table string) [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRows(m.tables[table])
}

// Mark returns the annotation recorded for ref.
func (m *MemoryStore) Mark(ref string) (Mark, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mk, ok := m.marks[ref]
	return mk, ok
}

// Calls returns the operations recorded so far.
func (m *MemoryStore) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// WriteCalls returns recorded write, batch and append calls, optionally
// filtered to one table.
func (m *MemoryStore) WriteCalls(table string) []Call {
	var out []Call
	for _, c := range m.Calls() {
		if c.Op == "get" || c.Op == "mark" {
			continue
		}
		if table != "" && c.Table != table {
			continue
		}
		out = append(out, c)
	}
	return out
}

// ResetCalls clears the call log.
func (m *MemoryStore) ResetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// FailBatch makes every BatchUpdate on table return err. A nil err clears it.
func (m *MemoryStore) FailBatch(table string, err error) { m.setFault(m.failBatch, table, err) }

// FailWrite makes every WriteRow on table return err.
func (m *MemoryStore) FailWrite(table string, err error) { m.setFault(m.failWrite, table, err) }

// FailAppend makes every AppendRows on table return err.
func (m *MemoryStore) FailAppend(table string, err error) { m.setFault(m.failAppend, table, err) }

// FailGet makes every GetAllRows on table return err.
func (m *MemoryStore) FailGet(table string, err error) { m.setFault(m.failGet, table, err) }

// SetDelay makes every operation sleep for d before running.
func (m *MemoryStore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

func (m *MemoryStore) setFault(faults map[string]error, table string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(faults, table)
		return
	}
	faults[table] = err
}

func (m *MemoryStore) wait(ctx context.Context) error {
	m.mu.Lock()
	d := m.delay
	m.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetAllRows implements Reader.
func (m *MemoryStore) GetAllRows(ctx context.Context, table string) ([][]any, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "get", Table: table})
	if err := m.failGet[table]; err != nil {
		return nil, err
	}
	rows, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return copyRows(rows), nil
}

// WriteRow implements Store.
func (m *MemoryStore) WriteRow(ctx context.Context, table string, row int, values []any) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "write", Table: table, Rows: []int{row}})
	if err := m.failWrite[table]; err != nil {
		return err
	}
	rows, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if row <= HeaderRow || row > len(rows) {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, row)
	}
	rows[row-1] = copyRow(values)
	return nil
}

// BatchUpdate implements Store.
func (m *MemoryStore) BatchUpdate(ctx context.Context, table string, updates []RowUpdate) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := make([]int, 0, len(updates))
	for _, u := range updates {
		idx = append(idx, u.Row)
	}
	m.calls = append(m.calls, Call{Op: "batch", Table: table, Rows: idx})
	if err := m.failBatch[table]; err != nil {
		return err
	}
	rows, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	for _, u := range updates {
		if u.Row <= HeaderRow || u.Row > len(rows) {
			return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, table, u.Row)
		}
	}
	for _, u := range updates {
		rows[u.Row-1] = copyRow(u.Values)
	}
	return nil
}

// AppendRows implements Store.
func (m *MemoryStore) AppendRows(ctx context.Context, table string, values [][]any) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rows, ok := m.tables[table]
	start := len(rows) + 1
	idx := make([]int, 0, len(values))
	for i := range values {
		idx = append(idx, start+i)
	}
	m.calls = append(m.calls, Call{Op: "append", Table: table, Rows: idx})
	if err := m.failAppend[table]; err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	m.tables[table] = append(rows, copyRows(values)...)
	return nil
}

// MarkCell implements Store.
func (m *MemoryStore) MarkCell(ctx context.Context, ref string, mark Mark) error {
	if err := m.wait(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: "mark", Table: ref})
	m.marks[ref] = mergeMark(m.marks[ref], mark)
	return nil
}

func mergeMark(prev, next Mark) Mark {
	if next.Color != "" {
		prev.Color = next.Color
	}
	if next.Clear {
		prev.Note = ""
	} else if next.Note != "" {
		prev.Note = next.Note
	}
	return prev
}

func copyRow(row []any) []any {
	out := make([]any, len(row))
	copy(out, row)
	return out
}

func copyRows(rows [][]any) [][]any {
	if rows == nil {
		return nil
	}
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = copyRow(r)
	}
	return out
}
