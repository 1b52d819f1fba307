package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ExecCall records one Exec invocation against the mock.
type ExecCall struct {
	SQL  string
	Args []any
}

// Mock is a test double for the Store interface.
type Mock struct {
	mu sync.Mutex

	PingErr      error
	Struct       *Structure
	StructErr    error
	RowCounts    map[string]int64
	RowCountErr  error
	QueryResult  []map[string]any
	QueryErr     error

	// ExecHook, when set, decides the outcome of each Exec call. Returning
	// a non-nil error simulates a failed statement.
	ExecHook func(sql string, args []any) error
	ExecErr  error

	Execs  []ExecCall
	Closed bool
}

// NewMock returns a mock with an empty structure and no rows.
func NewMock() *Mock {
	return &Mock{
		Struct:    &Structure{Relations: make(map[string]*Relation)},
		RowCounts: make(map[string]int64),
	}
}

func (m *Mock) Ping(_ context.Context) error {
	return m.PingErr
}

func (m *Mock) Structure(_ context.Context) (*Structure, error) {
	if m.StructErr != nil {
		return nil, m.StructErr
	}
	if m.Struct == nil {
		return &Structure{Relations: make(map[string]*Relation)}, nil
	}
	return m.Struct, nil
}

func (m *Mock) RowCount(_ context.Context, relation string) (int64, error) {
	if m.RowCountErr != nil {
		return 0, m.RowCountErr
	}
	if c, ok := m.RowCounts[relation]; ok {
		return c, nil
	}
	if m.Struct != nil && m.Struct.Has(relation) {
		return 0, nil
	}
	return 0, fmt.Errorf("relation %s does not exist", relation)
}

func (m *Mock) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Execs = append(m.Execs, ExecCall{SQL: sql, Args: args})
	if m.ExecHook != nil {
		if err := m.ExecHook(sql, args); err != nil {
			return 0, err
		}
	}
	if m.ExecErr != nil {
		return 0, m.ExecErr
	}
	return 0, nil
}

func (m *Mock) QueryRows(_ context.Context, _ string, _ ...any) ([]map[string]any, error) {
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	return m.QueryResult, nil
}

func (m *Mock) Close() {
	m.Closed = true
}

// AddRelation registers a relation with the given columns in the mock's
// structure.
func (m *Mock) AddRelation(name string, cols ...Column) {
	if m.Struct == nil {
		m.Struct = &Structure{Relations: make(map[string]*Relation)}
	}
	m.Struct.Relations[name] = &Relation{Name: name, Columns: cols}
}

// ExecsMatching returns recorded Exec calls whose SQL contains substr.
func (m *Mock) ExecsMatching(substr string) []ExecCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExecCall
	for _, c := range m.Execs {
		if strings.Contains(c.SQL, substr) {
			out = append(out, c)
		}
	}
	return out
}
