package store

import "context"

// Column describes one column of an existing relation.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// Relation is one existing relation and its columns.
type Relation struct {
	Name    string
	Columns []Column
}

// Column returns the column with the given name, or nil.
func (r *Relation) Column(name string) *Column {
	for i := range r.Columns {
		if r.Columns[i].Name == name {
			return &r.Columns[i]
		}
	}
	return nil
}

// Structure is the live shape of the target store, recomputed at the start
// of every synchronization run. The reconciler is its only consumer.
type Structure struct {
	Relations map[string]*Relation
}

// Has reports whether a relation with the given name exists.
func (s *Structure) Has(name string) bool {
	_, ok := s.Relations[name]
	return ok
}

// Store provides structural and row-level access to the target store.
// Implementations hold a connection pool; callers acquire connections per
// phase rather than for a whole synchronization run.
type Store interface {
	// Ping verifies connectivity. A failure here is the only condition
	// fatal to a synchronization run.
	Ping(ctx context.Context) error

	// Structure introspects all relations and columns in the working schema.
	Structure(ctx context.Context) (*Structure, error)

	// RowCount returns the exact row count of a relation.
	RowCount(ctx context.Context, relation string) (int64, error)

	// Exec runs a statement and returns the number of rows affected.
	// DDL statements report zero.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)

	// QueryRows runs a query and materializes every row as a column-keyed map.
	QueryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error)

	Close()
}
