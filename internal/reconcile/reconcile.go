// Package reconcile aligns the store's structure with the declared entity
// catalog. Reconciliation only ever widens: it creates missing relations and
// adds missing columns. Dropping relations and narrowing columns are
// destructive, separately invoked maintenance operations (see backup.go).
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/store"
)

// OpKind classifies a structural operation.
type OpKind string

const (
	OpCreateRelation OpKind = "create_relation"
	OpAddColumn      OpKind = "add_column"
)

// Operation is one structural change the store needs to accept canonical
// records for the catalog.
type Operation struct {
	Kind     OpKind
	Relation string
	Column   string // add_column only
	SQL      string
}

// OpError records a structural operation that failed to apply.
type OpError struct {
	Op  Operation
	Err error
}

func (e OpError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op.Kind, e.Op.Relation, e.Err)
}

func (e OpError) Unwrap() error { return e.Err }

// Result is the outcome of applying a plan.
type Result struct {
	Applied int
	Errors  []OpError
}

// OK reports whether every operation applied cleanly.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// Plan computes the minimal set of structural operations needed to make the
// store hold canonical records for every entity. Running Plan against a
// structure it already produced yields zero operations.
func Plan(cat *catalog.Catalog, structure *store.Structure) []Operation {
	var ops []Operation
	for i := range cat.Entities {
		e := &cat.Entities[i]
		rel, exists := structure.Relations[e.Name]
		if !exists {
			ops = append(ops, Operation{
				Kind:     OpCreateRelation,
				Relation: e.Name,
				SQL:      createRelationSQL(e),
			})
			continue
		}
		for j := range e.Fields {
			f := &e.Fields[j]
			if rel.Column(f.Name) != nil {
				continue
			}
			ops = append(ops, Operation{
				Kind:     OpAddColumn,
				Relation: e.Name,
				Column:   f.Name,
				SQL:      addColumnSQL(e.Name, f),
			})
		}
	}
	return ops
}

// Apply executes the planned operations best-effort: a failing operation is
// recorded and the rest still run, because an entity whose structure could
// not be fixed will surface its own load failure later. Successfully applied
// operations are not rolled back.
func Apply(ctx context.Context, s store.Store, ops []Operation, logger *slog.Logger) *Result {
	res := &Result{}
	for _, op := range ops {
		if _, err := s.Exec(ctx, op.SQL); err != nil {
			logger.Error("structural operation failed",
				"kind", string(op.Kind), "relation", op.Relation, "column", op.Column, "error", err)
			res.Errors = append(res.Errors, OpError{Op: op, Err: err})
			continue
		}
		logger.Info("applied structural operation",
			"kind", string(op.Kind), "relation", op.Relation, "column", op.Column)
		res.Applied++
	}
	return res
}

// Obsolete returns relations present in the store but absent from the
// catalog, sorted by name. They are candidates for the explicit drop
// maintenance operation, never dropped during a sync run.
func Obsolete(cat *catalog.Catalog, structure *store.Structure) []string {
	declared := make(map[string]bool, len(cat.Entities))
	for i := range cat.Entities {
		declared[cat.Entities[i].Name] = true
	}
	var out []string
	for name := range structure.Relations {
		if !declared[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Problem is one structural mismatch found by Verify.
type Problem struct {
	Relation string
	Column   string // empty when the whole relation is missing
}

func (p Problem) String() string {
	if p.Column == "" {
		return fmt.Sprintf("relation %s missing", p.Relation)
	}
	return fmt.Sprintf("column %s.%s missing", p.Relation, p.Column)
}

// Verify checks that every catalog entity is present with every declared
// column. Callers re-verify after Apply because reconciliation is
// best-effort; any problem flips the run's schema integrity flag. Extra
// columns in the store are tolerated and ignored.
func Verify(cat *catalog.Catalog, structure *store.Structure) []Problem {
	var problems []Problem
	for i := range cat.Entities {
		e := &cat.Entities[i]
		rel, ok := structure.Relations[e.Name]
		if !ok {
			problems = append(problems, Problem{Relation: e.Name})
			continue
		}
		for j := range e.Fields {
			if rel.Column(e.Fields[j].Name) == nil {
				problems = append(problems, Problem{Relation: e.Name, Column: e.Fields[j].Name})
			}
		}
	}
	return problems
}

func createRelationSQL(e *catalog.Entity) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", store.QuoteIdent(e.Name))
	for i := range e.Fields {
		f := &e.Fields[i]
		fmt.Fprintf(&b, "\t%s %s", store.QuoteIdent(f.Name), StorageType(f))
		if e.IsKey(f.Name) {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	keys := make([]string, len(e.PrimaryKey))
	for i, k := range e.PrimaryKey {
		keys[i] = store.QuoteIdent(k)
	}
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(keys, ", "))
	return b.String()
}

func addColumnSQL(relation string, f *catalog.Field) string {
	sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
		store.QuoteIdent(relation), store.QuoteIdent(f.Name), StorageType(f))
	if f.Accumulative {
		// Aggregated amounts default to zero so existing rows keep sums defined.
		sql += " DEFAULT 0"
	}
	return sql
}

// StorageType maps a semantic field type to its PostgreSQL column type.
func StorageType(f *catalog.Field) string {
	switch f.Type {
	case catalog.IntegerIdentifier:
		return "BIGINT"
	case catalog.MonetaryAmount:
		return "NUMERIC(18,2)"
	case catalog.DecimalMeasure:
		return "NUMERIC(15,4)"
	case catalog.Date:
		return "DATE"
	case catalog.BooleanFlag:
		return "BOOLEAN"
	case catalog.BoundedText:
		n := f.MaxLength
		if n <= 0 {
			n = 255
		}
		return fmt.Sprintf("VARCHAR(%d)", n)
	default:
		return "TEXT"
	}
}
