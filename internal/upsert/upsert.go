// Package upsert writes canonical records into the store with
// insert-on-conflict semantics. Re-syncing the same extract is idempotent:
// conflicting rows take the incoming values, last writer wins.
package upsert

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/clean"
	"github.com/caliopendata/datasync/internal/store"
)

// DefaultBatchSize is how many records one conflict-aware write carries.
// Small enough that a single malformed row poisons little work before the
// per-record fallback takes over.
const DefaultBatchSize = 500

// Engine batches and writes canonical records.
type Engine struct {
	store     store.Store
	logger    *slog.Logger
	batchSize int
}

// New creates an Engine. A non-positive batchSize falls back to
// DefaultBatchSize.
func New(s store.Store, logger *slog.Logger, batchSize int) *Engine {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Engine{store: s, logger: logger, batchSize: batchSize}
}

// Upsert writes the records into the entity's relation and returns how many
// were written and how many failed. Partial failure is a normal outcome of
// synchronizing heterogeneous external data: a batch that fails as a whole
// is retried record by record, and a failure on record N never prevents
// records N+1..end from being attempted.
func (e *Engine) Upsert(ctx context.Context, records []clean.Record, def *catalog.Entity) (written, failed int) {
	if len(records) == 0 {
		return 0, 0
	}
	cols := def.FieldNames()
	for start := 0; start < len(records); start += e.batchSize {
		end := start + e.batchSize
		if end > len(records) {
			end = len(records)
		}
		batch := records[start:end]

		sql := statement(def, cols, len(batch))
		args := flatten(batch, cols)
		if _, err := e.store.Exec(ctx, sql, args...); err == nil {
			written += len(batch)
			continue
		} else {
			e.logger.Warn("batch write failed, retrying record by record",
				"relation", def.Name, "batch_size", len(batch), "error", err)
		}

		// Fallback stays sequential so last-writer-wins ordering within the
		// batch is deterministic.
		single := statement(def, cols, 1)
		for _, rec := range batch {
			if _, err := e.store.Exec(ctx, single, flatten([]clean.Record{rec}, cols)...); err != nil {
				e.logger.Debug("record write failed", "relation", def.Name, "error", err)
				failed++
				continue
			}
			written++
		}
	}
	return written, failed
}

// statement builds the multi-row conflict-aware insert. Simple and composite
// keys share the path: both the conflict target and the update column list
// come from the declared primary key.
func statement(def *catalog.Entity, cols []string, rows int) string {
	var b strings.Builder
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = store.QuoteIdent(c)
	}
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ",
		store.QuoteIdent(def.Name), strings.Join(quoted, ", "))

	arg := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for i := range cols {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteByte(')')
	}

	keys := make([]string, len(def.PrimaryKey))
	for i, k := range def.PrimaryKey {
		keys[i] = store.QuoteIdent(k)
	}
	fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(keys, ", "))

	nonKey := def.NonKeyFields()
	if len(nonKey) == 0 {
		// Nothing to update on conflict; leave existing rows untouched.
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	b.WriteString(" DO UPDATE SET ")
	for i, c := range nonKey {
		if i > 0 {
			b.WriteString(", ")
		}
		q := store.QuoteIdent(c)
		fmt.Fprintf(&b, "%s = EXCLUDED.%s", q, q)
	}
	return b.String()
}

func flatten(records []clean.Record, cols []string) []any {
	args := make([]any, 0, len(records)*len(cols))
	for _, rec := range records {
		for _, c := range cols {
			args = append(args, rec[c])
		}
	}
	return args
}
