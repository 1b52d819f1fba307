// Package gate decides whether an entity's load should proceed. A relation
// that is missing or empty gets loaded; a relation with any rows is treated
// as already loaded and skipped. The policy deliberately performs no
// content-hash or timestamp comparison: a changed extract for a populated
// entity is skipped until the relation is emptied out-of-band.
package gate

import (
	"context"
	"fmt"

	"github.com/caliopendata/datasync/internal/store"
)

// Decision is the gate's answer for one entity.
type Decision struct {
	Load bool

	// ExistingRows is the relation's current row count when Load is false,
	// reported so the sync report reflects total visible state even when no
	// write occurred.
	ExistingRows int64
}

// Gate checks relation state against the skip policy.
type Gate struct {
	store store.Store
}

// New creates a Gate over the given store.
func New(s store.Store) *Gate {
	return &Gate{store: s}
}

// ShouldLoad returns the load decision for one entity. The structure passed
// in is the one captured at the start of the run; only the row count is a
// live read.
func (g *Gate) ShouldLoad(ctx context.Context, entity string, structure *store.Structure) (Decision, error) {
	if !structure.Has(entity) {
		return Decision{Load: true}, nil
	}
	count, err := g.store.RowCount(ctx, entity)
	if err != nil {
		return Decision{}, fmt.Errorf("counting rows in %s: %w", entity, err)
	}
	if count == 0 {
		return Decision{Load: true}, nil
	}
	return Decision{Load: false, ExistingRows: count}, nil
}
