// Package engine drives a full synchronization run: reconcile the store's
// structure against the entity catalog, then gate, clean and upsert each
// entity's extract in catalog order.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/clean"
	"github.com/caliopendata/datasync/internal/extract"
	"github.com/caliopendata/datasync/internal/gate"
	"github.com/caliopendata/datasync/internal/reconcile"
	"github.com/caliopendata/datasync/internal/report"
	"github.com/caliopendata/datasync/internal/store"
	"github.com/caliopendata/datasync/internal/upsert"
)

// Phase is the engine's coarse progress indicator.
type Phase string

const (
	PhaseNotStarted  Phase = "not_started"
	PhaseReconciling Phase = "reconciling"
	PhaseGating      Phase = "gating"
	PhaseCleaning    Phase = "cleaning"
	PhaseUpserting   Phase = "upserting"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Engine is the synchronization engine shared by all commands.
type Engine struct {
	Catalog   *catalog.Catalog
	Store     store.Store
	Extracts  *extract.Reader
	Logger    *slog.Logger
	BatchSize int

	mu      sync.Mutex
	phase   Phase
	current string
}

// New creates an Engine over an already connected store.
func New(cat *catalog.Catalog, s store.Store, extracts *extract.Reader, logger *slog.Logger, batchSize int) *Engine {
	return &Engine{
		Catalog:   cat,
		Store:     s,
		Extracts:  extracts,
		Logger:    logger,
		BatchSize: batchSize,
		phase:     PhaseNotStarted,
	}
}

// Phase returns the current phase and, during loading, the entity being
// processed. Safe to call from another goroutine while Run is in flight.
func (e *Engine) Phase() (Phase, string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase, e.current
}

func (e *Engine) setPhase(p Phase, entity string) {
	e.mu.Lock()
	e.phase = p
	e.current = entity
	e.mu.Unlock()
}

// Run executes one full synchronization pass. The returned report is always
// non-nil; the error is non-nil only when the run could not start at all.
// Per-entity problems never abort the run, they degrade it.
func (e *Engine) Run(ctx context.Context) (*report.SyncReport, error) {
	rep := report.New()
	e.Logger.Info("starting synchronization run", "run_id", rep.RunID)

	if err := e.Store.Ping(ctx); err != nil {
		e.setPhase(PhaseFailed, "")
		rep.Fail(fmt.Sprintf("store unreachable: %v", err))
		return rep, fmt.Errorf("pinging store: %w", err)
	}

	e.setPhase(PhaseReconciling, "")
	structure, err := e.Store.Structure(ctx)
	if err != nil {
		e.setPhase(PhaseFailed, "")
		rep.Fail(fmt.Sprintf("reading store structure: %v", err))
		return rep, fmt.Errorf("reading store structure: %w", err)
	}

	ops := reconcile.Plan(e.Catalog, structure)
	if len(ops) > 0 {
		res := reconcile.Apply(ctx, e.Store, ops, e.Logger)
		for _, oe := range res.Errors {
			rep.Entity(oe.Op.Relation).AddError(report.StageReconcile, oe)
		}
		// Re-read so gating and verification see what actually applied.
		structure, err = e.Store.Structure(ctx)
		if err != nil {
			e.setPhase(PhaseFailed, "")
			rep.Fail(fmt.Sprintf("re-reading store structure: %v", err))
			return rep, fmt.Errorf("re-reading store structure: %w", err)
		}
	}

	if problems := reconcile.Verify(e.Catalog, structure); len(problems) > 0 {
		rep.SchemaIntegrity = false
		for _, p := range problems {
			rep.Entity(p.Relation).AddError(report.StageVerify, fmt.Errorf("structure incomplete: %s", p))
		}
	}

	g := gate.New(e.Store)
	writer := upsert.New(e.Store, e.Logger, e.BatchSize)

	// Catalog order puts dimensions before the facts that reference them.
	for i := range e.Catalog.Entities {
		e.syncEntity(ctx, &e.Catalog.Entities[i], structure, g, writer, rep)
	}

	e.setPhase(PhaseDone, "")
	rep.Finish()
	e.Logger.Info("synchronization run finished",
		"run_id", rep.RunID,
		"loaded", rep.TotalLoaded(),
		"rejected", rep.TotalRejected(),
		"degraded", len(rep.DegradedEntities()))
	return rep, nil
}

func (e *Engine) syncEntity(ctx context.Context, def *catalog.Entity, structure *store.Structure, g *gate.Gate, writer *upsert.Engine, rep *report.SyncReport) {
	r := rep.Entity(def.Name)
	start := time.Now()
	defer func() {
		r.Elapsed = time.Since(start)
		if rows, err := e.Store.RowCount(ctx, def.Name); err == nil {
			r.RowCount = rows
		}
	}()

	e.setPhase(PhaseGating, def.Name)

	dec, err := g.ShouldLoad(ctx, def.Name, structure)
	if err != nil {
		r.AddError(report.StageGate, err)
		return
	}
	if !dec.Load {
		r.Skipped = dec.ExistingRows
		e.Logger.Info("relation already populated, skipping",
			"entity", def.Name, "rows", dec.ExistingRows)
		return
	}

	raws, found, err := e.Extracts.Read(def.Name)
	if err != nil {
		r.AddError(report.StageExtract, err)
		return
	}
	if !found {
		e.Logger.Warn("no extract file for entity", "entity", def.Name)
		return
	}

	e.setPhase(PhaseCleaning, def.Name)
	r.Attempted = len(raws)
	records := make([]clean.Record, 0, len(raws))
	for _, raw := range raws {
		rec, rej := clean.Clean(raw, def)
		if rej != nil {
			r.Rejected++
			continue
		}
		records = append(records, rec)
	}
	if r.Rejected > 0 {
		e.Logger.Warn("rejected records during cleaning",
			"entity", def.Name, "rejected", r.Rejected, "attempted", r.Attempted)
	}

	e.setPhase(PhaseUpserting, def.Name)
	written, failed := writer.Upsert(ctx, records, def)
	r.Loaded = written
	r.Failed = failed
	if failed > 0 {
		r.AddError(report.StageUpsert, fmt.Errorf("%d of %d records failed to write", failed, len(records)))
	}
}

// ObsoleteRelations lists store relations the catalog no longer declares.
func (e *Engine) ObsoleteRelations(ctx context.Context) ([]string, error) {
	structure, err := e.Store.Structure(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading store structure: %w", err)
	}
	return reconcile.Obsolete(e.Catalog, structure), nil
}

// DropObsolete backs up and drops one relation the catalog no longer
// declares. It refuses to touch a declared relation.
func (e *Engine) DropObsolete(ctx context.Context, relation, backupDir string) (string, error) {
	if e.Catalog.Entity(relation) != nil {
		return "", fmt.Errorf("relation %q is declared in the catalog; refusing to drop", relation)
	}
	return reconcile.DropObsolete(ctx, e.Store, relation, backupDir, e.Logger)
}
