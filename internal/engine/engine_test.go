package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/extract"
	"github.com/caliopendata/datasync/internal/report"
	"github.com/caliopendata/datasync/internal/store"
)

func testCatalog() *catalog.Catalog {
	return &catalog.Catalog{Entities: []catalog.Entity{
		{
			Name: "retos",
			Fields: []catalog.Field{
				{Name: "id_reto", Type: catalog.IntegerIdentifier},
				{Name: "nombre_reto", Type: catalog.FreeText, Required: true},
			},
			PrimaryKey: []string{"id_reto"},
		},
		{
			Name: "contratos_valores",
			Fields: []catalog.Field{
				{Name: "bpin", Type: catalog.IntegerIdentifier},
				{Name: "cod_contrato", Type: catalog.BoundedText, MaxLength: 100},
				{Name: "valor_contrato", Type: catalog.MonetaryAmount},
			},
			PrimaryKey: []string{"bpin", "cod_contrato"},
		},
	}}
}

// registerAll seeds the mock's structure as if every catalog relation already
// exists with its full column set.
func registerAll(m *store.Mock, cat *catalog.Catalog) {
	for i := range cat.Entities {
		e := &cat.Entities[i]
		cols := make([]store.Column, len(e.Fields))
		for j, f := range e.Fields {
			cols[j] = store.Column{Name: f.Name}
		}
		m.AddRelation(e.Name, cols...)
	}
}

func writeExtract(t *testing.T, dir, entity, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, entity+".json"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testEngine(t *testing.T, m *store.Mock, dir string) *Engine {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(testCatalog(), m, extract.NewReader(dir), logger, 500)
}

func TestRun_PingFailure(t *testing.T) {
	m := store.NewMock()
	m.PingErr = errors.New("connection refused")
	e := testEngine(t, m, t.TempDir())

	rep, err := e.Run(context.Background())
	if err == nil {
		t.Fatal("expected error when store is unreachable")
	}
	if rep == nil || !rep.Failed {
		t.Fatal("expected a failed report")
	}
	if phase, _ := e.Phase(); phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", phase, PhaseFailed)
	}
	if len(m.Execs) != 0 {
		t.Errorf("no statements should run after a failed ping, got %d", len(m.Execs))
	}
}

func TestRun_FreshStore(t *testing.T) {
	dir := t.TempDir()
	writeExtract(t, dir, "retos", `[
		{"id_reto": "1.0", "nombre_reto": "Reto uno"},
		{"id_reto": "2", "nombre_reto": "Reto dos"}
	]`)
	writeExtract(t, dir, "contratos_valores", `[
		{"bpin": 2004001, "cod_contrato": "C-77", "valor_contrato": " 224.436.000 "}
	]`)

	m := store.NewMock()
	cat := testCatalog()
	// Materialize DDL against the mock's structure so the post-apply re-read
	// and verification see the created relations.
	m.ExecHook = func(sql string, _ []any) error {
		if strings.HasPrefix(sql, "CREATE TABLE") {
			registerAll(m, cat)
		}
		return nil
	}
	e := testEngine(t, m, dir)

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed {
		t.Fatalf("unexpected failed run: %s", rep.FailureReason)
	}
	if !rep.SchemaIntegrity {
		t.Error("expected schema integrity after creating all relations")
	}
	if creates := m.ExecsMatching("CREATE TABLE"); len(creates) != 2 {
		t.Errorf("expected 2 CREATE TABLE statements, got %d", len(creates))
	}

	retos := rep.Entity("retos")
	if retos.Attempted != 2 || retos.Loaded != 2 || retos.Rejected != 0 {
		t.Errorf("retos counters = %+v", retos)
	}
	cv := rep.Entity("contratos_valores")
	if cv.Loaded != 1 {
		t.Errorf("contratos_valores loaded = %d, want 1", cv.Loaded)
	}
	if phase, _ := e.Phase(); phase != PhaseDone {
		t.Errorf("phase = %s, want %s", phase, PhaseDone)
	}
}

func TestRun_SkipsPopulatedRelations(t *testing.T) {
	dir := t.TempDir()
	writeExtract(t, dir, "retos", `[{"id_reto": 1, "nombre_reto": "Reto"}]`)

	m := store.NewMock()
	registerAll(m, testCatalog())
	m.RowCounts["retos"] = 42
	e := testEngine(t, m, dir)

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	retos := rep.Entity("retos")
	if retos.Skipped != 42 {
		t.Errorf("skipped = %d, want 42", retos.Skipped)
	}
	if retos.Attempted != 0 || retos.Loaded != 0 {
		t.Errorf("populated relation should not be loaded, got %+v", retos)
	}
	if inserts := m.ExecsMatching("INSERT INTO \"retos\""); len(inserts) != 0 {
		t.Errorf("no inserts expected for skipped relation, got %d", len(inserts))
	}
}

func TestRun_MissingExtractIsNotAnError(t *testing.T) {
	m := store.NewMock()
	registerAll(m, testCatalog())
	e := testEngine(t, m, t.TempDir())

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Failed {
		t.Fatal("missing extracts should not fail the run")
	}
	for _, r := range rep.Entities {
		if len(r.Errors) != 0 {
			t.Errorf("%s: unexpected errors %+v", r.Entity, r.Errors)
		}
	}
}

func TestRun_CountsRejections(t *testing.T) {
	dir := t.TempDir()
	writeExtract(t, dir, "retos", `[
		{"id_reto": 1, "nombre_reto": "ok"},
		{"id_reto": "None", "nombre_reto": "bad key"},
		{"id_reto": 3, "nombre_reto": null}
	]`)

	m := store.NewMock()
	registerAll(m, testCatalog())
	e := testEngine(t, m, dir)

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	retos := rep.Entity("retos")
	if retos.Attempted != 3 {
		t.Errorf("attempted = %d, want 3", retos.Attempted)
	}
	if retos.Rejected != 2 {
		t.Errorf("rejected = %d, want 2", retos.Rejected)
	}
	if retos.Loaded != 1 {
		t.Errorf("loaded = %d, want 1", retos.Loaded)
	}
}

func TestRun_MalformedExtractDegradesEntity(t *testing.T) {
	dir := t.TempDir()
	writeExtract(t, dir, "retos", `{"not": "an array"`)
	writeExtract(t, dir, "contratos_valores", `[{"bpin": 1, "cod_contrato": "A", "valor_contrato": "100"}]`)

	m := store.NewMock()
	registerAll(m, testCatalog())
	e := testEngine(t, m, dir)

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("malformed extract must not abort the run: %v", err)
	}

	retos := rep.Entity("retos")
	if len(retos.Errors) != 1 || retos.Errors[0].Stage != report.StageExtract {
		t.Errorf("expected one extract-stage error, got %+v", retos.Errors)
	}
	if cv := rep.Entity("contratos_valores"); cv.Loaded != 1 {
		t.Errorf("later entities should still load, got %+v", cv)
	}
	degraded := rep.DegradedEntities()
	if len(degraded) != 1 || degraded[0] != "retos" {
		t.Errorf("degraded = %v", degraded)
	}
}

func TestRun_ReconcileFailureDegradesButContinues(t *testing.T) {
	dir := t.TempDir()
	writeExtract(t, dir, "retos", `[{"id_reto": 1, "nombre_reto": "Reto"}]`)

	m := store.NewMock()
	cat := testCatalog()
	m.ExecHook = func(sql string, _ []any) error {
		if strings.Contains(sql, "\"contratos_valores\"") && strings.HasPrefix(sql, "CREATE TABLE") {
			return errors.New("permission denied")
		}
		if strings.HasPrefix(sql, "CREATE TABLE") {
			// Only retos materializes.
			e := &cat.Entities[0]
			cols := make([]store.Column, len(e.Fields))
			for j, f := range e.Fields {
				cols[j] = store.Column{Name: f.Name}
			}
			m.AddRelation(e.Name, cols...)
		}
		return nil
	}
	e := testEngine(t, m, dir)

	rep, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.SchemaIntegrity {
		t.Error("expected schema integrity to be false")
	}
	cv := rep.Entity("contratos_valores")
	if len(cv.Errors) == 0 {
		t.Error("expected reconcile/verify errors on the failed relation")
	}
	if retos := rep.Entity("retos"); retos.Loaded != 1 {
		t.Errorf("healthy relation should still load, got %+v", retos)
	}
}

func TestObsoleteAndDrop(t *testing.T) {
	m := store.NewMock()
	registerAll(m, testCatalog())
	m.AddRelation("legacy_budgets", store.Column{Name: "id"})
	m.RowCounts["legacy_budgets"] = 3
	m.QueryResult = []map[string]any{{"id": int64(1)}, {"id": int64(2)}, {"id": int64(3)}}
	e := testEngine(t, m, t.TempDir())

	obsolete, err := e.ObsoleteRelations(context.Background())
	if err != nil {
		t.Fatalf("ObsoleteRelations: %v", err)
	}
	if len(obsolete) != 1 || obsolete[0] != "legacy_budgets" {
		t.Fatalf("obsolete = %v", obsolete)
	}

	if _, err := e.DropObsolete(context.Background(), "retos", t.TempDir()); err == nil {
		t.Fatal("must refuse to drop a declared relation")
	}

	path, err := e.DropObsolete(context.Background(), "legacy_budgets", t.TempDir())
	if err != nil {
		t.Fatalf("DropObsolete: %v", err)
	}
	if path == "" {
		t.Error("expected a backup path")
	}
	if drops := m.ExecsMatching("DROP TABLE"); len(drops) != 1 {
		t.Errorf("expected 1 DROP TABLE, got %d", len(drops))
	}
}
