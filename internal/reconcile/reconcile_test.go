package reconcile

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func smallCatalog() *catalog.Catalog {
	return &catalog.Catalog{Entities: []catalog.Entity{
		{
			Name: "programas",
			Fields: []catalog.Field{
				{Name: "cod_programa", Type: catalog.IntegerIdentifier},
				{Name: "nombre_programa", Type: catalog.FreeText},
			},
			PrimaryKey: []string{"cod_programa"},
		},
		{
			Name: "movimientos_presupuestales",
			Fields: []catalog.Field{
				{Name: "bpin", Type: catalog.IntegerIdentifier},
				{Name: "periodo_corte", Type: catalog.BoundedText, MaxLength: 50},
				{Name: "adiciones", Type: catalog.MonetaryAmount, Accumulative: true},
			},
			PrimaryKey: []string{"bpin", "periodo_corte"},
		},
	}}
}

func TestPlan_EmptyStoreCreatesEverything(t *testing.T) {
	cat := smallCatalog()
	structure := &store.Structure{Relations: map[string]*store.Relation{}}

	ops := Plan(cat, structure)
	if len(ops) != 2 {
		t.Fatalf("got %d operations, want 2 creates", len(ops))
	}
	for _, op := range ops {
		if op.Kind != OpCreateRelation {
			t.Errorf("op %s on %s, want create_relation", op.Kind, op.Relation)
		}
	}
	// Composite key declared over the declared field order.
	var mov *Operation
	for i := range ops {
		if ops[i].Relation == "movimientos_presupuestales" {
			mov = &ops[i]
		}
	}
	if mov == nil {
		t.Fatal("no create for movimientos_presupuestales")
	}
	if !strings.Contains(mov.SQL, `PRIMARY KEY ("bpin", "periodo_corte")`) {
		t.Errorf("composite key missing from DDL:\n%s", mov.SQL)
	}
	if !strings.Contains(mov.SQL, `"adiciones" NUMERIC(18,2)`) {
		t.Errorf("monetary storage type missing from DDL:\n%s", mov.SQL)
	}
}

func TestPlan_AddsOnlyMissingColumns(t *testing.T) {
	cat := smallCatalog()
	m := store.NewMock()
	m.AddRelation("programas",
		store.Column{Name: "cod_programa", DataType: "bigint"},
		store.Column{Name: "nombre_programa", DataType: "text"},
	)
	m.AddRelation("movimientos_presupuestales",
		store.Column{Name: "bpin", DataType: "bigint"},
		store.Column{Name: "periodo_corte", DataType: "character varying"},
	)

	ops := Plan(cat, m.Struct)
	if len(ops) != 1 {
		t.Fatalf("got %d operations, want exactly 1 add-column: %+v", len(ops), ops)
	}
	op := ops[0]
	if op.Kind != OpAddColumn || op.Relation != "movimientos_presupuestales" || op.Column != "adiciones" {
		t.Errorf("unexpected operation: %+v", op)
	}
	if !strings.Contains(op.SQL, "DEFAULT 0") {
		t.Errorf("accumulative column should default to zero:\n%s", op.SQL)
	}
}

func TestPlan_Idempotent(t *testing.T) {
	cat := smallCatalog()
	m := store.NewMock()

	ops := Plan(cat, m.Struct)
	res := Apply(context.Background(), m, ops, testLogger())
	if !res.OK() || res.Applied != len(ops) {
		t.Fatalf("apply failed: %+v", res)
	}

	// Simulate the structure the applied plan produces.
	for i := range cat.Entities {
		e := &cat.Entities[i]
		cols := make([]store.Column, len(e.Fields))
		for j, f := range e.Fields {
			cols[j] = store.Column{Name: f.Name}
		}
		m.AddRelation(e.Name, cols...)
	}

	again := Plan(cat, m.Struct)
	if len(again) != 0 {
		t.Errorf("second plan issued %d operations, want 0: %+v", len(again), again)
	}
}

func TestApply_BestEffortContinuesPastFailures(t *testing.T) {
	cat := smallCatalog()
	m := store.NewMock()
	m.ExecHook = func(sql string, _ []any) error {
		if strings.Contains(sql, "programas") {
			return errors.New("permission denied")
		}
		return nil
	}

	ops := Plan(cat, m.Struct)
	res := Apply(context.Background(), m, ops, testLogger())
	if res.OK() {
		t.Fatal("expected a recorded failure")
	}
	if res.Applied != 1 {
		t.Errorf("Applied = %d, want 1 (the non-failing operation)", res.Applied)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Errors = %v, want exactly 1", res.Errors)
	}
}

func TestObsolete(t *testing.T) {
	cat := smallCatalog()
	m := store.NewMock()
	m.AddRelation("programas")
	m.AddRelation("tabla_legacy")
	m.AddRelation("otra_legacy")

	got := Obsolete(cat, m.Struct)
	want := []string{"otra_legacy", "tabla_legacy"}
	if len(got) != len(want) {
		t.Fatalf("Obsolete = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Obsolete[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestVerify(t *testing.T) {
	cat := smallCatalog()
	m := store.NewMock()
	m.AddRelation("programas", store.Column{Name: "cod_programa"})
	// nombre_programa column missing, movimientos_presupuestales relation missing.

	problems := Verify(cat, m.Struct)
	if len(problems) != 2 {
		t.Fatalf("got %d problems, want 2: %v", len(problems), problems)
	}
}

func TestDropObsolete_BackupGated(t *testing.T) {
	m := store.NewMock()
	m.AddRelation("tabla_legacy", store.Column{Name: "id"})
	m.RowCounts["tabla_legacy"] = 2
	m.QueryResult = []map[string]any{{"id": int64(1)}, {"id": int64(2)}}

	dir := t.TempDir()
	path, err := DropObsolete(context.Background(), m, "tabla_legacy", dir, testLogger())
	if err != nil {
		t.Fatalf("DropObsolete: %v", err)
	}
	if path == "" {
		t.Fatal("no snapshot path returned")
	}
	if drops := m.ExecsMatching("DROP TABLE"); len(drops) != 1 {
		t.Errorf("got %d DROP TABLE statements, want 1", len(drops))
	}
}

func TestDropObsolete_RefusesWhenBackupFails(t *testing.T) {
	m := store.NewMock()
	m.AddRelation("tabla_legacy")
	m.RowCounts["tabla_legacy"] = 5
	m.QueryErr = errors.New("connection reset")

	_, err := DropObsolete(context.Background(), m, "tabla_legacy", t.TempDir(), testLogger())
	if err == nil {
		t.Fatal("expected an error when the snapshot cannot be taken")
	}
	if drops := m.ExecsMatching("DROP TABLE"); len(drops) != 0 {
		t.Error("relation was dropped despite the failed backup")
	}
}
