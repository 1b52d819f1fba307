package upsert

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/clean"
	"github.com/caliopendata/datasync/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func compositeDef() *catalog.Entity {
	return &catalog.Entity{
		Name: "movimientos_presupuestales",
		Fields: []catalog.Field{
			{Name: "bpin", Type: catalog.IntegerIdentifier},
			{Name: "periodo_corte", Type: catalog.BoundedText, MaxLength: 50},
			{Name: "adiciones", Type: catalog.MonetaryAmount, Accumulative: true},
		},
		PrimaryKey: []string{"bpin", "periodo_corte"},
	}
}

func record(bpin int64, periodo string, adiciones int64) clean.Record {
	return clean.Record{"bpin": bpin, "periodo_corte": periodo, "adiciones": adiciones}
}

func TestStatement_CompositeKey(t *testing.T) {
	sql := statement(compositeDef(), compositeDef().FieldNames(), 2)

	for _, want := range []string{
		`INSERT INTO "movimientos_presupuestales" ("bpin", "periodo_corte", "adiciones")`,
		"($1, $2, $3), ($4, $5, $6)",
		`ON CONFLICT ("bpin", "periodo_corte")`,
		`DO UPDATE SET "adiciones" = EXCLUDED."adiciones"`,
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("statement missing %q:\n%s", want, sql)
		}
	}
}

func TestStatement_NoNonKeyColumns(t *testing.T) {
	def := &catalog.Entity{
		Name:       "solo_claves",
		Fields:     []catalog.Field{{Name: "id", Type: catalog.IntegerIdentifier}},
		PrimaryKey: []string{"id"},
	}
	sql := statement(def, def.FieldNames(), 1)
	if !strings.HasSuffix(sql, "DO NOTHING") {
		t.Errorf("key-only entity should insert with DO NOTHING:\n%s", sql)
	}
}

func TestUpsert_SingleBatch(t *testing.T) {
	m := store.NewMock()
	e := New(m, testLogger(), 10)

	records := []clean.Record{
		record(100, "2024-01", 5),
		record(100, "2024-02", 7),
		record(101, "2024-01", 0),
	}
	written, failed := e.Upsert(context.Background(), records, compositeDef())
	if written != 3 || failed != 0 {
		t.Fatalf("written=%d failed=%d, want 3/0", written, failed)
	}
	if len(m.Execs) != 1 {
		t.Errorf("got %d statements, want 1 batched insert", len(m.Execs))
	}
	if len(m.Execs[0].Args) != 9 {
		t.Errorf("got %d args, want 9 (3 rows x 3 columns)", len(m.Execs[0].Args))
	}
}

func TestUpsert_SplitsIntoBatches(t *testing.T) {
	m := store.NewMock()
	e := New(m, testLogger(), 2)

	records := []clean.Record{
		record(1, "2024-01", 0),
		record(2, "2024-01", 0),
		record(3, "2024-01", 0),
		record(4, "2024-01", 0),
		record(5, "2024-01", 0),
	}
	written, failed := e.Upsert(context.Background(), records, compositeDef())
	if written != 5 || failed != 0 {
		t.Fatalf("written=%d failed=%d, want 5/0", written, failed)
	}
	if len(m.Execs) != 3 {
		t.Errorf("got %d statements, want 3 batches of size 2,2,1", len(m.Execs))
	}
}

func TestUpsert_PartialFailureIsolation(t *testing.T) {
	// One malformed record breaks its whole batch; the fallback must land
	// every other record and count exactly one failure.
	m := store.NewMock()
	bad := record(3, "2024-01", 0)
	m.ExecHook = func(sql string, args []any) error {
		for _, a := range args {
			if a == int64(3) {
				return errors.New("invalid input syntax")
			}
		}
		return nil
	}

	e := New(m, testLogger(), 10)
	records := []clean.Record{
		record(1, "2024-01", 0),
		record(2, "2024-01", 0),
		bad,
		record(4, "2024-01", 0),
		record(5, "2024-01", 0),
	}
	written, failed := e.Upsert(context.Background(), records, compositeDef())
	if written != 4 || failed != 1 {
		t.Fatalf("written=%d failed=%d, want 4/1", written, failed)
	}
}

func TestUpsert_Empty(t *testing.T) {
	m := store.NewMock()
	written, failed := New(m, testLogger(), 0).Upsert(context.Background(), nil, compositeDef())
	if written != 0 || failed != 0 {
		t.Errorf("written=%d failed=%d, want 0/0", written, failed)
	}
	if len(m.Execs) != 0 {
		t.Error("empty upsert should not touch the store")
	}
}
