package store

import (
	"context"
	"fmt"
	"strings"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store for PostgreSQL using pgx.
type Postgres struct {
	connStr string
	schema  string
	pool    *pgxpool.Pool
}

// NewPostgres creates a Postgres store for the given connection string and
// schema (defaults to "public").
func NewPostgres(connStr, schema string) *Postgres {
	if schema == "" {
		schema = "public"
	}
	return &Postgres{connStr: connStr, schema: schema}
}

// Connect establishes the connection pool and verifies it with a ping.
func (p *Postgres) Connect(ctx context.Context, maxConns int32) error {
	cfg, err := pgxpool.ParseConfig(p.connStr)
	if err != nil {
		return fmt.Errorf("parsing connection string: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Monetary and measure values travel as shopspring decimals.
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to PostgreSQL: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("pinging PostgreSQL: %w", err)
	}
	p.pool = pool
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p.pool == nil {
		return fmt.Errorf("not connected; call Connect first")
	}
	return p.pool.Ping(ctx)
}

// Structure lists every base table in the schema with its columns.
func (p *Postgres) Structure(ctx context.Context) (*Structure, error) {
	st := &Structure{Relations: make(map[string]*Relation)}

	tableQuery := `
		SELECT c.relname
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		WHERE n.nspname = $1
		  AND c.relkind = 'r'
		ORDER BY c.relname`

	rows, err := p.pool.Query(ctx, tableQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("listing relations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning relation name: %w", err)
		}
		st.Relations[name] = &Relation{Name: name}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relations: %w", err)
	}
	if len(st.Relations) == 0 {
		return st, nil
	}

	colQuery := `
		SELECT table_name, column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = $1
		ORDER BY table_name, ordinal_position`

	rows, err = p.pool.Query(ctx, colQuery, p.schema)
	if err != nil {
		return nil, fmt.Errorf("listing columns: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, col, dataType, nullable string
		if err := rows.Scan(&table, &col, &dataType, &nullable); err != nil {
			return nil, fmt.Errorf("scanning column: %w", err)
		}
		rel, ok := st.Relations[table]
		if !ok {
			continue
		}
		rel.Columns = append(rel.Columns, Column{
			Name:     col,
			DataType: dataType,
			Nullable: nullable == "YES",
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating columns: %w", err)
	}
	return st, nil
}

func (p *Postgres) RowCount(ctx context.Context, relation string) (int64, error) {
	var count int64
	sql := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", quoteIdent(p.schema), quoteIdent(relation))
	if err := p.pool.QueryRow(ctx, sql).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting rows in %s: %w", relation, err)
	}
	return count, nil
}

func (p *Postgres) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Postgres) QueryRows(ctx context.Context, sql string, args ...any) ([]map[string]any, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var results []map[string]any
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make(map[string]any, len(descs))
		for i, d := range descs {
			row[d.Name] = vals[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return results, nil
}

func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
		p.pool = nil
	}
}

// QuoteIdent quotes a SQL identifier for safe interpolation into DDL and
// upsert statements built from catalog names.
func QuoteIdent(s string) string {
	return quoteIdent(s)
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
