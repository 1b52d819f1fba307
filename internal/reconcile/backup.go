package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/caliopendata/datasync/internal/store"
)

// Snapshot is the backup written before a destructive operation.
type Snapshot struct {
	Relation string           `json:"relation"`
	TakenAt  time.Time        `json:"taken_at"`
	RowCount int64            `json:"row_count"`
	Rows     []map[string]any `json:"rows,omitempty"`
}

// snapshotRowLimit caps how many rows a pre-drop snapshot materializes.
// Beyond it the snapshot keeps the count only.
const snapshotRowLimit = 100000

// DropObsolete drops a relation that is no longer in the catalog. The drop
// is gated on a successful backup: row count and, up to snapshotRowLimit,
// row content are written to backupDir first, and if that write fails the
// relation is left untouched.
func DropObsolete(ctx context.Context, s store.Store, relation, backupDir string, logger *slog.Logger) (string, error) {
	snap, err := takeSnapshot(ctx, s, relation)
	if err != nil {
		return "", fmt.Errorf("snapshotting %s: %w", relation, err)
	}

	path, err := writeSnapshot(snap, backupDir)
	if err != nil {
		return "", fmt.Errorf("writing snapshot for %s: %w", relation, err)
	}
	logger.Info("snapshot written", "relation", relation, "rows", snap.RowCount, "path", path)

	sql := fmt.Sprintf("DROP TABLE IF EXISTS %s", store.QuoteIdent(relation))
	if _, err := s.Exec(ctx, sql); err != nil {
		return path, fmt.Errorf("dropping %s: %w", relation, err)
	}
	logger.Info("obsolete relation dropped", "relation", relation)
	return path, nil
}

func takeSnapshot(ctx context.Context, s store.Store, relation string) (*Snapshot, error) {
	count, err := s.RowCount(ctx, relation)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Relation: relation,
		TakenAt:  time.Now().UTC(),
		RowCount: count,
	}
	if count > 0 && count <= snapshotRowLimit {
		rows, err := s.QueryRows(ctx, fmt.Sprintf("SELECT * FROM %s", store.QuoteIdent(relation)))
		if err != nil {
			return nil, err
		}
		snap.Rows = rows
	}
	return snap, nil
}

func writeSnapshot(snap *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s-%s.json", snap.Relation, snap.TakenAt.Format("20060102-150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
