package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/catalog"
	"github.com/caliopendata/datasync/internal/config"
	"github.com/caliopendata/datasync/internal/engine"
	"github.com/caliopendata/datasync/internal/extract"
	"github.com/caliopendata/datasync/internal/lock"
	"github.com/caliopendata/datasync/internal/report"
	"github.com/caliopendata/datasync/internal/store"
)

var syncExtractsDir string

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a full synchronization",
	Long: `Reconcile the store's structure against the entity catalog, then load
each entity's extract: relations that already hold rows are skipped,
records are cleaned and upserted by primary key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := connectStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		extractsDir := cfg.Extracts.Directory
		if syncExtractsDir != "" {
			extractsDir = syncExtractsDir
		}

		eng := engine.New(cat, s, extract.NewReader(config.ExpandHome(extractsDir)), logger, cfg.Sync.BatchSize)
		rep, runErr := eng.Run(ctx)

		reportDir := config.ExpandHome(cfg.Sync.ReportDir)
		jsonPath := filepath.Join(reportDir, rep.RunID+".json")
		if err := report.WriteJSON(rep, jsonPath); err != nil {
			logger.Error("writing report", "error", err)
		}
		if err := report.WriteJSON(rep, filepath.Join(reportDir, "latest.json")); err != nil {
			logger.Error("writing latest report", "error", err)
		}

		fmt.Print(report.FormatText(rep))
		fmt.Printf("Report: %s\n", jsonPath)

		if runErr != nil {
			return runErr
		}
		return nil
	},
}

func init() {
	syncCmd.Flags().StringVar(&syncExtractsDir, "extracts", "", "extracts directory override")
	rootCmd.AddCommand(syncCmd)
}

// loadCatalog returns the built-in catalog or, with --catalog, one loaded
// from a YAML file.
func loadCatalog() (*catalog.Catalog, error) {
	if catalogPath == "" {
		return catalog.Builtin(), nil
	}
	cat, err := catalog.Load(config.ExpandHome(catalogPath))
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	return cat, nil
}

func connectStore(ctx context.Context, cfg *config.Config) (*store.Postgres, error) {
	s := store.NewPostgres(cfg.Store.ConnString(), cfg.Store.Schema)
	if err := s.Connect(ctx, int32(cfg.Store.MaxConnections)); err != nil {
		return nil, fmt.Errorf("connecting to store: %w", err)
	}
	return s, nil
}
