package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/config"
	"github.com/caliopendata/datasync/internal/engine"
	"github.com/caliopendata/datasync/internal/extract"
	"github.com/caliopendata/datasync/internal/lock"
)

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Store maintenance operations",
}

var dropCmd = &cobra.Command{
	Use:   "drop <relation>",
	Short: "Back up and drop a relation the catalog no longer declares",
	Long: `Snapshot the relation's rows to a JSON backup file, then drop it. The
relation is never dropped if the backup cannot be written, and relations
declared in the catalog are refused outright.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		relation := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		if err := lock.Acquire(""); err != nil {
			return err
		}
		defer lock.Release("")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		s, err := connectStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.Close()

		eng := engine.New(cat, s, extract.NewReader(config.ExpandHome(cfg.Extracts.Directory)), logger, cfg.Sync.BatchSize)

		backupPath, err := eng.DropObsolete(ctx, relation, config.ExpandHome(cfg.Sync.BackupDir))
		if err != nil {
			return err
		}

		fmt.Printf("Dropped %s (backup: %s)\n", relation, backupPath)
		return nil
	},
}

var obsoleteCmd = &cobra.Command{
	Use:   "obsolete",
	Short: "List relations present in the store but absent from the catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := setupLogger(cfg)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}
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

		eng := engine.New(cat, s, extract.NewReader(config.ExpandHome(cfg.Extracts.Directory)), logger, cfg.Sync.BatchSize)

		obsolete, err := eng.ObsoleteRelations(ctx)
		if err != nil {
			return err
		}
		if len(obsolete) == 0 {
			fmt.Println("No obsolete relations.")
			return nil
		}
		for _, name := range obsolete {
			fmt.Println(name)
		}
		return nil
	},
}

func init() {
	maintenanceCmd.AddCommand(obsoleteCmd)
	maintenanceCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(maintenanceCmd)
}
