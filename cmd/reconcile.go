package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/reconcile"
)

var reconcileApply bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Preview or apply structural changes to the store",
	Long: `Compare the store's structure against the entity catalog and show the
relations and columns that would be created. Structural changes are
additive only; obsolete relations are listed but never touched. Use
--apply to execute the plan.`,
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

		structure, err := s.Structure(ctx)
		if err != nil {
			return fmt.Errorf("reading store structure: %w", err)
		}

		ops := reconcile.Plan(cat, structure)
		if len(ops) == 0 {
			fmt.Println("Store structure is up to date.")
		} else {
			fmt.Printf("Planned operations (%d):\n", len(ops))
			for _, op := range ops {
				switch op.Kind {
				case reconcile.OpCreateRelation:
					fmt.Printf("  create relation %s\n", op.Relation)
				case reconcile.OpAddColumn:
					fmt.Printf("  add column %s.%s\n", op.Relation, op.Column)
				}
			}
		}

		if obsolete := reconcile.Obsolete(cat, structure); len(obsolete) > 0 {
			fmt.Printf("\nObsolete relations (not touched): %s\n", strings.Join(obsolete, ", "))
			fmt.Println("Use 'datasync maintenance drop <relation>' to back up and remove one.")
		}

		if !reconcileApply || len(ops) == 0 {
			return nil
		}

		res := reconcile.Apply(ctx, s, ops, logger)
		fmt.Printf("\nApplied %d of %d operations.\n", res.Applied, len(ops))
		for _, oe := range res.Errors {
			fmt.Printf("  failed: %v\n", oe)
		}
		if !res.OK() {
			return fmt.Errorf("%d structural operations failed", len(res.Errors))
		}
		return nil
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileApply, "apply", false, "execute the planned operations")
	rootCmd.AddCommand(reconcileCmd)
}
