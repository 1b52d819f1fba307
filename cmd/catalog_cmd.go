package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/config"
)

var catalogExportPath string

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Show the entity catalog",
	Long: `List the entities the store is synchronized against, with their keys
and field counts. Use --export to write the catalog as YAML, as a
starting point for a customized catalog passed back via --catalog.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		if catalogExportPath != "" {
			if err := cat.Save(config.ExpandHome(catalogExportPath)); err != nil {
				return fmt.Errorf("exporting catalog: %w", err)
			}
			fmt.Printf("Catalog written to %s\n", catalogExportPath)
			return nil
		}

		for i := range cat.Entities {
			e := &cat.Entities[i]
			fmt.Printf("%s\n", e.Name)
			fmt.Printf("  key: %s\n", strings.Join(e.PrimaryKey, ", "))
			fmt.Printf("  fields: %d\n", len(e.Fields))
		}
		return nil
	},
}

func init() {
	catalogCmd.Flags().StringVar(&catalogExportPath, "export", "", "write the catalog to a YAML file")
	rootCmd.AddCommand(catalogCmd)
}
