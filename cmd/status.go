package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/config"
	"github.com/caliopendata/datasync/internal/report"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last synchronization run's report",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		path := filepath.Join(config.ExpandHome(cfg.Sync.ReportDir), "latest.json")
		rep, err := report.ReadJSON(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				fmt.Println("No synchronization run recorded yet. Run 'datasync sync' first.")
				return nil
			}
			return err
		}

		fmt.Print(report.FormatText(rep))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
