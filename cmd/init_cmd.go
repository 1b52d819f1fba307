package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/caliopendata/datasync/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file interactively",
	Long:  `Walk through prompts to create a datasync configuration file at ~/.datasync/datasync.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)

		fmt.Println("Datasync Configuration Setup")
		fmt.Println("============================")
		fmt.Println()

		fmt.Println("Relational Store (PostgreSQL)")
		fmt.Println("-----------------------------")
		host := prompt(reader, "Host", "localhost")
		portStr := prompt(reader, "Port", "5432")
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port: %s", portStr)
		}
		database := prompt(reader, "Database name", "")
		schema := prompt(reader, "Schema", "public")
		username := prompt(reader, "Username", "")
		password := prompt(reader, "Password (or ${ENV:VAR}, ${VAULT:path#key}, ${AWS_SM:name})", "")
		fmt.Println()

		fmt.Println("Extracts")
		fmt.Println("--------")
		extractsDir := prompt(reader, "Directory with JSON/CSV extract files", "")
		fmt.Println()

		cfg := &config.Config{
			Version: config.CurrentVersion,
			Store: config.StoreConfig{
				Host:     host,
				Port:     port,
				Database: database,
				Schema:   schema,
				Username: username,
				Password: password,
			},
			Extracts: config.ExtractsConfig{
				Directory: extractsDir,
			},
		}

		cfgPath := config.ExpandHome(config.DefaultPath)
		if cfgFile != "" {
			cfgPath = cfgFile
		}

		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  datasync reconcile   — Preview structural changes to the store")
		fmt.Println("  datasync sync        — Run a full synchronization")
		fmt.Println("  datasync status      — Show the last run's report")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
