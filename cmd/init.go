package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riskforge/attree/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactively create a config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			return fmt.Errorf("%s already exists; remove it first to reconfigure", config.DefaultPath)
		}
		_, err := config.RunWizard()
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
