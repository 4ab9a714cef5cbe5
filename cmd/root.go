package cmd

import (
	"github.com/spf13/cobra"

	"github.com/riskforge/attree/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "attree",
	Short: "Collaborative attack-tree builder",
	Long: `Attree builds attack trees (AND/OR goal decomposition used in security
risk analysis), computes attribute values like cost and probability
bottom-up from leaves to root, and synchronizes trees across
collaborating clients in real time.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
}
