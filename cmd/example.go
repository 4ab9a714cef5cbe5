package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/riskforge/attree/internal/codec"
	"github.com/riskforge/attree/internal/tree"
)

var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Print the example attack tree as an importable document",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := codec.Marshal(codec.Export(tree.Example()))
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exampleCmd)
}
