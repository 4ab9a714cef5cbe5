package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/riskforge/attree/internal/codec"
)

var showCmd = &cobra.Command{
	Use:   "show <tree.json>",
	Short: "Render an exported tree document as a textual outline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		t, err := codec.Decode(raw)
		if err != nil {
			return fmt.Errorf("importing %s: %w", args[0], err)
		}

		fmt.Print(t.Outline())

		root := t.Root()
		reg := t.Registry()
		fmt.Println()
		for _, s := range reg.List() {
			if v, ok := root.Values[s.Name]; ok && !v.Deleted {
				fmt.Printf("root %s: %s\n", s.Name, s.Domain.Format(v))
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
}
