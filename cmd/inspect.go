package cmd

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/mergedoc/mergedoc/internal/doc"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [snapshot file]",
	Short: "Print the materialized tree of a snapshot as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		d, err := doc.Load(b)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		fmt.Printf("actor: %s\n", d.Actor())
		fmt.Println(oj.JSON(d.Materialize(), &oj.Options{Indent: 2, Sort: true}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
