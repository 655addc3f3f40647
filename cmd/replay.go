package cmd

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/mergedoc/mergedoc/internal/archive"
	"github.com/mergedoc/mergedoc/internal/doc"
	"github.com/mergedoc/mergedoc/internal/snapshot"
)

var replayOut string

var replayCmd = &cobra.Command{
	Use:   "replay [archive.db] [doc key]",
	Short: "Rebuild a document from its logged change records",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, key := args[0], args[1]

		logDB, err := archive.OpenLog(dbPath)
		if err != nil {
			return err
		}
		defer func() { _ = logDB.Close() }()

		changes, err := logDB.Changes(key)
		if err != nil {
			return err
		}
		if len(changes) == 0 {
			return fmt.Errorf("no changes logged for %q", key)
		}

		d := doc.New()
		if err := d.ApplyChanges(changes); err != nil {
			return fmt.Errorf("replay %q: %w", key, err)
		}
		if n := d.PendingCount(); n > 0 {
			fmt.Printf("warning: %d records still waiting on missing dependencies\n", n)
		}

		snaps, err := snapshot.NewStore(osfs.New("."), replayOut)
		if err != nil {
			return err
		}
		if err := snaps.Save(key, d.Save()); err != nil {
			return err
		}
		fmt.Printf("replayed %d records for %q into %s/\n", len(changes), key, replayOut)
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOut, "out", "o", "snapshots", "Directory for the rebuilt snapshot")
	rootCmd.AddCommand(replayCmd)
}
