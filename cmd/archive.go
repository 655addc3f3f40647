package cmd

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/spf13/cobra"

	"github.com/mergedoc/mergedoc/internal/archive"
)

// archiveConfig is the HCL configuration for the archiver.
type archiveConfig struct {
	DBPath        string `hcl:"db_path"`
	SpoolDir      string `hcl:"spool_dir"`
	RemoveSpooled bool   `hcl:"remove_spooled,optional"`
}

var archiveConfigPath string

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run the change-record archiver over a spool directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg archiveConfig
		if err := hclsimple.DecodeFile(archiveConfigPath, nil, &cfg); err != nil {
			return fmt.Errorf("load config %s: %w", archiveConfigPath, err)
		}

		logDB, err := archive.OpenLog(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = logDB.Close() }()

		w, err := archive.WatchSpool(logDB, cfg.SpoolDir, cfg.RemoveSpooled)
		if err != nil {
			return err
		}
		log.Printf("archiving %s into %s", cfg.SpoolDir, cfg.DBPath)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return w.Close()
	},
}

func init() {
	archiveCmd.Flags().StringVarP(&archiveConfigPath, "config", "c", "archive.hcl", "Path to archiver config")
	rootCmd.AddCommand(archiveCmd)
}
