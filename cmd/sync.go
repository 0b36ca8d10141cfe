package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var syncPageLimit int

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Crawl new results, enrich them, and merge into the database",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if syncPageLimit > 0 {
			cfg.Source.PageLimit = syncPageLimit
		}

		env, err := initSync(ctx, "sync")
		if err != nil {
			return err
		}
		defer env.Close()

		res, err := env.Pipeline.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "sync")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	syncCmd.Flags().IntVar(&syncPageLimit, "page-limit", 0, "max listing pages to fetch (default from config)")
	rootCmd.AddCommand(syncCmd)
}
