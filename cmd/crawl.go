package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/gradsync/internal/batch"
	"github.com/sells-group/gradsync/internal/crawl"
)

var (
	crawlOut       string
	crawlPageLimit int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl new results into a JSONL batch without merging",
	Long:  "Resolves the watermark from the database, crawls until it is reached, and writes the new records to a line-delimited JSON file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if crawlPageLimit > 0 {
			cfg.Source.PageLimit = crawlPageLimit
		}
		if err := cfg.Validate("crawl"); err != nil {
			return err
		}
		epoch, err := cfg.Source.EpochDate()
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		crawler, err := initCrawler()
		if err != nil {
			return err
		}

		wm := crawl.ResolveWatermark(ctx, st, epoch)
		res := crawler.Run(ctx, wm)
		if res.Aborted {
			fmt.Fprintf(os.Stderr, "Crawl aborted (%s); nothing written.\n", res.StopReason)
			return nil
		}

		out := crawlOut
		if out == "" {
			out = cfg.Batch.RawPath
		}
		if err := batch.WriteFile(out, res.Records); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Wrote %d new records from %d pages to %s (stopped: %s).\n",
			len(res.Records), res.Pages, out, res.StopReason)
		return nil
	},
}

func init() {
	crawlCmd.Flags().StringVar(&crawlOut, "out", "", "output JSONL path (default batch.raw_path)")
	crawlCmd.Flags().IntVar(&crawlPageLimit, "page-limit", 0, "max listing pages to fetch (default from config)")
	rootCmd.AddCommand(crawlCmd)
}
