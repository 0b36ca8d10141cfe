package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/gradsync/internal/pipeline"
)

var loadCmd = &cobra.Command{
	Use:   "load <file.jsonl>",
	Short: "Merge a JSON or JSONL file of records into the database",
	Long:  "Inserts every record whose pid is not already stored. Existing rows are never modified, so a file can be loaded repeatedly. The student type is read from student_type or us_or_international.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("load"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := pipeline.Load(ctx, st, args[0])
		if err != nil {
			return err
		}
		total, err := st.CountApplicants(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stdout, "Read %d records (%d malformed lines skipped), inserted %d. Table now holds %d rows.\n",
			res.Read, res.Skipped, res.Inserted, total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadCmd)
}
