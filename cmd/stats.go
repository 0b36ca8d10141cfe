package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/gradsync/internal/model"
)

var (
	statsTerm string
	statsTopN int
	statsJSON bool
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print aggregate statistics over synced applicants",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("stats"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		q := cfg.Stats.Query()
		if statsTerm != "" {
			q.Term = statsTerm
		}
		if statsTopN > 0 {
			q.TopN = statsTopN
		}

		stats, err := st.Stats(ctx, q)
		if err != nil {
			return eris.Wrap(err, "stats")
		}

		if statsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(stats)
		}
		formatStats(os.Stdout, stats)
		return nil
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsTerm, "term", "", "term to report on, e.g. \"Fall 2025\" (default from config)")
	statsCmd.Flags().IntVar(&statsTopN, "top-n", 0, "number of universities to rank (default from config)")
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(statsCmd)
}

// formatStats writes the statistics report to w. Missing aggregates print
// as "n/a".
func formatStats(out io.Writer, s *model.Stats) {
	q := s.Query
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Applicants for %s:\t%d\n", q.Term, s.TermApplicants)
	_, _ = fmt.Fprintf(w, "International:\t%s\n", pct(s.InternationalPct))
	_, _ = fmt.Fprintf(w, "Average GPA:\t%s\n", num(s.AvgGPA))
	_, _ = fmt.Fprintf(w, "Average GRE:\t%s\n", num(s.AvgGRE))
	_, _ = fmt.Fprintf(w, "Average GRE V:\t%s\n", num(s.AvgGREVerbal))
	_, _ = fmt.Fprintf(w, "Average GRE AW:\t%s\n", num(s.AvgGREAW))
	_, _ = fmt.Fprintf(w, "Average GPA, American, %s:\t%s\n", q.Term, num(s.AmericanTermAvgGPA))
	_, _ = fmt.Fprintf(w, "Acceptance rate, %s:\t%s\n", q.Term, pct(s.TermAcceptancePct))
	_, _ = fmt.Fprintf(w, "Average GPA, accepted, %s:\t%s\n", q.Term, num(s.AcceptedTermAvgGPA))
	_, _ = fmt.Fprintf(w, "%s %s %s applications:\t%d\n", q.ProgramUniversity, q.ProgramName, q.ProgramDegree, s.ProgramCount)
	_, _ = fmt.Fprintf(w, "%s %s %s acceptances, %s:\t%d\n", q.AcceptUniversity, q.AcceptProgram, q.AcceptDegree, q.AcceptTermYear, s.AcceptCount)
	_ = w.Flush()

	if len(s.TopUniversities) > 0 {
		_, _ = fmt.Fprintf(out, "\nTop %d universities:\n", len(s.TopUniversities))
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for i, u := range s.TopUniversities {
			_, _ = fmt.Fprintf(w, "  %d.\t%s\t%d\n", i+1, u.University, u.Applications)
		}
		_ = w.Flush()
	}
	if len(s.GPAByStatus) > 0 {
		_, _ = fmt.Fprintln(out, "\nAverage GPA by decision:")
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, g := range s.GPAByStatus {
			_, _ = fmt.Fprintf(w, "  %s\t%s\n", g.Status, num(g.AvgGPA))
		}
		_ = w.Flush()
	}
}

func num(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}

func pct(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *v)
}
