package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"svagent/internal/config"
	"svagent/internal/history"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recent runs, or the attempts of one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.envFile)
			if err != nil {
				return err
			}
			if cfg.History == "" {
				return fmt.Errorf("history is disabled; set SV_AGENT_HISTORY")
			}
			store, err := openHistory(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				attempts, err := store.Attempts(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printAttempts(cmd.OutOrStdout(), attempts)
				return nil
			}
			runs, err := store.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of runs to list")
	return cmd
}

func printRuns(w io.Writer, runs []history.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODEL\tATTEMPTS\tRESULT\tSPEC")
	for _, r := range runs {
		result := "FAILED"
		switch {
		case r.Passed:
			result = "PASS"
		case r.FinishedAt.IsZero():
			result = "INCOMPLETE"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.StartedAt.Format(time.DateTime), r.Model, r.Attempts, result, oneLine(r.Spec, 60))
	}
	_ = tw.Flush()
}

func printAttempts(w io.Writer, attempts []history.Attempt) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTEMPT\tOUTCOME\tDURATION\tDIAGNOSTIC")
	for _, a := range attempts {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", a.Index, a.Outcome, a.Duration.Round(time.Millisecond), oneLine(a.Diagnostic, 80))
	}
	_ = tw.Flush()
}

func oneLine(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > width {
		return s[:width-3] + "..."
	}
	return s
}
