package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newJournalCmd(a *app) *cobra.Command {
	var (
		limit  int
		output string
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recently finished calls",
		RunE: func(c *cobra.Command, _ []string) error {
			store, err := a.cfg.OpenJournal(a.fs)
			if err != nil {
				return err
			}
			if store == nil {
				return errors.New("journal is disabled; set journal.driver to file or sqlite")
			}
			defer store.Close()

			entries, err := store.Recent(c.Context(), limit)
			if err != nil {
				return err
			}

			if output != "table" {
				return render(c.OutOrStdout(), output, entries)
			}

			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTART\tCOMMAND\tRESULT\tRETRIES\tDURATION")
			for _, e := range entries {
				status := "ok"
				if !e.OK {
					status = e.Category
					if status == "" {
						status = "error"
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.ID, e.Start.Local().Format(time.DateTime), e.Command, status, e.Retries(),
					time.Duration(e.DurationMs)*time.Millisecond)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries (0 for all)")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}
