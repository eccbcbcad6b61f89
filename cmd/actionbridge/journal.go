package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/pkg/neuro"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Read the action journal",
}

var journalLsCmd = &cobra.Command{
	Use:   "ls [session-id]",
	Short: "List journaled sessions, or the entries of one session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		j, err := cli.Journal(cfg)
		if err != nil {
			return err
		}
		defer j.Close()

		if len(args) == 0 {
			ids, err := j.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Println(id)
			}
			return nil
		}

		entries, err := j.Entries(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SEQ\tTIME\tSTEP\tACTION\tRESULT")
		for _, e := range entries {
			_, text := neuro.RenderResult(e.Result)
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", e.Sequence, e.Timestamp.Format(time.RFC3339), e.FromStep, e.Request.Action, text)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalLsCmd)
}
