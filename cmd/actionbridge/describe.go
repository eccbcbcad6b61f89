package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/internal/presentation/tui"
)

var describeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Print a readable summary of the procedure",
	Long:  `Renders the steps, actions and parameter bounds of the procedure as Markdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := cli.LoadProcedure(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		out := tui.DescribeProcedure(def)
		if raw, _ := cmd.Flags().GetBool("raw"); !raw && term.IsTerminal(int(os.Stdout.Fd())) {
			if rendered, err := tui.NewRenderer()(out); err == nil {
				out = rendered
			}
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(describeCmd)
	describeCmd.Flags().Bool("raw", false, "print Markdown without terminal styling")
}
