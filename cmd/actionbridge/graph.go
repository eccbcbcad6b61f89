package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/internal/presentation/graph"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the procedure as a Mermaid diagram",
	Long: `Prints the procedure as a Mermaid flowchart. With --session, the steps the
session visited and its current step are highlighted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := cli.LoadProcedure(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}

		var overlay *graph.Overlay
		if id, _ := cmd.Flags().GetString("session"); id != "" {
			store, closeStore, err := cli.OpenStore(cfg)
			if err != nil {
				return err
			}
			defer closeStore()
			st, err := store.Load(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to load session %q: %w", id, err)
			}
			overlay = graph.OverlayFor(st)
		}

		fmt.Print(graph.GenerateMermaid(def, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("session", "", "highlight the path of a stored session")
}
