package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge"
	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/pkg/capability"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the procedure for consistency",
	Long: `Compiles every action schema and checks that steps, transitions and signals
reference declared actions and steps. With a capability file, also reports
actions no command performs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := cli.LoadProcedure(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		if _, err := actionbridge.New(def, capability.NewMux()); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		var unhandled []string
		if cfg.Capabilities.File != "" || cfg.Capabilities.Simulate {
			adapter, err := cli.NewAdapter(cfg.Capabilities, logger)
			if err != nil {
				return err
			}
			if lister, ok := adapter.(interface{ Actions() []string }); ok {
				known := make(map[string]bool)
				for _, name := range lister.Actions() {
					known[name] = true
				}
				for _, spec := range def.Actions {
					if !known[spec.Name] {
						unhandled = append(unhandled, spec.Name)
					}
				}
			}
		}

		fmt.Printf("Procedure %q is valid: %d steps, %d actions.\n", def.ID, len(def.Steps), len(def.Actions))
		for _, name := range unhandled {
			fmt.Printf("warning: no capability performs %q\n", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
