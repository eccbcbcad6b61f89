package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge"
	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Expose the procedure as Model Context Protocol tools",
	Long: `Runs one session over MCP on standard input and output. The actions enabled
in the current step are listed as tools, and the list follows the procedure.
Logs go to standard error so the protocol stream stays clean.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, err := cli.Build(sigCtx, cfg, logger)
		if err != nil {
			return err
		}
		defer stop(rt)
		if err := rt.Watch(sigCtx, nil); err != nil {
			return err
		}

		core, err := rt.Bridge.NewCore(sigCtx, "")
		if err != nil {
			return err
		}
		srv := mcp.NewServer(core, actionbridge.Version,
			mcp.WithManager(rt.Bridge.Manager()),
			mcp.WithLogger(logger),
		)

		logger.Info("Starting MCP server (stdio)", "procedure", rt.ProcedureID, "session_id", core.ID())
		if err := srv.ServeStdio(sigCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
