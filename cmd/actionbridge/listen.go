package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge/internal/cli"
)

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Accept agent connections",
	Long: `Accepts Neuro SDK agents on the given address, one session per connection.
Agents connect to /ws; the operator API is served on the same address.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.Agent.Listen
		if addr == "" {
			return errors.New("no listen address: set --addr or agent.listen")
		}

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, api, err := start(sigCtx)
		if err != nil {
			return err
		}
		defer stop(rt)

		logger.Info("Listening for agents", "addr", addr, "procedure", rt.ProcedureID)
		err = rt.Bridge.Listen(sigCtx, addr, api.Handler())
		if err == nil || errors.Is(err, http.ErrServerClosed) || errors.Is(err, context.Canceled) {
			logger.Info("Stopped", "signal", sigCtx.Signal())
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().String("addr", "", "address to listen on, e.g. :8000")
	bind(listenCmd, map[string]string{"addr": "agent.listen"})
}
