package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge/internal/cli"
	"github.com/neurosurgery/actionbridge/pkg/adapters/websocket"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Dial the agent and serve the procedure",
	Long: `Connects to the agent's Neuro SDK endpoint and runs one session per
connection, reconnecting with backoff when the agent is unreachable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		rt, api, err := start(sigCtx)
		if err != nil {
			return err
		}
		defer stop(rt)

		if cfg.HTTP.Addr != "" {
			go serveAPI(sigCtx, cfg.HTTP.Addr, api)
		}

		client := websocket.NewClient(cfg.Agent.URL)
		client.Reconnect = websocket.ReconnectConfig{
			InitialDelay: cfg.Agent.Reconnect.Initial,
			MaxDelay:     cfg.Agent.Reconnect.Max,
			Factor:       cfg.Agent.Reconnect.Factor,
			MaxAttempts:  cfg.Agent.Reconnect.Attempts,
		}
		client.PingInterval = cfg.Agent.PingInterval
		client.Logger = logger

		logger.Info("Connecting to agent", "url", cfg.Agent.URL, "procedure", rt.ProcedureID)
		err = rt.Bridge.Connect(sigCtx, client)
		if errors.Is(err, context.Canceled) {
			logger.Info("Stopped", "signal", sigCtx.Signal())
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(connectCmd)
	connectCmd.Flags().String("url", "", "agent WebSocket URL")
	connectCmd.Flags().String("http", "", "operator API address, e.g. :8080")
	bind(connectCmd, map[string]string{
		"url":  "agent.url",
		"http": "http.addr",
	})
}
