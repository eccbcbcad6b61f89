package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge/internal/config"
	"github.com/neurosurgery/actionbridge/internal/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
	loader  = config.NewLoader()
)

var rootCmd = &cobra.Command{
	Use:   "actionbridge",
	Short: "Bridge an AI agent to a simulated surgical procedure",
	Long: `ActionBridge lets an AI agent drive a surgical procedure over the Neuro SDK
protocol. Every request is validated against its schema and the current step
before the host performs it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loader.Load(cfgFile)
		if err != nil {
			return err
		}
		level, err := logging.ParseLevel(c.Logging.Level)
		if err != nil {
			return err
		}
		cfg = c
		logger = logging.New(level, c.Logging.Format)
		slog.SetDefault(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./actionbridge.yaml)")
	flags.StringP("procedure", "p", "", "procedure definition file (YAML or JSON)")
	flags.String("library", "", "directory of procedure and catalog documents")
	flags.String("procedure-id", "", "procedure to run from the library")
	flags.String("capabilities", "", "capability file binding actions to local commands")
	flags.Bool("simulate", false, "perform actions on the built-in simulator")
	flags.Bool("watch", false, "reload the procedure when its source changes")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	bind(rootCmd, map[string]string{
		"procedure":    "procedure.file",
		"library":      "procedure.library",
		"procedure-id": "procedure.id",
		"capabilities": "capabilities.file",
		"simulate":     "capabilities.simulate",
		"watch":        "procedure.watch",
		"log-level":    "logging.level",
		"log-format":   "logging.format",
	})
}

// bind maps flags of cmd onto configuration keys. A flag only overrides
// the configuration when it is set.
func bind(cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		f := cmd.PersistentFlags().Lookup(flag)
		if f == nil {
			f = cmd.Flags().Lookup(flag)
		}
		if err := loader.Viper().BindPFlag(key, f); err != nil {
			panic(err)
		}
	}
}
