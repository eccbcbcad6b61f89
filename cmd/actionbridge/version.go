package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neurosurgery/actionbridge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of actionbridge",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("actionbridge version %s\n", strings.TrimSpace(actionbridge.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
