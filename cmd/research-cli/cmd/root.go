// Package cmd holds the research-cli subcommands: ad-hoc catalog
// queries and market reports from a terminal instead of the tool
// server.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"marketsuite-backend/lib/configutil"
	"marketsuite-backend/lib/serviceutil"
	"marketsuite-backend/lib/telemetry"
	"marketsuite-backend/services/research"
)

var (
	configPath string

	service *research.Service
	rootCtx context.Context
)

var rootCmd = &cobra.Command{
	Use:   "research-cli",
	Short: "research-cli runs market research queries from the terminal.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		rootCtx = serviceutil.SignalContext()
		telemetry.InitSlog(false)
		telemetry.SetupFromEnv(rootCtx, "research-cli")

		config, err := configutil.ReadConfig[research.Config](configPath)
		if err != nil {
			return err
		}
		service, err = research.NewService(config)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if service != nil {
			service.Close()
		}
		telemetry.Shutdown(rootCtx)
	},
}

func Execute() error {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "path to the service config")
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(genresCmd)
	rootCmd.AddCommand(circlesCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(latestCmd)
	return rootCmd.Execute()
}
