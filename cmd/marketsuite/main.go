package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"marketsuite-backend/lib/configutil"
	"marketsuite-backend/lib/mcp"
	"marketsuite-backend/lib/serviceutil"
	"marketsuite-backend/lib/telemetry"
	"marketsuite-backend/services/research"
)

const version = "1.0.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "marketsuite",
	Short: "marketsuite serves the market research tools over stdio.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tool surface on stdin/stdout.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := serviceutil.SignalContext()

		telemetry.InitSlog(false)
		telemetry.SetupFromEnv(ctx, "marketsuite")
		defer telemetry.Shutdown(ctx)
		telemetry.InstrumentPerfStats(ctx)

		config, err := configutil.ReadConfig[research.Config](configPath)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}

		service, err := research.NewService(config)
		if err != nil {
			serviceutil.Fatal("failed to initialize service", err)
		}
		defer service.Close()

		server := mcp.NewServer("marketsuite", version)
		err = service.RegisterTools(server)
		if err != nil {
			serviceutil.Fatal("failed to register tools", err)
		}

		// the process lives exactly as long as the host keeps stdin open
		err = server.Run(ctx, os.Stdin, os.Stdout)
		if err != nil {
			serviceutil.Fatal("transport failed", err)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.json5", "path to the service config")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
