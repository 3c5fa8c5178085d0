package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"driftlens/api"
	"driftlens/config"
	"driftlens/logging"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the driftlens HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger, err := logging.New(logging.Options{
				ConsoleLevel: logging.LogLevel(cfg.Logging.Level),
				FilePath:     cfg.Logging.FilePath,
				MaxSizeMB:    cfg.Logging.MaxSizeMB,
				MaxBackups:   cfg.Logging.MaxBackups,
				BufferSize:   cfg.Logging.BufferSize,
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}

			server, err := api.NewServer(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize server: %w", err)
			}
			defer server.Shutdown()

			log.Printf("driftlens listening on %s:%d", cfg.Server.Host, cfg.Server.Port)
			return server.Start()
		},
	}
}
