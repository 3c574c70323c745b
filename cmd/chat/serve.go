package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/sugarchat/internal/app"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/log"
)

var serveFlags struct {
	addr        string
	database    string
	jwtRequired bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootLogger := log.New("info")
		cfg, path, err := config.Load(bootLogger, configPath)
		if err != nil {
			return err
		}
		cfg.UpdateFrom(config.Config{
			Addr:         serveFlags.addr,
			DatabasePath: serveFlags.database,
			JWTRequired:  serveFlags.jwtRequired,
		})

		logger := log.New(cfg.LogLevel)
		logger.Info().Str("config", path).Msg("configuration loaded")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		application, err := app.New(&cfg, logger)
		if err != nil {
			return fmt.Errorf("start relay: %w", err)
		}

		logger.Info().Str("addr", cfg.Addr).Msg("starting sugarchat relay")
		if err := application.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("relay exited with error")
			return err
		}
		logger.Info().Msg("relay stopped")
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", "", "HTTP listen address")
	serveCmd.Flags().StringVar(&serveFlags.database, "db", "", "SQLite database path")
	serveCmd.Flags().BoolVar(&serveFlags.jwtRequired, "jwt-required", false, "reject WebSocket hellos without a token")
}
