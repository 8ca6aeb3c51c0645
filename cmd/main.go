package main

import (
	"log/slog"
	"os"

	"github.com/Dosada05/event-registration/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "event-registration",
	Short:         "Event registration and team formation service",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	return logger
}

func loadConfig(logger *slog.Logger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		return nil, err
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort), slog.Bool("postgres", cfg.DatabaseURL != ""))
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}
