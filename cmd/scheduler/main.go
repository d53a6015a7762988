package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logger     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "scheduler",
	Short:         "Appointment scheduling service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger = zerolog.New(output).With().Timestamp().Logger()

	// .env is optional
	if err := godotenv.Load(); err == nil {
		logger.Debug().Msg("loaded .env")
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("SCHEDULER_CONFIG_PATH"), "path to config.yaml")
	rootCmd.AddCommand(serveCmd, exportCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("scheduler failed")
	}
}
