package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"sessionbook/internal/calendar"
	"sessionbook/internal/config"
	"sessionbook/internal/db"
	"sessionbook/internal/report"
)

var (
	exportProvider string
	exportYear     int
	exportMonth    int
	exportDir      string
)

var exportCmd = &cobra.Command{
	Use:   "export-calendar",
	Short: "Write a provider's month calendar to an .xlsx file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if exportProvider == "" {
			return fmt.Errorf("missing --provider")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		database, err := db.NewDB(cfg.Database.Path, logger)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer database.Close()

		if err := os.MkdirAll(exportDir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		month := time.Month(exportMonth)
		path := filepath.Join(exportDir, report.Filename(exportProvider, exportYear, month))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()

		cal := calendar.NewService(database, database, database, calendar.Options{ClampAvailable: cfg.ClampAvailable()}, logger)
		exporter := report.NewExporter(cal, database, database, logger)
		if err := exporter.WriteMonth(cmd.Context(), f, exportProvider, exportYear, month); err != nil {
			_ = os.Remove(path)
			return err
		}

		logger.Info().Str("file", path).Msg("calendar written")
		return nil
	},
}

func init() {
	now := time.Now()
	exportCmd.Flags().StringVar(&exportProvider, "provider", "", "provider id")
	exportCmd.Flags().IntVar(&exportYear, "year", now.Year(), "calendar year")
	exportCmd.Flags().IntVar(&exportMonth, "month", int(now.Month()), "calendar month (1-12)")
	exportCmd.Flags().StringVar(&exportDir, "out", ".", "output directory")
}
