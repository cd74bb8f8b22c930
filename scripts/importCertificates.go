package main

import (
	"certvault/approval"
	"certvault/config"
	"certvault/database"
	"certvault/ingest"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var (
		sqlitePath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:          "importcerts <file.xlsx>",
		Short:        "Import a certificate spreadsheet into the registry",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(sqlitePath)
			return importRun(cmd.Context(), cfg, args[0], asJSON)
		},
	}
	cmd.PersistentFlags().StringVar(&sqlitePath, "sqlite", "", "use this SQLite file instead of the configured database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.AddCommand(pruneCommand(&sqlitePath))
	return cmd
}

func pruneCommand(sqlitePath *string) *cobra.Command {
	return &cobra.Command{
		Use:          "prune-tokens",
		Short:        "Delete approval link tokens that expired or were used",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig(*sqlitePath)
			db, err := database.Connect(cfg)
			if err != nil {
				return err
			}
			machine := approval.NewMachine(db, approval.NewSigner(cfg.ApprovalSecret, cfg.ApprovalTokenTTL), nil)
			n, err := machine.PruneTokens(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			log.Printf("Pruned %d approval tokens", n)
			return nil
		},
	}
}

func loadConfig(sqlitePath string) *config.Config {
	cfg := config.LoadConfig()
	if sqlitePath != "" {
		cfg.DBDriver = "sqlite"
		cfg.SQLitePath = sqlitePath
	}
	return cfg
}

func importRun(ctx context.Context, cfg *config.Config, path string, asJSON bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}

	log.Printf("Importing %s (%d bytes)...", path, len(data))
	report, err := ingest.NewEngine(db, nil).Ingest(ctx, ingest.Upload{
		FileName: filepath.Base(path),
		Data:     data,
	})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	s := report.Summary
	log.Printf("Import completed!")
	log.Printf("Rows: %d, Inserted: %d, Failed processing: %d, Duplicates: %d",
		s.TotalRows, s.SuccessfullyInserted, s.ProcessingFailures, s.DBErrors)
	for _, re := range report.RowErrors {
		log.Printf("Row %d: %s", re.Row, re.Reason)
	}
	return nil
}
