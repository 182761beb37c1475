package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"speccheck/adapters/excel"
	"speccheck/adapters/llm"
	"speccheck/adapters/postgres"
	"speccheck/app"
	"speccheck/domain/docs"
	"speccheck/internal/config"
	"speccheck/internal/report"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "speccheck",
		Short: "Verify extracted source documents against a master specification",
	}

	rootCmd.AddCommand(newVerifyCmd(), newRunsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVerifyCmd() *cobra.Command {
	var masterPath string
	var outDir string

	cmd := &cobra.Command{
		Use:   "verify [extracted-text-files...]",
		Short: "Compare extracted document text against a master specification workbook",
		Long: `Compare one or more extracted documents against the master specification.

Writes report.md, report.xlsx and corrected.xlsx into the output directory.

Example: speccheck verify --master master.xlsx --out results coa1.txt coa2.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			masterBytes, err := os.ReadFile(masterPath)
			if err != nil {
				return fmt.Errorf("read master workbook: %w", err)
			}
			rows, err := excel.LoadSpecification(masterBytes)
			if err != nil {
				return err
			}

			var documents []docs.ExtractedDocument
			for _, path := range args {
				text, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read document %s: %w", path, err)
				}
				documents = append(documents, docs.ExtractedDocument{
					DocumentID: filepath.Base(path),
					RawText:    string(text),
				})
			}

			oracle, err := llm.NewClient(llm.Config{
				APIKey:      cfg.Oracle.APIKey,
				BaseURL:     cfg.Oracle.BaseURL,
				Model:       cfg.Oracle.Model,
				Timeout:     cfg.Oracle.Timeout,
				Temperature: cfg.Oracle.Temperature,
				MaxTokens:   cfg.Oracle.MaxTokens,
			}, cfg.Oracle.Retry)
			if err != nil {
				return err
			}

			compare := app.NewCompareService(oracle, cfg.Compare)
			run := compare.CompareAll(cmd.Context(), filepath.Base(masterPath), rows, documents)
			rep := report.Build(run.Verdicts)

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := os.WriteFile(filepath.Join(outDir, "report.md"), []byte(report.RenderMarkdown(rep)), 0o644); err != nil {
				return fmt.Errorf("write report.md: %w", err)
			}
			workbook, err := excel.ExportReport(rep)
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(outDir, "report.xlsx"), workbook, 0o644); err != nil {
				return fmt.Errorf("write report.xlsx: %w", err)
			}
			corrected, err := excel.CorrectMaster(masterBytes, run.Verdicts)
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(outDir, "corrected.xlsx"), corrected, 0o644); err != nil {
				return fmt.Errorf("write corrected.xlsx: %w", err)
			}

			if cfg.Database.URL != "" {
				db, err := sqlx.Connect("postgres", cfg.Database.URL)
				if err != nil {
					return fmt.Errorf("connect audit store: %w", err)
				}
				defer db.Close()
				if err := postgres.Migrate(db); err != nil {
					return err
				}
				if err := postgres.NewAuditRepository(db).SaveRun(cmd.Context(), run); err != nil {
					return fmt.Errorf("persist run: %w", err)
				}
			}

			fmt.Printf("run %s: %d match, %d mismatch, %d not found, %d error\n",
				run.ID, rep.Totals.Match, rep.Totals.Mismatch, rep.Totals.NotFound, rep.Totals.Error)
			for _, warning := range run.Warnings {
				fmt.Println("warning:", warning)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&masterPath, "master", "", "path to the master specification workbook (required)")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.MarkFlagRequired("master")
	return cmd
}

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List persisted comparison runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			url := os.Getenv("DATABASE_URL")
			if url == "" {
				return fmt.Errorf("DATABASE_URL is required to list runs")
			}
			db, err := sqlx.Connect("postgres", url)
			if err != nil {
				return fmt.Errorf("connect audit store: %w", err)
			}
			defer db.Close()

			summaries, err := postgres.NewAuditRepository(db).ListRuns(context.Background())
			if err != nil {
				return err
			}
			for _, s := range summaries {
				fmt.Printf("%s  %s  %s  %d document(s)  %s\n",
					s.ID, s.CreatedAt.Format("2006-01-02 15:04:05"), s.MasterName, s.DocumentCount, s.Status)
			}
			return nil
		},
	}
}
