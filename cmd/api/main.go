package main

import (
	"log"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"

	"speccheck/adapters/llm"
	"speccheck/adapters/postgres"
	"speccheck/app"
	"speccheck/internal/api"
	"speccheck/internal/config"
	"speccheck/ports"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("configuration: %v", err)
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
		log.Fatalf("oracle client: %v", err)
	}

	var audit ports.AuditStore
	if cfg.Database.URL != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatalf("connect audit store: %v", err)
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("migrate audit store: %v", err)
		}
		audit = postgres.NewAuditRepository(db)
	}

	compare := app.NewCompareService(oracle, cfg.Compare)
	server := api.NewServer(compare, audit)

	addr := ":" + cfg.Server.Port
	log.Printf("speccheck api listening on %s", addr)
	if err := http.ListenAndServe(addr, server.Router()); err != nil {
		log.Fatalf("serve: %v", err)
	}
}
