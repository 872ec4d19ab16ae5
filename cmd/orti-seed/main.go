package main

import (
	"context"
	"os"
	"time"

	"orti/internal/amqp"
	"orti/internal/cli"
	"orti/internal/log"
	"orti/internal/seed"
)

// orti-seed applies a chart of accounts to the configured store. The chart
// path defaults to SEED_FILE and may be given as the only argument.
func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	cfg := cli.LoadAndValidateConfig(logger)

	path := cfg.SeedFile
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	chart, err := seed.LoadChart(path)
	if err != nil {
		logger.Error("Failed to load chart", "path", path, log.FieldError, err)
		os.Exit(1)
	}

	if chart.Company.Code != cfg.CompanyCode {
		logger.Warn("Chart company differs from COMPANY_CODE",
			"chart_company", chart.Company.Code,
			log.FieldCompany, cfg.CompanyCode)
	}
	if cfg.DataBackend == "memory" {
		logger.Warn("Seeding the memory backend has no lasting effect")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	backend := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := backend.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	company, res, err := seed.Apply(ctx, backend.Store, chart, logger)
	if err != nil {
		logger.Error("Failed to apply chart", "path", path, log.FieldError, err)
		cancel()
		os.Exit(1)
	}

	// Running servers reload when the structure changed
	if backend.Changes != nil && (res.CategoriesCreated > 0 || res.SubcategoriesCreated > 0) {
		msg := amqp.NewChangeMessage(company.ID, time.Now().In(cfg.Location()).Year(), amqp.WholeYear, amqp.ReasonSeed)
		if err := backend.Changes.PublishChange(ctx, msg); err != nil {
			logger.Warn("Failed to announce seeded structure", log.FieldError, err)
		}
	}

	logger.Info("Seed complete",
		log.FieldCompany, company.Code,
		"categories_created", res.CategoriesCreated,
		"subcategories_created", res.SubcategoriesCreated)
}
