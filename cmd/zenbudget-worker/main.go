package main

import (
	"context"
	"errors"
	"os"
	"time"

	"zenbudget/internal/amqp"
	"zenbudget/internal/cli"
	"zenbudget/internal/log"
	gsheet "zenbudget/internal/sheets/google"
	"zenbudget/internal/storage"
	"zenbudget/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger("zenbudget-worker")
	logger.Info("Starting zenbudget-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if err := cfg.ValidateMirror(); err != nil {
		logger.Error("Mirror configuration invalid", log.FieldError, err)
		os.Exit(1)
	}

	ctx := context.Background()

	sheetsClient, err := gsheet.NewWithServiceAccount(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	if err := sheetsClient.EnsureHeader(ctx); err != nil {
		logger.Error("Failed to prepare mirror sheet", log.FieldError, err, "sheet", cfg.GoogleSheetName)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}

	// Resync reads the state the server persisted; only the sqlite backend
	// shares it across processes.
	var store storage.StateStore
	var repo *storage.SQLiteRepository
	if cfg.DataBackend == "sqlite" {
		repo = cli.InitSQLite(logger, cfg.SQLiteDBPath)
		store = repo
	}
	mirror := worker.NewMirrorWorker(sheetsClient, store, logger)

	runCtx, done := cli.GracefulShutdown(logger, 15*time.Second, func() {
		if err := amqpClient.Close(); err != nil {
			logger.Error("AMQP close failed", log.FieldError, err)
		}
		if repo != nil {
			if err := repo.Close(); err != nil {
				logger.Error("SQLite close failed", log.FieldError, err)
			}
		}
	})

	if cfg.MirrorResyncOnStart {
		if err := mirror.Resync(runCtx); err != nil {
			// Continue: incremental events still keep the sheet current.
			logger.Error("Startup resync failed", log.FieldError, err)
		}
	}

	if err := amqpClient.ConsumeStateEvents(runCtx, mirror.HandleStateEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", log.FieldError, err)
		os.Exit(1)
	}

	cli.WaitForShutdown(runCtx, done)
	logger.Info("Worker stopped gracefully")
}
