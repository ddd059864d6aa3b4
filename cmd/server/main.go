// Command server runs the fund weight estimation service.
//
// Startup sequence:
//  1. Load configuration from the environment (and .env if present)
//  2. Construct the logger
//  3. Open the sqlite database and migrate the stores
//  4. Optionally import a CSV of monthly returns and exit
//  5. Wire the estimation pipeline and HTTP server
//  6. Register the scheduled refresh when configured
//  7. Serve until SIGINT/SIGTERM, then shut down gracefully
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/0juano/fundlens/internal/config"
	"github.com/0juano/fundlens/internal/database"
	"github.com/0juano/fundlens/internal/modules/charts"
	"github.com/0juano/fundlens/internal/modules/estimation"
	"github.com/0juano/fundlens/internal/modules/history"
	"github.com/0juano/fundlens/internal/modules/report"
	"github.com/0juano/fundlens/internal/scheduler"
	"github.com/0juano/fundlens/internal/server"
	"github.com/0juano/fundlens/pkg/logger"
)

func main() {
	importPath := flag.String("import", "", "import a CSV of monthly returns (symbol,month,pct_change) and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	db, err := database.Open(filepath.Join(cfg.DataDir, "fundlens.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	historyStore, err := history.NewStore(db.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init history store")
	}
	reportStore, err := report.NewStore(db.Conn(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to init report store")
	}

	if *importPath != "" {
		f, err := os.Open(*importPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *importPath).Msg("Failed to open import file")
		}
		defer f.Close()
		n, err := historyStore.ImportCSV(context.Background(), f)
		if err != nil {
			log.Fatal().Err(err).Str("path", *importPath).Msg("CSV import failed")
		}
		log.Info().Int("rows", n).Str("path", *importPath).Msg("CSV import complete")
		return
	}

	svc := estimation.NewService(cfg.Estimation, historyStore, log, estimation.Options{
		Charts:  charts.New(cfg.StaticDir, log),
		Reports: reportStore,
	})

	sched := scheduler.New(log)
	if cfg.RefreshSchedule != "" {
		job := scheduler.NewRefreshJob(svc, cfg.FundSymbol, log)
		if err := sched.AddJob(cfg.RefreshSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RefreshSchedule).Msg("Failed to register refresh job")
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := server.New(server.Config{
		Log:        log,
		DB:         db,
		Config:     cfg,
		Estimation: svc,
		Reports:    reportStore,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Str("data_dir", cfg.DataDir).Msg("fundlens started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
}
