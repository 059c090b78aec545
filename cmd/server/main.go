package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/pantry/internal/config"
	"github.com/mamadbah2/pantry/internal/metrics"
	"github.com/mamadbah2/pantry/internal/repository"
	"github.com/mamadbah2/pantry/internal/repository/memory"
	"github.com/mamadbah2/pantry/internal/repository/mongodb"
	"github.com/mamadbah2/pantry/internal/repository/sheets"
	"github.com/mamadbah2/pantry/internal/scheduler"
	"github.com/mamadbah2/pantry/internal/seed"
	"github.com/mamadbah2/pantry/internal/server/handlers"
	"github.com/mamadbah2/pantry/internal/server/router"
	commandsvc "github.com/mamadbah2/pantry/internal/service/commands"
	"github.com/mamadbah2/pantry/internal/service/ledger"
	reportingsvc "github.com/mamadbah2/pantry/internal/service/reporting"
	whatsappsvc "github.com/mamadbah2/pantry/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/pantry/pkg/clients/whatsapp"
	"github.com/mamadbah2/pantry/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)
	gin.SetMode(gin.ReleaseMode)

	store, err := openStore(context.Background(), cfg, baseLogger)
	if err != nil {
		baseLogger.Fatal("failed to init store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			baseLogger.Error("failed to close store", zap.Error(err))
		}
	}()

	if cfg.Store.SeedFile != "" {
		file, err := seed.LoadFile(cfg.Store.SeedFile)
		if err != nil {
			baseLogger.Fatal("failed to read seed file", zap.Error(err))
		}
		res, err := seed.Apply(context.Background(), store, file, time.Now())
		if err != nil {
			baseLogger.Fatal("failed to seed store", zap.Error(err))
		}
		baseLogger.Info("store seeded", zap.Int("products", res.Products), zap.Int("recipes", res.Recipes))
	}

	m := metrics.New()
	ledgerOpts := []ledger.Option{
		ledger.WithRecorder(m),
		ledger.WithTimeout(cfg.Ledger.OpTimeout),
	}

	var exporter *sheets.IssueExporter
	if cfg.Sheets.Enabled() {
		sheetsRepo, err := sheets.NewGoogleSheetRepository(context.Background(), cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		exporter = sheets.NewIssueExporter(sheetsRepo, cfg.Sheets.IssuesRange, baseLogger.Named("sheets.exporter"))
		ledgerOpts = append(ledgerOpts, ledger.WithObserver(exporter))
		baseLogger.Info("issue spreadsheet mirror enabled")
	}

	ledgerSvc := ledger.NewService(store, baseLogger.Named("svc.ledger"), ledgerOpts...)
	reportingSvc := reportingsvc.NewService(store, baseLogger.Named("svc.reporting"))

	deps := router.Dependencies{
		API:     handlers.NewAPIHandler(ledgerSvc, store, baseLogger.Named("handlers.api")),
		Metrics: m,
		Logger:  baseLogger.Named("router"),
	}

	var notifier scheduler.Notifier
	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(whatsappclient.Options{
			BaseURL:       cfg.WhatsApp.BaseURL,
			APIVersion:    cfg.WhatsApp.APIVersion,
			AccessToken:   cfg.WhatsApp.AccessToken,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			RetryCount:    2,
		})
		dispatcher := commandsvc.NewService(ledgerSvc, store, reportingSvc, cfg.Alerts.LowStockThreshold, baseLogger.Named("svc.commands"))
		messagingSvc := whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, dispatcher, baseLogger.Named("svc.whatsapp"))
		deps.Webhook = handlers.NewWebhookHandler(messagingSvc, baseLogger.Named("handlers.whatsapp"))
		if cfg.WhatsApp.ManagerID != "" {
			notifier = messagingSvc
		}
		baseLogger.Info("whatsapp integration enabled")
	} else {
		baseLogger.Warn("whatsapp token missing, chat commands and notifications disabled")
	}

	sched, err := scheduler.NewScheduler(cfg.Alerts, reportingSvc, notifier, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router.New(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	if exporter != nil {
		exporter.Wait()
	}
}

func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Store, error) {
	if cfg.Store.Driver == config.StoreMemory {
		log.Warn("using in-memory store, data is lost on restart")
		return memory.NewStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	return mongodb.NewMongoDBRepository(connectCtx, cfg.MongoDB.URI, cfg.MongoDB.DBName, log.Named("repo.mongodb"))
}
