package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/procurehq/p2p-engine/internal/approval"
	"github.com/procurehq/p2p-engine/internal/config"
	httpserver "github.com/procurehq/p2p-engine/internal/interfaces/http"
	"github.com/procurehq/p2p-engine/internal/notification"
	"github.com/procurehq/p2p-engine/internal/order"
	"github.com/procurehq/p2p-engine/internal/reconcile"
	"github.com/procurehq/p2p-engine/internal/repository"
	"github.com/procurehq/p2p-engine/internal/service"
	"github.com/procurehq/p2p-engine/internal/worker"
	"github.com/procurehq/p2p-engine/pkg/database"
	"github.com/procurehq/p2p-engine/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	flag.Parse()

	// Local .env files override nothing, they only fill gaps.
	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting procurement workflow engine",
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(context.Background(), cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	if err := os.MkdirAll(cfg.Order.ExportDir, 0755); err != nil {
		logger.Fatal("Failed to create export directory", zap.Error(err))
	}

	// Repositories.
	requestRepo := repository.NewRequestRepository(db.DB, logger)
	approvalRepo := repository.NewApprovalRepository(db.DB, logger)
	orderRepo := repository.NewOrderRepository(db.DB, logger)
	receiptRepo := repository.NewReceiptRepository(db.DB, logger)
	jobRepo := repository.NewJobRepository(db.DB, logger)
	notificationRepo := repository.NewNotificationRepository(db.DB, logger)

	// Domain services.
	requestService := service.NewRequestService(db, requestRepo, logger)

	engine := approval.NewEngine(db, requestRepo, approvalRepo, jobRepo, approval.Config{
		LevelTwoThreshold: decimal.NewFromFloat(cfg.Approval.LevelTwoThreshold),
		JobMaxAttempts:    cfg.Worker.MaxAttempts,
	}, logger)

	generator := order.NewGenerator(db, requestRepo, orderRepo, order.Config{
		NumberMaxAttempts: cfg.Order.NumberMaxAttempts,
		DefaultVendor:     cfg.Order.DefaultVendor,
	}, logger)

	documentWriter := order.NewDocumentWriter(cfg.Order.ExportDir, logger)

	reconciler := reconcile.NewReconciler(reconcile.Config{
		Weights: reconcile.Weights{
			Vendor: cfg.Reconcile.VendorWeight,
			Total:  cfg.Reconcile.TotalWeight,
			Items:  cfg.Reconcile.ItemsWeight,
			Date:   cfg.Reconcile.DateWeight,
		},
		ReviewThreshold: cfg.Reconcile.ReviewThreshold,
	}, logger)

	receiptService := service.NewReceiptService(db, receiptRepo, orderRepo, jobRepo,
		reconciler, cfg.Worker.MaxAttempts, logger)

	notificationService := notification.NewService(
		notification.NewLogSender(logger), notificationRepo, logger)

	// Background job processing.
	jobWorker := worker.NewJobWorker(worker.JobWorkerConfig{
		PollInterval:   cfg.Worker.PollInterval,
		InitialBackoff: cfg.Worker.InitialBackoff,
		MaxBackoff:     cfg.Worker.MaxBackoff,
	}, jobRepo, logger)

	handlers := worker.NewHandlers(generator, documentWriter, receiptService,
		notificationService, orderRepo, jobRepo, nil, cfg.Worker.MaxAttempts, logger)
	handlers.RegisterAll(jobWorker)

	manager := worker.NewManager(logger)
	manager.Register(jobWorker)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	if err := manager.StartAll(workerCtx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server.
	server := httpserver.NewServer(httpserver.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, requestService, engine, generator, orderRepo, receiptService, notificationService, logger)

	serverCtx, stopServer := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(serverCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
		stopServer()
		// Give the HTTP shutdown a moment to drain in-flight requests.
		select {
		case <-errCh:
		case <-time.After(15 * time.Second):
		}
	case err := <-errCh:
		logger.Error("HTTP server failed", zap.Error(err))
		stopServer()
	}

	manager.StopAll()
	logger.Info("Server exited")
}
