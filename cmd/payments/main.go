package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	cfg "github.com/Moxx-Company/Nomadly2-sub000/config"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/gateway"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/handlers"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/provisioning"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/rates"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/usecases"
	repository "github.com/Moxx-Company/Nomadly2-sub000/internal/usecases/repository"
	"github.com/Moxx-Company/Nomadly2-sub000/internal/workers"
	"github.com/Moxx-Company/Nomadly2-sub000/pkg/database"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// Server timeout constants.
const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
)

func main() {
	time.Local = time.UTC

	// Parse configuration
	config, err := cfg.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	// Setup logging
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if config.App.Debug {
		opts.Level = slog.LevelDebug
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrationsPath := "./migrations"
	if workDir, err := os.Getwd(); err == nil {
		if _, err := os.Stat(filepath.Join(workDir, "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "migrations")
		} else if _, err := os.Stat(filepath.Join(workDir, "..", "migrations")); !os.IsNotExist(err) {
			migrationsPath = filepath.Join(workDir, "..", "migrations")
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Warn("Starting application with configuration",
		"debug", config.App.Debug,
		"server_port", config.HTTP.Port,
		"gateway_url", config.Gateway.APIURL,
		"rates_url", config.Rates.APIURL)

	// Connect to Database
	pg, err := database.New(config,
		database.MaxPoolSize(config.DB.PoolMax),
		database.ConnTimeout(config.DB.ConnectTimeout),
		database.HealthCheckPeriod(config.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		slog.Error("postgres connection failed", slog.String("error", err.Error()))
		return
	}
	defer pg.Close()

	// Run database migrations
	logger.Info("Running database migrations", "path", migrationsPath)
	if err = database.RunMigrations(logger, config.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("Failed to run database migrations", "error", err)
		log.Fatal(err)
	}
	logger.Info("Database migrations completed successfully")

	// Create repositories
	ordersRepository := repository.NewOrdersRepository(logger, pg)
	walletsRepository := repository.NewWalletsRepository(logger, pg)
	bindingsRepository := repository.NewBindingsRepository(logger, pg)
	observationsRepository := repository.NewObservationsRepository(logger, pg)
	reconciliationsRepository := repository.NewReconciliationsRepository(logger, pg)

	// Create external clients
	gatewayClient := gateway.NewClient(
		logger,
		config.Gateway.APIKey,
		config.Gateway.APIURL,
		config.Gateway.CallbackURL,
		time.Duration(config.Gateway.TimeoutSeconds)*time.Second,
	)

	rateConverter := rates.NewConverter(
		logger,
		config.Rates.APIKey,
		config.Rates.APIURL,
		time.Duration(config.Rates.TimeoutSeconds)*time.Second,
		time.Duration(config.Rates.CacheTTLSeconds)*time.Second,
	)

	provisioner := provisioning.NewClient(
		logger,
		config.Provisioning.APIKey,
		config.Provisioning.APIURL,
		time.Duration(config.Provisioning.TimeoutSeconds)*time.Second,
	)

	// Create usecases
	orderService := usecases.NewOrderService(ordersRepository)
	walletService := usecases.NewWalletService(walletsRepository)
	bindingService := usecases.NewBindingService(logger, gatewayClient, bindingsRepository, orderService)
	fulfillmentService := usecases.NewFulfillmentService(logger, provisioner, orderService)

	websocketManager := handlers.NewWebSocketManager(logger)

	reconciliationService := usecases.NewReconciliationService(
		logger,
		pg.Transactor,
		rateConverter,
		ordersRepository,
		walletsRepository,
		reconciliationsRepository,
		observationsRepository,
		bindingsRepository,
		gatewayClient,
		fulfillmentService,
		websocketManager,
	)

	// Initialize and run workers
	initAndRunWorkers(ctx, logger, config,
		rateConverter, bindingService, gatewayClient,
		observationsRepository, reconciliationService,
		orderService, bindingsRepository, websocketManager)

	// Create handlers
	httpHandler := handlers.NewHTTPHandler(
		logger, orderService, walletService, bindingService,
		reconciliationService, fulfillmentService)
	wsHandler := handlers.NewWebSocketHandler(logger, websocketManager)

	// Create router
	router := mux.NewRouter()

	// Register WebSocket routes before HTTP routes
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	// Configure CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	handler := c.Handler(router)

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + config.HTTP.Port,
		Handler:      handler,
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Starting server", "address", server.Addr)
		if err = server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server error", "error", err)
			log.Fatal(err)
		}
	}()

	// Set up graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer shutdownCancel()

	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
		return
	}

	logger.Info("Server exited properly")
}

func initAndRunWorkers(
	ctx context.Context,
	logger *slog.Logger,
	config *cfg.Config,
	rateConverter *rates.Converter,
	bindingService *usecases.BindingService,
	gatewayClient *gateway.Client,
	observationsRepository *repository.ObservationsRepository,
	reconciliationService *usecases.ReconciliationService,
	orderService *usecases.OrderService,
	bindingsRepository *repository.BindingsRepository,
	websocketManager *handlers.Manager,
) {
	retiredGrace := time.Duration(config.Monitor.RetireGraceMinutes) * time.Minute

	paymentMonitor := workers.NewPaymentMonitor(
		logger,
		bindingService,
		gatewayClient,
		observationsRepository,
		reconciliationService,
		websocketManager,
		time.Duration(config.Monitor.PollIntervalSeconds)*time.Second,
		retiredGrace,
		config.Monitor.MaxConcurrentPolls,
	)

	bindingReaper := workers.NewBindingReaper(
		logger,
		orderService,
		bindingsRepository,
		time.Duration(config.Monitor.BindingTTLHours)*time.Hour,
		retiredGrace,
		time.Duration(config.Monitor.ReapIntervalMinutes)*time.Minute,
	)

	go func() {
		logger.Info("Starting rate refresher worker")
		rateConverter.StartRefreshing(ctx, time.Duration(config.Rates.CacheTTLSeconds)*time.Second)
	}()

	go func() {
		logger.Info("Starting payment monitoring worker")
		paymentMonitor.Start(ctx)
	}()

	go func() {
		logger.Info("Starting binding reaper worker")
		bindingReaper.Start(ctx)
	}()

	logger.Info("All workers initialized and started")
}
