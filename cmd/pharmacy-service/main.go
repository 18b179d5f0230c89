package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/consumers"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/events"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/handler"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/repository"
	"github.com/medtrack/medtrack-backend/internal/pharmacy/service"
	"github.com/medtrack/medtrack-backend/pkg/config"
	"github.com/medtrack/medtrack-backend/pkg/database"
	"github.com/medtrack/medtrack-backend/pkg/httputil"
	"github.com/medtrack/medtrack-backend/pkg/logger"
	"github.com/medtrack/medtrack-backend/pkg/messaging"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("pharmacy-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New("pharmacy-service", cfg.Server.Environment)
	log.Info().Msg("starting Pharmacy Service")

	// Connect to database
	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Connect to RabbitMQ
	rmq, err := messaging.New(&cfg.RabbitMQ, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
	}
	defer rmq.Close()

	// Initialize event publisher
	publisher, err := events.NewStockEventPublisher(rmq, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}

	// Initialize repositories
	batchRepo := repository.NewBatchRepository(db)
	movementRepo := repository.NewMovementRepository(db)
	catalogRepo := repository.NewCatalogRepository(db)

	// Initialize services
	ledgerService := service.NewLedgerService(db, batchRepo, movementRepo, catalogRepo, publisher, log)
	alertService := service.NewAlertService(batchRepo, movementRepo, catalogRepo, cfg.Alerts, log)

	// Initialize handlers
	batchHandler := handler.NewBatchHandler(ledgerService, log)
	movementHandler := handler.NewMovementHandler(ledgerService, log)
	dispenseHandler := handler.NewDispenseHandler(ledgerService, log)
	alertHandler := handler.NewAlertHandler(alertService, log)
	stockHandler := handler.NewStockHandler(ledgerService, log)

	// Start catalog event consumer to keep the local reference mirror in sync
	catalogConsumer, err := consumers.NewCatalogEventConsumer(rmq, catalogRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create catalog event consumer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := catalogConsumer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start catalog event consumer")
	}

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.ActorID) // Capture acting user for created_by
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-User-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]interface{}{
			"status":   "healthy",
			"service":  "pharmacy-service",
			"database": db.Health(r.Context()),
			"rabbitmq": rmq.Health(),
		})
	})

	// API routes
	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Get("/", batchHandler.List)
			r.Post("/", batchHandler.Receive)
			r.Get("/{id}", batchHandler.Get)
			r.Post("/{id}/movements", movementHandler.Record)
		})

		r.Get("/movements", movementHandler.List)
		r.Post("/dispense", dispenseHandler.Dispense)

		r.Get("/alerts", alertHandler.Get)
		r.Get("/alerts/forecast", alertHandler.Forecast)

		r.Get("/stock", stockHandler.Summary)
	})

	// Create server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
