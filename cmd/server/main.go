package main

import (
	"context"
	"crypto/rand"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sqabi/backend/internal/config"
	"sqabi/backend/internal/dataset"
	datasethandler "sqabi/backend/internal/dataset/handler"
	"sqabi/backend/internal/db"
	"sqabi/backend/internal/hub"
	"sqabi/backend/internal/security"
	"sqabi/backend/internal/server"
	"sqabi/backend/internal/server/middleware"
	"sqabi/backend/internal/session/repository"
	ssohandler "sqabi/backend/internal/sso/handler"
	"sqabi/backend/internal/sso/service"
	"sqabi/backend/internal/telemetry"
	"sqabi/backend/internal/telemetry/otel"
	"sqabi/backend/internal/telemetry/producer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	providers, err := otel.NewProviders(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()
	logger := otel.NewLogger(providers.LoggerProvider, cfg.ServiceName, os.Stderr)

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer database.Close()

	secret, err := security.LoadSecret(cfg.JWTSecret, cfg.Env == "development")
	if err != nil {
		if cfg.SSOEnabled {
			log.Fatalf("jwt secret: %v", err)
		}
		// No tokens are issued while SSO is disabled; a throwaway key keeps the gate rejecting everything.
		secret = make([]byte, security.MinSecretLength)
		if _, err := rand.Read(secret); err != nil {
			log.Fatalf("jwt secret: %v", err)
		}
	}
	tokens := security.NewTokenProvider(secret, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL())

	kafkaProducer, err := producer.NewKafkaProducer(cfg.KafkaBrokersList(), cfg.SessionEventsTopic)
	if err != nil {
		log.Fatalf("kafka: %v", err)
	}
	events := telemetry.MultiEmitter{otel.NewEventEmitter(providers.LoggerProvider)}
	if kafkaProducer != nil {
		events = append(events, kafkaProducer)
	}

	sessions := repository.NewPostgresRepository(database)
	hubClient := hub.NewClient(cfg.HubURL, cfg.SSOService, cfg.ValidateTimeout(), cfg.HealthTimeout(), cfg.HubValidateMaxAttempts)
	liveness := hub.NewLivenessChecker(database, cfg.Inactivity())

	ssoSvc := service.NewService(hubClient, tokens, sessions, service.Config{
		Enabled: cfg.SSOEnabled,
		Service: cfg.SSOService,
		HubURL:  cfg.HubURL,
	}, logger, events)

	policy := middleware.FailOpen
	if cfg.FailClosed() {
		policy = middleware.FailClosed
	}
	gate := middleware.NewGate(tokens, sessions, liveness, middleware.GateConfig{
		RecheckInterval: cfg.RecheckInterval(),
		Inactivity:      cfg.Inactivity(),
		Policy:          policy,
		Service:         cfg.SSOService,
	}, logger, events)

	handler := server.NewRouter(server.Deps{
		SSO:          ssohandler.New(ssoSvc, cfg.SSOService, cfg.HubWebhookSecret, logger),
		Dataset:      datasethandler.New(dataset.Validate, cfg.DatasetTimeout(), cfg.DatasetPreviewLimit, logger),
		Gate:         gate,
		HealthPinger: database,
		Logger:       logger,
		ServiceName:  cfg.ServiceName,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "sso_enabled", cfg.SSOEnabled, "liveness_policy", policy.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	// Let in-flight async event emits finish before closing their sinks.
	time.Sleep(telemetry.ShutdownDrainDuration)
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			logger.Error("kafka close", "error", err)
		}
	}
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Error("otel shutdown", "error", err)
	}
	logger.Info("http server stopped")
}
