package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edupulse-backend/internal/analyzer"
	"edupulse-backend/internal/config"
	"edupulse-backend/internal/database"
	"edupulse-backend/internal/handlers"
	"edupulse-backend/internal/intervention"
	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/privacy"
	"edupulse-backend/internal/repository"
	"edupulse-backend/internal/router"
	"edupulse-backend/internal/session"
	"edupulse-backend/internal/websocket"
	"edupulse-backend/internal/worker"
)

func main() {
	log.Println("🚀 Starting EduPulse Struggle Engine...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	signalRepo := repository.NewSignalRepo(pool)
	struggleRepo := repository.NewStruggleRepo(pool)
	interventionRepo := repository.NewInterventionRepo(pool)
	benchmarkRepo := repository.NewBenchmarkRepo(pool)
	consentRepo := repository.NewConsentRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)

	// ──── Best-effort Persistence Queue ────
	producer := worker.NewProducer(redisClients.Queue)

	// ──── Step 5: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, cfg.JWTSecret)
	log.Println("✓ WebSocket hub started")

	// ──── Core Engine ────
	patternAnalyzer := analyzer.New(signalRepo, producer, interventionRepo)

	// The analyzer gates delivery timing; learner reactions flow back
	// onto the struggle events they answer.
	dispatcher := intervention.NewDispatcher(interventionRepo, wsHub, patternAnalyzer, struggleRepo)

	registry := session.NewRegistry(
		wsHub,
		dispatcher,
		producer,
		signalRepo,
		time.Duration(cfg.SessionTTLHours)*time.Hour,
		time.Duration(cfg.EvictionIntervalMinutes)*time.Minute,
		time.Duration(cfg.SignalRetentionHours)*time.Hour,
	)
	registry.StartSweeper()

	consentGate := privacy.NewGate(consentRepo, producer)
	privacyEngine := privacy.NewEngine(benchmarkRepo, struggleRepo, privacy.NewNoiseSource(), producer)

	// ──── Step 6: Start Persistence Worker Pool ────
	workerPool := worker.NewPool(redisClients.Queue, signalRepo, struggleRepo, auditRepo, cfg.WorkerCount)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Initialize Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	sessionHandler := handlers.NewSessionHandler(registry)
	predictionHandler := handlers.NewPredictionHandler(patternAnalyzer, consentGate)
	benchmarkHandler := handlers.NewBenchmarkHandler(privacyEngine)
	consentHandler := handlers.NewConsentHandler(consentRepo)
	interventionHandler := handlers.NewInterventionHandler(dispatcher)

	// ──── Step 7: Start HTTP Server ────
	r := router.New(
		jwtAuth,
		sessionHandler,
		predictionHandler,
		benchmarkHandler,
		consentHandler,
		interventionHandler,
		wsHub,
		cfg.FrontendURL,
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		registry.Stop()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ EduPulse ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
