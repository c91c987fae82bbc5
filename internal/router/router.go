package router

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"edupulse-backend/internal/handlers"
	"edupulse-backend/internal/middleware"
	"edupulse-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	sessionHandler *handlers.SessionHandler,
	predictionHandler *handlers.PredictionHandler,
	benchmarkHandler *handlers.BenchmarkHandler,
	consentHandler *handlers.ConsentHandler,
	interventionHandler *handlers.InterventionHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Ingest limiter: signals arrive continuously but bounded (>10/s per
	// caller means a misbehaving client, not a struggling learner)
	ingestLimiter := middleware.NewRateLimiter(600, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","observers":%d}`, wsHub.SubscriberCount())
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Session Routes (collaborator-facing) ────
		r.Route("/sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/start", sessionHandler.Start)
			r.Group(func(r chi.Router) {
				r.Use(ingestLimiter.Middleware)
				r.Post("/{id}/signals", sessionHandler.Signal)
			})
			r.Post("/{id}/end", sessionHandler.End)
			r.Get("/{id}/status", sessionHandler.Status)
		})

		// ──── Analytics & Prediction Routes ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/analytics", sessionHandler.Analytics)
			r.Get("/predictions", predictionHandler.Predict)
		})

		// ──── Benchmark Routes (instructor-facing) ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.With(middleware.RequireRole("instructor", "admin")).
				Get("/benchmarks", benchmarkHandler.Get)
		})

		// ──── Consent Routes ────
		r.Route("/consent", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", consentHandler.Get)
			r.Put("/", consentHandler.Upsert)
			r.Post("/withdraw", consentHandler.Withdraw)
		})

		// ──── Intervention Lifecycle Routes ────
		r.Route("/interventions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/{id}/delivered", interventionHandler.Delivered)
			r.Post("/{id}/acknowledge", interventionHandler.Acknowledge)
			r.Post("/{id}/dismiss", interventionHandler.Dismiss)
			r.Post("/{id}/response", interventionHandler.Response)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
