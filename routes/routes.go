package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/taskflow/ai-backend/app"
	"github.com/taskflow/ai-backend/internal/observability"
	"github.com/taskflow/ai-backend/middleware"
	"github.com/taskflow/ai-backend/utils"
	"go.uber.org/zap"
)

// Version is reported by GET /api/v1/status
var Version = "dev"

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(deps.Metrics.Middleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Probes are served outside the request timeout
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if timeout := deps.Config.Server.RequestTimeout; timeout > 0 {
			r.Use(chimw.Timeout(timeout))
		}

		r.Get("/status", statusHandler(deps))

		// Settings are admin only
		r.Route("/settings/ai", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequireRole(middleware.RoleAdmin))
			r.Get("/", deps.SettingsHandler.HandleShow)
			r.Post("/", deps.SettingsHandler.HandleUpdate)
			r.Post("/default", deps.SettingsHandler.HandleUpdateDefault)
			r.Post("/test", deps.SettingsHandler.HandleTest)
		})

		r.Route("/ai", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/providers", deps.AIHandler.HandleProviders)
			r.Get("/usage", deps.AIHandler.HandleUsage)
			r.Post("/chat", deps.AIHandler.HandleChat)
			r.Post("/tasks/generate", deps.AIHandler.HandleGenerateTasks)
			r.Post("/tasks/suggestions", deps.AIHandler.HandleSuggestImprovements)
			r.Post("/projects/analyze", deps.AIHandler.HandleAnalyzeProject)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusNotFound, "endpoint not found", nil)
	})

	return r
}

func statusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"version":     Version,
			"environment": deps.Config.Environment,
			"providers":   deps.Registry.Names(),
		})
	}
}

// requestLogger logs one line per request with zap
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			fields := append(observability.ContextFields(r.Context()),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
			logger.Info("http request", fields...)
		})
	}
}
