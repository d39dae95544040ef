package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wonny/argus/internal/api/handlers"
	"github.com/wonny/argus/pkg/logger"
)

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(
	replayHandler *handlers.ReplayHandler,
	labelHandler *handlers.LabelHandler,
	scoreboardHandler *handlers.ScoreboardHandler,
	log *logger.Logger,
) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Replay batch endpoints
	api.HandleFunc("/replay/batches", replayHandler.CreateBatch).Methods("POST")
	api.HandleFunc("/replay/batches", replayHandler.ListBatches).Methods("GET")
	api.HandleFunc("/replay/batches/{id}", replayHandler.GetBatch).Methods("GET")
	api.HandleFunc("/replay/batches/{id}/run", replayHandler.RunBatch).Methods("POST")
	api.HandleFunc("/replay/batches/{id}/pause", replayHandler.PauseBatch).Methods("POST")
	api.HandleFunc("/replay/batches/{id}/results", replayHandler.GetResults).Methods("GET")
	api.HandleFunc("/replay/batches/{id}/failures", replayHandler.GetFailures).Methods("GET")

	// Labeling endpoints
	api.HandleFunc("/label/run", labelHandler.Run).Methods("POST")
	api.HandleFunc("/label/status", labelHandler.Status).Methods("GET")

	// Scoreboard endpoints
	api.HandleFunc("/scoreboard", scoreboardHandler.GetScoreboard).Methods("GET")
	api.HandleFunc("/scoreboard/baselines", scoreboardHandler.SaveBaseline).Methods("POST")
	api.HandleFunc("/scoreboard/baselines", scoreboardHandler.ListBaselines).Methods("GET")
	api.HandleFunc("/scoreboard/baselines/{id}/diff", scoreboardHandler.DiffBaseline).Methods("GET")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "argus-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
