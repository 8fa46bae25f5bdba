package health

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Naveen-6087/sui-tma/pkg/coordinator"
	"github.com/Naveen-6087/sui-tma/pkg/models"
	"github.com/Naveen-6087/sui-tma/pkg/registry"
)

// Server represents a health check HTTP server
type Server struct {
	port          string
	registry      *registry.Registry
	coordinator   *coordinator.Coordinator
	enclave       common.Address
	universe      map[models.Fingerprint]string
	metricsAPIKey string
}

// NewServer creates a new health check server
func NewServer(port string, reg *registry.Registry, coord *coordinator.Coordinator,
	enclave common.Address, universe map[models.Fingerprint]string) *Server {
	return &Server{
		port:          port,
		registry:      reg,
		coordinator:   coord,
		enclave:       enclave,
		universe:      universe,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler builds the health server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Readiness requires the executor identity to be registered, since
	// nothing can be claimed or finalized without it.
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if s.enclave == (common.Address{}) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Enclave identity not registered"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		stats := s.registry.Stats()

		pairs := make(map[string]string, len(s.universe))
		for fp, name := range s.universe {
			pairs[fp.Hex()] = name
		}

		status := map[string]interface{}{
			"enclave":        s.enclave.Hex(),
			"total_created":  stats.TotalCreated,
			"active_count":   stats.ActiveCount,
			"executed_count": stats.ExecutedCount,
			"pair_universe":  pairs,
			"circuits":       s.coordinator.BreakerStates(),
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			log.Printf("Error encoding status JSON: %v", err)
		}
	})

	// Circuit breaker admin control endpoint
	mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		fpStr := r.URL.Query().Get("pair_fingerprint")
		if fpStr == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Missing pair_fingerprint parameter"))
			return
		}

		fp, err := models.ParseFingerprint(fpStr)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Invalid pair fingerprint"))
			return
		}

		if !s.coordinator.ResetBreaker(fp) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for pair %s", fp.Hex())))
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for pair %s reset", fp.Hex())))
	})

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start starts the health check server
func (s *Server) Start() {
	log.Printf("Starting health and metrics server on port %s", s.port)
	if err := http.ListenAndServe(":"+s.port, s.Handler()); err != nil {
		log.Printf("Health server error: %v", err)
	}
}
