package server

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// handler builds the full HTTP handler stack.
func (s *Server) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/scopes/{scope}/checkup", s.handleCheckup)
	mux.HandleFunc("GET /api/v1/scopes/{scope}/breached", s.handleBreached)
	mux.HandleFunc("GET /api/v1/scopes/{scope}/passwords/count", s.handleCount)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /metrics", s.handlePrometheus)

	rl := newRateLimitMiddleware(s.limiter)
	allowed := requireMethods(http.MethodGet, http.MethodHead, http.MethodPost)

	return requestIDMiddleware(securityHeadersMiddleware(noCacheMiddleware(allowed(rl(mux)))))
}

// newRateLimitMiddleware rejects requests with 429 once limiter is exhausted.
func newRateLimitMiddleware(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				w.Header().Set("Retry-After", "1")
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// startAPI registers all HTTP routes and starts the API server in a goroutine.
func (s *Server) startAPI() {
	s.httpServer = &http.Server{
		Addr:              ":" + s.listenPort,
		Handler:           s.handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	srv := s.httpServer
	go func() {
		s.logger.Infof("Starting API server on port %v...", s.listenPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Fatalf("Failed to start API server: %v", err)
		}
	}()
}
