// Package server hosts the password checkup service and runs periodic
// breach checks for every scope.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kylerisse/breachcheck/pkg/check"
	"github.com/kylerisse/breachcheck/pkg/store"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// DefaultPort is the default HTTP listen port.
	DefaultPort = "1982"

	// DefaultInterval is the default time between scheduled checks.
	DefaultInterval = 5 * time.Minute

	// DefaultMaxStartDelay bounds the random delay before a worker's first check.
	DefaultMaxStartDelay = 59 * time.Second
)

// Config holds everything NewServer needs.
type Config struct {
	// Store is the credential store served by the checkup endpoints.
	Store *store.Store
	// Breaches is the breach list the checkup endpoints audit against.
	Breaches *store.BreachList
	// Strategy runs the scheduled checks.
	Strategy check.Strategy
	// ListenPort is the HTTP port. Defaults to DefaultPort.
	ListenPort string
	// Interval is the time between scheduled checks. Defaults to DefaultInterval.
	Interval time.Duration
	// Limiter throttles incoming requests. Defaults to 20 req/s with a burst of 50.
	Limiter *rate.Limiter
	Logger  *logrus.Logger
}

// Server represents the breach check daemon.
type Server struct {
	store         *store.Store
	breaches      *store.BreachList
	aggregator    *check.Aggregator
	logger        *logrus.Logger
	listenPort    string
	interval      time.Duration
	maxStartDelay time.Duration
	limiter       *rate.Limiter
	httpServer    *http.Server

	statusMu sync.RWMutex
	statuses map[check.Scope]*check.Status

	// breached is the result of the last checkup served per scope.
	breachedMu sync.RWMutex
	breached   map[check.Scope]int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewServer validates cfg and builds a Server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("server: store is required")
	}
	if cfg.Strategy == nil {
		return nil, fmt.Errorf("server: strategy is required")
	}
	if cfg.Interval < 0 {
		return nil, fmt.Errorf("server: interval must not be negative, got %v", cfg.Interval)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ListenPort == "" {
		cfg.ListenPort = DefaultPort
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Limiter == nil {
		cfg.Limiter = rate.NewLimiter(rate.Limit(20), 50)
	}

	s := &Server{
		store:         cfg.Store,
		breaches:      cfg.Breaches,
		aggregator:    check.NewAggregator(cfg.Strategy, cfg.Logger),
		logger:        cfg.Logger,
		listenPort:    cfg.ListenPort,
		interval:      cfg.Interval,
		maxStartDelay: DefaultMaxStartDelay,
		limiter:       cfg.Limiter,
		statuses:      make(map[check.Scope]*check.Status),
		breached:      make(map[check.Scope]int),
		done:          make(chan struct{}),
	}
	for _, scope := range check.Scopes() {
		s.statuses[scope] = check.NewStatus()
	}
	return s, nil
}

// Start begins serving HTTP and starts a worker for each scope.
func (s *Server) Start() {
	s.logger.Info("Starting workers for each scope...")

	s.startAPI()

	for _, scope := range check.Scopes() {
		s.wg.Add(1)
		go s.worker(scope)
	}
}

// Stop gracefully shuts down the HTTP server and all workers.
func (s *Server) Stop() {
	close(s.done)
	s.aggregator.Destroy()
	s.wg.Wait()

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Failed to shut down API server: %v", err)
		}
	}
	s.logger.Info("All workers stopped.")
}

// status returns the Status tracked for scope.
func (s *Server) status(scope check.Scope) *check.Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.statuses[scope]
}

// scopeStatuses returns a snapshot of every scope's status keyed by scope name.
func (s *Server) scopeStatuses() map[string]check.StatusSnapshot {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	snaps := make(map[string]check.StatusSnapshot, len(s.statuses))
	for scope, st := range s.statuses {
		snaps[scope.String()] = st.Snapshot()
	}
	return snaps
}
