// Package health publishes dependency health over the standard gRPC health
// protocol.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

// Server flips gRPC serving status per dependency. The overall status ("")
// is SERVING only while every check passes.
type Server struct {
	health *health.Server
	logger *slog.Logger

	mu     sync.Mutex
	checks map[string]Check
	failed map[string]bool
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		health: health.NewServer(),
		logger: logger,
		checks: make(map[string]Check),
		failed: make(map[string]bool),
	}
}

// AddCheck registers fn under service. Statuses start as NOT_SERVING until
// the first probe.
func (s *Server) AddCheck(service string, fn Check) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[service] = fn
	s.health.SetServingStatus(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Register attaches the health service, and reflection when enabled, to g.
func (s *Server) Register(g *grpc.Server, enableReflection bool) {
	grpc_health_v1.RegisterHealthServer(g, s.health)
	if enableReflection {
		reflection.Register(g)
	}
}

// Probe runs every check once and publishes the results.
func (s *Server) Probe(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	for _, name := range names {
		err := s.checks[name](ctx)
		status := grpc_health_v1.HealthCheckResponse_SERVING
		if err != nil {
			status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			healthy = false
		}

		// only log transitions
		switch {
		case err != nil && !s.failed[name]:
			s.logger.Warn("dependency unhealthy", "service", name, "error", err)
		case err == nil && s.failed[name]:
			s.logger.Info("dependency recovered", "service", name)
		}
		s.failed[name] = err != nil
		s.health.SetServingStatus(name, status)
	}

	overall := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		overall = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", overall)
	return healthy
}

// Run probes every interval until ctx is done, then marks everything
// NOT_SERVING so load balancers drain the instance.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.probeWithTimeout(ctx, interval)
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-ticker.C:
			s.probeWithTimeout(ctx, interval)
		}
	}
}

func (s *Server) probeWithTimeout(ctx context.Context, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	s.Probe(ctx)
}

// Status returns the published status of service.
func (s *Server) Status(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := s.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}
