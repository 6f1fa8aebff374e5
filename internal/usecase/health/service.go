package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Provider is a named embedding provider check (e.g. "embedding:baseline").
type Provider struct {
	Name    string
	Checker ProviderChecker
}

// Service coordinates health checks over the cache and the embedding
// providers. A degraded report still serves traffic: matching works off
// prebuilt trees and the cache only saves tokens.
type Service struct {
	cache     CachePinger
	providers []Provider
}

// New creates a Service. cache can be nil when the service runs cacheless.
func New(cache CachePinger, providers []Provider) *Service {
	return &Service{cache: cache, providers: providers}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			checks["cache"] = CheckError
		} else {
			checks["cache"] = CheckOK
		}
	}

	for _, p := range s.providers {
		if err := p.Checker.HealthCheck(ctx); err != nil {
			checks[p.Name] = CheckError
		} else {
			checks[p.Name] = CheckOK
		}
	}

	status := Healthy
	for _, v := range checks {
		if v == CheckError {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks}
}
