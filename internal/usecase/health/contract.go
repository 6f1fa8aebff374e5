package health

import "context"

// CachePinger checks cache store availability.
type CachePinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks one embedding provider's availability.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}
