package main

import (
	"context"

	"github.com/civgrid/civgrid/internal/config"
	"github.com/civgrid/civgrid/internal/observability"
	"github.com/civgrid/civgrid/internal/storage"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ProviderFactory creates the persistence provider from the config.
	// Default: storage.Open
	ProviderFactory func(cfg config.Config, dataDir string) (storage.Provider, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
