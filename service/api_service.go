package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/algorank/algorank-node/api"
	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/registry"
)

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	registry *registry.Registry
	API      *api.API
	mu       sync.Mutex
	cancel   context.CancelFunc
	host     string
	port     int
}

// NewAPI creates a new APIService instance serving the given registry.
func NewAPI(reg *registry.Registry, host string, port int, disableLogging bool) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API logging is disabled")
	}
	return &APIService{
		registry: reg,
		host:     host,
		port:     port,
	}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}

	ctx, as.cancel = context.WithCancel(ctx)

	var err error
	as.API, err = api.New(ctx, &api.APIConfig{
		Host:     as.host,
		Port:     as.port,
		Registry: as.registry,
	})
	if err != nil {
		as.cancel()
		as.cancel = nil
		return fmt.Errorf("failed to start API server: %w", err)
	}
	return nil
}

// Stop halts the API server.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		as.cancel()
		as.cancel = nil
	}
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.host, as.port
}

// URL returns the base URL of the running API server, or an empty string if
// the service is not running.
func (as *APIService) URL() string {
	as.mu.Lock()
	defer as.mu.Unlock()
	if as.cancel == nil || as.API == nil {
		return ""
	}
	return "http://" + as.API.Addr()
}
