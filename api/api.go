// Package api exposes a ballot registry application over HTTP: signed
// application calls, the account listing and the key-value state views read
// by the oracle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/algorank/algorank-node/log"
	"github.com/algorank/algorank-node/registry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

const (
	maxRequestBodyLog = 512     // Maximum length of request body to log
	maxRequestBody    = 1 << 20 // Maximum accepted request body
	shutdownTimeout   = 5 * time.Second
)

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host     string
	Port     int
	Registry *registry.Registry
}

// API type represents the API HTTP server of a registry application.
type API struct {
	router   *chi.Mux
	registry *registry.Registry
	server   *http.Server
	listener net.Listener
}

// New creates a new API instance with the given configuration and starts
// serving it. The server is shut down when ctx is canceled.
func New(ctx context.Context, conf *APIConfig) (*API, error) {
	a, err := newAPI(conf)
	if err != nil {
		return nil, err
	}
	addr := net.JoinHostPort(conf.Host, strconv.Itoa(conf.Port))
	a.listener, err = net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.server = &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Infow("starting API server", "address", a.listener.Addr().String(), "appID", conf.Registry.AppID())
		if err := a.server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			log.Warnw("failed to shut down API server", "error", err)
		}
	}()
	return a, nil
}

// newAPI builds the router without serving it.
func newAPI(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.Registry == nil {
		return nil, fmt.Errorf("missing registry instance")
	}
	a := &API{registry: conf.Registry}
	a.initRouter()
	return a, nil
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// Addr returns the address the server listens on, useful when the
// configured port is 0.
func (a *API) Addr() string {
	if a.listener == nil {
		return ""
	}
	return a.listener.Addr().String()
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	a.router.Group(func(r chi.Router) {
		r.Use(appIDMiddleware(a.registry.AppID()))
		log.Infow("register handler", "endpoint", CallEndpoint, "method", "POST")
		r.Post(CallEndpoint, a.call)
		log.Infow("register handler", "endpoint", StateEndpoint, "method", "GET")
		r.Get(StateEndpoint, a.appState)
		log.Infow("register handler", "endpoint", AccountsEndpoint, "method", "GET", "parameters", "next, limit")
		r.Get(AccountsEndpoint, a.accounts)
		log.Infow("register handler", "endpoint", AccountEndpoint, "method", "GET")
		r.Get(AccountEndpoint, a.account)
	})
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(maxRequestBodyLog))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(45 * time.Second))
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.Write(w)
	})

	a.registerHandlers()
}
