package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/algorank/algorank-node/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Endpoint is the path metrics are served on.
const Endpoint = "/metrics"

// Server is the http server that will be serving the /metrics request for prometheus
type Server struct {
	server *http.Server
}

// NewServer creates a server listening on addr that serves the metrics of
// gatherer.
func NewServer(addr string, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle(Endpoint, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &Server{
		server: &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second},
	}
}

// Start serves metrics in the background until ctx is canceled.
func (m *Server) Start(ctx context.Context) {
	go func() {
		log.Infow("metrics server started", "address", m.server.Addr, "endpoint", Endpoint)
		if err := m.server.ListenAndServe(); err != nil {
			if errors.Is(err, http.ErrServerClosed) {
				log.Debugw("metrics server shutdown")
			} else {
				log.Errorw(err, "metrics server stopped")
			}
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = m.server.Shutdown(shutdownCtx)
	}()
}
