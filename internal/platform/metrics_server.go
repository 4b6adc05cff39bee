package platform

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsShutdownTimeout = 5 * time.Second

// MetricsServer serves a Prometheus registry on /metrics while the polis runs.
type MetricsServer struct {
	addr     string
	gatherer prometheus.Gatherer

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

func NewMetricsServer(addr string, gatherer prometheus.Gatherer) *MetricsServer {
	return &MetricsServer{addr: addr, gatherer: gatherer}
}

func (m *MetricsServer) Name() string {
	return "metrics_http"
}

func (m *MetricsServer) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.server != nil {
		return nil
	}
	if m.gatherer == nil {
		return fmt.Errorf("metrics gatherer is required")
	}
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = ln.Close()
		}
	}()

	m.server = server
	m.ln = ln
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.ln = nil
	m.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, metricsShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

// Addr is the bound listen address, useful when addr used port 0.
func (m *MetricsServer) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}
