package internal

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	ghamcp "github.com/dangazineu/ghaexec/internal/mcp"
)

const shutdownTimeout = 5 * time.Second

func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve execute_workflow and validate_workflow over MCP stdio",
		Long: `Serve the workflow tools to an MCP client over stdin/stdout.
Logs are written to stderr. With --metrics-addr, Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()

			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				a.cfg.Metrics.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			orchestrator, err := a.newOrchestrator(ctx)
			if err != nil {
				return err
			}
			server, err := ghamcp.NewServer(&ghamcp.Config{
				Name:    "ghaexec",
				Version: version(),
				Logger:  a.logger,
			}, orchestrator)
			if err != nil {
				return err
			}

			if a.cfg.Metrics.Addr != "" {
				shutdown, err := serveMetrics(a.cfg.Metrics.Addr, a.registry, a.logger)
				if err != nil {
					return err
				}
				defer shutdown()
			}

			a.logger.Info("serving",
				zap.String("repository", a.repo().String()),
				zap.String("metrics_addr", a.cfg.Metrics.Addr),
			)
			return server.Run(ctx)
		},
	}
	cmd.Flags().String("metrics-addr", "", "Listen address for /metrics, e.g. :9090. Overrides metrics.addr.")
	return cmd
}

func metricsRouter(reg *prometheus.Registry) http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	}).Methods(http.MethodGet)
	return r
}

// serveMetrics listens on addr in the background. The returned function
// shuts the listener down.
func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{
		Handler:           metricsRouter(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}, nil
}
