// Command dns-server runs a recursive DNS resolver: it answers client
// queries from its own cache where possible, and otherwise delegates to
// the configured upstream name servers over UDP or TCP.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/polymorfiq/dns-server/internal/cache"
	"github.com/polymorfiq/dns-server/internal/config"
	"github.com/polymorfiq/dns-server/internal/delegator"
	"github.com/polymorfiq/dns-server/internal/listener"
	"github.com/polymorfiq/dns-server/internal/logging"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/request"
	"github.com/polymorfiq/dns-server/internal/security"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}

	metricsReg, promReg := metrics.NewRegistry()

	c := cache.New(metricsReg)
	d := delegator.New(cfg.ForeignNameServers, cfg.UpstreamTimeout, metricsReg, logger)
	facade := request.New(c, d, metricsReg, logger, cfg.UDPTruncateSize, cfg.QueryTimeout)

	limiter := security.NewRateLimiter(cfg.RateLimitThreshold, cfg.RateLimitCooldown, cfg.RateLimitMaxEntries)
	filter := security.NewClientFilter(cfg.AllowedClientCIDRs)

	l, err := listener.New(cfg.ListenAddr, facade, limiter, filter, metricsReg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to bind listener")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go serveMetrics(ctx, cfg.MetricsAddr, promReg, logger)

	logger.Info().
		Str("listen_addr", cfg.ListenAddr).
		Strs("upstreams", cfg.ForeignNameServers).
		Msg("resolver starting")

	if err := l.Serve(ctx); err != nil {
		logger.Error().Err(err).Msg("listener exited with error")
		os.Exit(1)
	}

	logger.Info().Msg("resolver shut down")
}

// serveMetrics runs the Prometheus exposition endpoint until ctx is
// canceled, then shuts it down gracefully.
func serveMetrics(ctx context.Context, addr string, promReg *prometheus.Registry, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:    addr,
		Handler: metrics.Handler(promReg),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("metrics_addr", addr).Msg("metrics endpoint starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics endpoint exited with error")
	}
}
