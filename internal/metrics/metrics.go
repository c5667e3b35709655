// Package metrics holds calbot's Prometheus collectors and the optional
// /metrics endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	EventsSubmitted = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "calbot_events_submitted_total",
		Help: "Event submissions by input surface and outcome",
	}, []string{"surface", "outcome"})

	SubmitDuration = promauto.With(Registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "calbot_submit_duration_seconds",
		Help:    "Latency of the create-event call, credentials included",
		Buckets: prometheus.DefBuckets,
	})

	TokenOperations = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "calbot_token_operations_total",
		Help: "OAuth token refreshes and interactive authorizations",
	}, []string{"kind"})

	CommandsRateLimited = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "calbot_commands_rate_limited_total",
		Help: "Slash commands rejected by the per-user rate limit",
	})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Outcome labels.
const (
	OutcomeCreated = "created"
	OutcomeInvalid = "invalid"
	OutcomeFailed  = "failed"
	OutcomeNoCreds = "no_credentials"
)

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("metrics server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
