// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "chuli"

// Metrics holds the client counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	streams        *prometheus.CounterVec
	streamChunks   prometheus.Counter
	streamDuration prometheus.Histogram
	pagesLoaded    prometheus.Counter
	fetchErrors    prometheus.Counter
	deletes        prometheus.Counter
	edits          prometheus.Counter
	regenerations  *prometheus.CounterVec
}

// New creates the metrics and registers them on reg. A nil reg leaves them
// unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Reply streams by terminal state.",
		}, []string{"outcome"}),
		streamChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Non-empty stream chunks applied to the transcript.",
		}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Wall time from stream start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		pagesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_loaded_total",
			Help:      "History pages fetched and merged.",
		}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "page_fetch_errors_total",
			Help:      "History page fetches that failed.",
		}),
		deletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages removed from the transcript.",
		}),
		edits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Message edits applied locally.",
		}),
		regenerations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regenerations_total",
			Help:      "Regenerate requests by payload kind.",
		}, []string{"payload"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.streams, m.streamChunks, m.streamDuration,
			m.pagesLoaded, m.fetchErrors,
			m.deletes, m.edits, m.regenerations,
		)
	}
	return m
}

// StreamFinished records a stream reaching a terminal state.
func (m *Metrics) StreamFinished(outcome string, chunks int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(outcome).Inc()
	m.streamChunks.Add(float64(chunks))
	m.streamDuration.Observe(elapsed.Seconds())
}

// PageLoaded records a merged history page.
func (m *Metrics) PageLoaded() {
	if m != nil {
		m.pagesLoaded.Inc()
	}
}

// FetchFailed records a failed history fetch.
func (m *Metrics) FetchFailed() {
	if m != nil {
		m.fetchErrors.Inc()
	}
}

// Deleted records a local delete.
func (m *Metrics) Deleted() {
	if m != nil {
		m.deletes.Inc()
	}
}

// Edited records a local edit.
func (m *Metrics) Edited() {
	if m != nil {
		m.edits.Inc()
	}
}

// Regenerated records a regenerate with the given payload kind
// ("multimodal" or "text").
func (m *Metrics) Regenerated(payload string) {
	if m != nil {
		m.regenerations.WithLabelValues(payload).Inc()
	}
}

// Serve exposes g on addr at /metrics until ctx is done. Listen errors are
// logged, not returned.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, log *zap.Logger) *http.Server {
	if log == nil {
		log = zap.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics endpoint stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics endpoint listening", zap.String("addr", addr))
	return srv
}
