// Copyright (c) 2026 Cilo Authors
// SPDX-License-Identifier: MIT
// See LICENSES/MIT.txt for full license text

package daemon

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the optional loopback observability surface: a chi router
// exposing /metrics, plus the gauges/counters the daemon updates as it
// manages workspaces and monitors. It has no bearing on the control-plane
// protocol.
type Metrics struct {
	router chi.Router
	http   *http.Server

	WorkspacesManaged prometheus.Gauge
	MonitorsRunning   prometheus.Gauge
	WatchdogRestarts  *prometheus.CounterVec
	WatchdogTombstone *prometheus.CounterVec
}

// NewMetrics builds a Metrics surface registered against its own registry,
// so repeated daemon instances in tests never collide on global metric
// registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		router: chi.NewRouter(),
		WorkspacesManaged: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "wsync",
			Subsystem: "daemon",
			Name:      "workspaces_managed",
			Help:      "Number of workspaces currently in the registry.",
		}),
		MonitorsRunning: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "wsync",
			Subsystem: "daemon",
			Name:      "monitors_running",
			Help:      "Number of monitor child processes currently alive.",
		}),
		WatchdogRestarts: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsync",
			Subsystem: "watchdog",
			Name:      "restarts_total",
			Help:      "Monitor restarts issued by the watchdog, per workspace.",
		}, []string{"workspace"}),
		WatchdogTombstone: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "wsync",
			Subsystem: "watchdog",
			Name:      "tombstones_total",
			Help:      "Workspaces the watchdog gave up restarting, per workspace.",
		}, []string{"workspace"}),
	}

	m.router.Use(middleware.Recoverer)
	m.router.Use(middleware.RequestID)
	m.router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	return m
}

// ListenAndServe binds addr and serves the metrics router until Shutdown.
func (m *Metrics) ListenAndServe(addr string) error {
	m.http = &http.Server{
		Addr:         addr,
		Handler:      m.router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return m.http.ListenAndServe()
}

// Shutdown gracefully stops the metrics HTTP server.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.http == nil {
		return nil
	}
	return m.http.Shutdown(ctx)
}
