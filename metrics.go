package main

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects build counters on a private registry.
type Metrics struct {
	reg           *prometheus.Registry
	tilesWritten  *prometheus.CounterVec
	tileBytes     prometheus.Counter
	fetchErrors   *prometheus.CounterVec
	fetchDuration prometheus.Histogram
}

// NewMetrics registers the tile cache collectors.
func NewMetrics(version string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	build := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tilecache_build_info",
		Help: "Build info for this binary (value is always 1).",
	}, []string{"version"})
	if version == "" {
		version = "dev"
	}
	build.WithLabelValues(version).Set(1)

	m := &Metrics{
		reg: reg,
		tilesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_tiles_written_total",
			Help: "Tiles stored in the cache container.",
		}, []string{"zoom"}),
		tileBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilecache_tile_bytes_total",
			Help: "Bytes of tile data stored in the cache container.",
		}),
		fetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilecache_fetch_errors_total",
			Help: "Failed tile fetches by kind.",
		}, []string{"kind"}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tilecache_fetch_duration_seconds",
			Help:    "Tile fetch latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(build, m.tilesWritten, m.tileBytes, m.fetchErrors, m.fetchDuration)
	return m
}

func (m *Metrics) observeFetch(d time.Duration, err error) {
	m.fetchDuration.Observe(d.Seconds())
	if err != nil {
		m.fetchErrors.WithLabelValues(errorKind(err)).Inc()
	}
}

func (m *Metrics) observeWrite(t Tile) {
	m.tilesWritten.WithLabelValues(strconv.Itoa(int(t.T.Z))).Inc()
	m.tileBytes.Add(float64(len(t.C)))
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnexpectedContentType):
		return "content_type"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "other"
	}
}

// Handler serves the registry and a liveness probe.
func (m *Metrics) Handler() http.Handler {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return r
}

// Serve exposes Handler on addr until the returned stop function is called.
func (m *Metrics) Serve(addr string) (stop func()) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("metrics listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server error, details: %s", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
