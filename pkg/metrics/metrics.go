// Package metrics exposes the pacer's counters as Prometheus metrics,
// optionally served over HTTP, the same shape as the teacher's
// MetricsCollector (metrics.go: counters plus an optional HTTP
// endpoint) scaled down to what a send-only traffic generator needs.
package metrics

import (
	"context"
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector aggregates rtpsend's send-path counters for Prometheus
// export.
type Collector struct {
	PacketsSent    *prometheus.CounterVec
	BytesSent      *prometheus.CounterVec
	SendErrors     *prometheus.CounterVec
	NonMonotonic   prometheus.Counter
	CompoundLength prometheus.Histogram

	reg    prometheus.Registerer
	server *http.Server
	ln     net.Listener
}

// New builds a Collector and registers its metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with the global
// default registry.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		reg: reg,
		PacketsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsend",
			Name:      "packets_sent_total",
			Help:      "Packets transmitted, by socket kind (data, control).",
		}, []string{"socket"}),
		BytesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsend",
			Name:      "bytes_sent_total",
			Help:      "Bytes transmitted, by socket kind (data, control).",
		}, []string{"socket"}),
		SendErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rtpsend",
			Name:      "send_errors_total",
			Help:      "Tolerated send failures, by socket kind (data, control).",
		}, []string{"socket"}),
		NonMonotonic: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "rtpsend",
			Name:      "non_monotonic_total",
			Help:      "Script lines whose playout time had already passed when scheduled, sent immediately.",
		}),
		CompoundLength: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rtpsend",
			Name:      "rtcp_compound_length_bytes",
			Help:      "Length of emitted compound RTCP packets.",
			Buckets:   []float64{8, 16, 28, 52, 100, 200, 500, 1200},
		}),
	}
}

// ServeHTTP starts (in the background) a /metrics HTTP endpoint on
// addr. Call Shutdown to stop it.
func (c *Collector) ServeHTTP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	c.ln = ln

	mux := http.NewServeMux()
	if g, ok := c.reg.(prometheus.Gatherer); ok {
		// reg is almost always also the Gatherer that knows how to
		// collect it (e.g. a *prometheus.Registry); fall back to the
		// global default only when it isn't.
		mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}

	c.server = &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = c.server.Serve(ln)
	}()
	return nil
}

// Addr reports the listener's bound address. It is nil until ServeHTTP
// has been called successfully; tests bind to "127.0.0.1:0" and use
// this to discover the OS-assigned port.
func (c *Collector) Addr() net.Addr {
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Shutdown stops the metrics HTTP endpoint, if one was started.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
