// Package metrics exports the probe's readings and loop health to
// Prometheus. Gauges are read from the shared state at scrape time, so a
// reading that has never been taken is absent rather than zero.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"cobitis-go/services/state"
	"cobitis-go/x/logx"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cobitis"

var (
	temperatureDesc = prometheus.NewDesc(namespace+"_temperature_celsius",
		"Water temperature of the last successful sample.", nil, nil)
	tdsDesc = prometheus.NewDesc(namespace+"_tds_ppm",
		"Temperature-compensated total dissolved solids of the last successful sample.", nil, nil)
	sampleTimeDesc = prometheus.NewDesc(namespace+"_sample_timestamp_seconds",
		"Unix time of the last successful sample.", nil, nil)
	signalLevelDesc = prometheus.NewDesc(namespace+"_signal_level",
		"WiFi signal quality level, 0 (unreliable) to 4 (excellent).", nil, nil)
	rssiDesc = prometheus.NewDesc(namespace+"_rssi_dbm",
		"WiFi received signal strength of the last connectivity cycle.", nil, nil)
)

// Metrics is a prometheus.Collector over the shared state and a
// state.Observer counting producer cycles.
type Metrics struct {
	state  state.Reader
	cycles *prometheus.CounterVec
}

// New creates the collector and registers it with reg.
func New(reg prometheus.Registerer, r state.Reader) (*Metrics, error) {
	m := &Metrics{
		state: r,
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Producer cycles by component and result.",
		}, []string{"component", "result"}),
	}
	if err := reg.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) ObserveCycle(component string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.cycles.WithLabelValues(component, result).Inc()
}

func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- temperatureDesc
	ch <- tdsDesc
	ch <- sampleTimeDesc
	ch <- signalLevelDesc
	ch <- rssiDesc
	m.cycles.Describe(ch)
}

func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	if v, ok := m.state.LatestMeasurement(); ok {
		ch <- prometheus.MustNewConstMetric(temperatureDesc, prometheus.GaugeValue, float64(v.Temperature))
		ch <- prometheus.MustNewConstMetric(tdsDesc, prometheus.GaugeValue, float64(v.TDS))
		ch <- prometheus.MustNewConstMetric(sampleTimeDesc, prometheus.GaugeValue, float64(v.Timestamp)/1000)
	}
	if l, ok := m.state.LatestLinkStatus(); ok {
		ch <- prometheus.MustNewConstMetric(signalLevelDesc, prometheus.GaugeValue, float64(l.SignalQuality.Level()))
		ch <- prometheus.MustNewConstMetric(rssiDesc, prometheus.GaugeValue, float64(l.RSSI))
	}
	m.cycles.Collect(ch)
}

// Server exposes a gatherer on /metrics.
type Server struct {
	log     *slog.Logger
	address string
	handler http.Handler
}

func NewServer(log *slog.Logger, address string, g prometheus.Gatherer) *Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return &Server{log: log.With(slog.String("svc", "metrics")), address: address, handler: r}
}

func (s *Server) Handler() http.Handler { return s.handler }

// Run serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting metrics server", slog.String("address", s.address))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		s.log.Error("metrics server error", logx.Err(err))
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}
