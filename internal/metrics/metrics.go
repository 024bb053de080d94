package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RESULT_SUCCESS = "success"
	RESULT_FAILURE = "failure"
)

// Collector holds the coordinator metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	refreshes       *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	entities        *prometheus.GaugeVec
	available       *prometheus.GaugeVec
	lastSuccess     *prometheus.GaugeVec
	switchCommands  *prometheus.CounterVec
}

func NewCollector(prefix string) *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		refreshes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_coordinator_refreshes_total",
			Help: "Gateway refreshes by coordinator and result",
		}, []string{"coordinator", "result"}),
		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    prefix + "_coordinator_refresh_duration_seconds",
			Help:    "Gateway refresh duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"coordinator"}),
		entities: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_coordinator_entities",
			Help: "Entities projected by a coordinator",
		}, []string{"coordinator"}),
		available: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_coordinator_available",
			Help: "1 when the last refresh succeeded",
		}, []string{"coordinator"}),
		lastSuccess: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: prefix + "_coordinator_last_success_timestamp_seconds",
			Help: "Unix time of the last successful refresh",
		}, []string{"coordinator"}),
		switchCommands: factory.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "_switch_commands_total",
			Help: "Switch commands by coordinator and result",
		}, []string{"coordinator", "result"}),
	}
}

func (c *Collector) ObserveRefresh(coordinator string, d time.Duration, err error) {
	if c == nil {
		return
	}
	c.refreshDuration.WithLabelValues(coordinator).Observe(d.Seconds())
	if err != nil {
		c.refreshes.WithLabelValues(coordinator, RESULT_FAILURE).Inc()
		c.available.WithLabelValues(coordinator).Set(0)
		return
	}
	c.refreshes.WithLabelValues(coordinator, RESULT_SUCCESS).Inc()
	c.available.WithLabelValues(coordinator).Set(1)
	c.lastSuccess.WithLabelValues(coordinator).SetToCurrentTime()
}

func (c *Collector) SetEntities(coordinator string, n int) {
	if c == nil {
		return
	}
	c.entities.WithLabelValues(coordinator).Set(float64(n))
}

func (c *Collector) ObserveSwitchCommand(coordinator string, err error) {
	if c == nil {
		return
	}
	result := RESULT_SUCCESS
	if err != nil {
		result = RESULT_FAILURE
	}
	c.switchCommands.WithLabelValues(coordinator, result).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
