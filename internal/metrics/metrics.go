// Package metrics exposes Prometheus collectors for the ledger and the API.
package metrics

import (
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"crowdfund/internal/domain"
	"crowdfund/internal/ledger"
)

const namespace = "crowdfund"

// Collector owns every metric the service reports.
type Collector struct {
	events          *prometheus.CounterVec
	donatedUnits    prometheus.Counter
	disbursedUnits  prometheus.Counter
	refundedUnits   prometheus.Counter
	openReconciles  prometheus.Gauge
	overdue         prometheus.Gauge
	requestCounter  *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers the collectors on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_total",
			Help:      "Committed ledger events by kind.",
		}, []string{"kind"}),
		donatedUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "donated_units_total",
			Help:      "Smallest token units accepted as donations (approximate above 2^53).",
		}),
		disbursedUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "disbursed_units_total",
			Help:      "Smallest token units released to beneficiaries (approximate above 2^53).",
		}),
		refundedUnits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "refunded_units_total",
			Help:      "Smallest token units returned to donors (approximate above 2^53).",
		}),
		openReconciles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "open_reconciliations",
			Help:      "Reconciliation entries awaiting manual review.",
		}),
		overdue: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "campaigns_past_deadline",
			Help:      "Active campaigns whose deadline has passed.",
		}),
		requestCounter: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of API requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"method", "route"}),
	}
}

// ObserveEvent is an events.Handler.
func (c *Collector) ObserveEvent(e domain.Event) {
	c.events.WithLabelValues(string(e.Kind)).Inc()
	if e.Amount == nil {
		return
	}
	switch e.Kind {
	case domain.EventDonationReceived:
		c.donatedUnits.Add(units(*e.Amount))
	case domain.EventFundsDisbursed:
		c.disbursedUnits.Add(units(*e.Amount))
	case domain.EventDonationRefunded:
		c.refundedUnits.Add(units(*e.Amount))
	}
}

// SetOpenReconciliations reports the size of the reconciliation backlog.
func (c *Collector) SetOpenReconciliations(n int) {
	c.openReconciles.Set(float64(n))
}

// SetCampaignsPastDeadline reports active campaigns awaiting end or release.
func (c *Collector) SetCampaignsPastDeadline(n int) {
	c.overdue.Set(float64(n))
}

// Middleware records request counts and latency labelled by chi route
// pattern, which keeps label cardinality bounded.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		c.requestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		c.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func units(a ledger.Amount) float64 {
	f, _ := new(big.Float).SetInt(a.Big()).Float64()
	return f
}
