package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jenkins_notifier"

// PrometheusRecorder implements Recorder using Prometheus metrics
type PrometheusRecorder struct {
	reg            *prom.Registry
	eventsReceived *prom.CounterVec
	filterVetoes   *prom.CounterVec
	notifications  *prom.CounterVec
	notifyDuration prom.Histogram
	inFlight       prom.Gauge
}

// NewPrometheusRecorder constructs the metrics and registers them on reg.
// A nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		reg: reg,
		eventsReceived: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_received_total",
			Help:      "Host events received by kind",
		}, []string{"kind"}),
		filterVetoes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "filter_vetoes_total",
			Help:      "Notifications suppressed by eligibility filter",
		}, []string{"filter"}),
		notifications: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Jenkins notifications by outcome",
		}, []string{"outcome"}),
		notifyDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "notify_duration_seconds",
			Help:      "Duration of the Jenkins notifyCommit call",
			Buckets:   prom.DefBuckets,
		}),
		inFlight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "background_in_flight",
			Help:      "Background notifications currently running",
		}),
	}
	reg.MustRegister(pr.eventsReceived, pr.filterVetoes, pr.notifications, pr.notifyDuration, pr.inFlight)
	return pr
}

func (p *PrometheusRecorder) IncEventReceived(kind string) {
	p.eventsReceived.WithLabelValues(kind).Inc()
}

func (p *PrometheusRecorder) IncFilterVeto(filter string) {
	p.filterVetoes.WithLabelValues(filter).Inc()
}

func (p *PrometheusRecorder) IncNotification(outcome Outcome) {
	p.notifications.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveNotifyDuration(d time.Duration) {
	p.notifyDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddInFlight(delta int) {
	p.inFlight.Add(float64(delta))
}

// Handler serves the recorder's registry in the Prometheus exposition format
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
