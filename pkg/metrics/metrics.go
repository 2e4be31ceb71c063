// Package metrics exposes Prometheus instrumentation for the detection
// core: how many contexts were tried, how many render and blind probes
// were fired, and the rolling average of the timing model's samples.
//
// Grounded on the chaos-utils example's use of client_golang for a
// Prometheus integration; that example wraps the query API (api/v1) to
// read metrics back out, while the core here needs the instrumentation
// side (the prometheus subpackage itself) to publish them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder bundles the counters and gauges a detection run reports
// against. A nil *Recorder is safe to call methods on; every method is a
// no-op in that case, so instrumentation is always optional.
type Recorder struct {
	contextsTried *prometheus.CounterVec
	renderProbes  *prometheus.CounterVec
	blindProbes   *prometheus.CounterVec
	timingAverage *prometheus.GaugeVec
	detectionsHit *prometheus.CounterVec
}

// New registers the core's metrics against reg and returns a Recorder.
// Pass prometheus.NewRegistry() for an isolated registry, or
// prometheus.DefaultRegisterer to publish on the default one.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		contextsTried: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstimap",
			Name:      "contexts_tried_total",
			Help:      "Number of enumerated injection contexts probed, by plugin.",
		}, []string{"plugin"}),
		renderProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstimap",
			Name:      "render_probes_total",
			Help:      "Number of reflected-render probes sent, by plugin.",
		}, []string{"plugin"}),
		blindProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstimap",
			Name:      "blind_probes_total",
			Help:      "Number of timing-blind probes sent, by plugin.",
		}, []string{"plugin"}),
		timingAverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sstimap",
			Name:      "timing_average_seconds",
			Help:      "Rolling average of the timing model's sample buffer, in whole seconds.",
		}, []string{"plugin"}),
		detectionsHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sstimap",
			Name:      "detections_total",
			Help:      "Confirmed detection events, by plugin and kind (render, blind).",
		}, []string{"plugin", "kind"}),
	}
	reg.MustRegister(r.contextsTried, r.renderProbes, r.blindProbes, r.timingAverage, r.detectionsHit)
	return r
}

// Handler returns an http.Handler exposing reg in the Prometheus text
// exposition format, suitable for mounting at /metrics.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (r *Recorder) ContextTried(plugin string) {
	if r == nil {
		return
	}
	r.contextsTried.WithLabelValues(plugin).Inc()
}

func (r *Recorder) RenderProbe(plugin string) {
	if r == nil {
		return
	}
	r.renderProbes.WithLabelValues(plugin).Inc()
}

func (r *Recorder) BlindProbe(plugin string) {
	if r == nil {
		return
	}
	r.blindProbes.WithLabelValues(plugin).Inc()
}

func (r *Recorder) TimingAverage(plugin string, seconds float64) {
	if r == nil {
		return
	}
	r.timingAverage.WithLabelValues(plugin).Set(seconds)
}

func (r *Recorder) Detection(plugin, kind string) {
	if r == nil {
		return
	}
	r.detectionsHit.WithLabelValues(plugin, kind).Inc()
}
