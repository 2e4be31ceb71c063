package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_IncrementsAndGauges(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	rec := New(reg)

	rec.ContextTried("nunjucks")
	rec.ContextTried("nunjucks")
	rec.RenderProbe("nunjucks")
	rec.BlindProbe("nunjucks")
	rec.Detection("nunjucks", "render")
	rec.TimingAverage("nunjucks", 1.5)

	if got := testutil.ToFloat64(rec.contextsTried.WithLabelValues("nunjucks")); got != 2 {
		t.Fatalf("expected 2 contexts tried, got %v", got)
	}
	if got := testutil.ToFloat64(rec.renderProbes.WithLabelValues("nunjucks")); got != 1 {
		t.Fatalf("expected 1 render probe, got %v", got)
	}
	if got := testutil.ToFloat64(rec.detectionsHit.WithLabelValues("nunjucks", "render")); got != 1 {
		t.Fatalf("expected 1 render detection, got %v", got)
	}
	if got := testutil.ToFloat64(rec.timingAverage.WithLabelValues("nunjucks")); got != 1.5 {
		t.Fatalf("expected timing average gauge 1.5, got %v", got)
	}
}

func TestRecorder_NilReceiverIsANoOp(t *testing.T) {
	t.Parallel()

	var rec *Recorder
	rec.ContextTried("x")
	rec.RenderProbe("x")
	rec.BlindProbe("x")
	rec.Detection("x", "render")
	rec.TimingAverage("x", 1)
}
