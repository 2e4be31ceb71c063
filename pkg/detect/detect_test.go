package detect

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sstimap/sstimap-go/pkg/channel"
	"github.com/sstimap/sstimap-go/pkg/inject"
	"github.com/sstimap/sstimap-go/pkg/metrics"
	"github.com/sstimap/sstimap-go/pkg/registry"
	"github.com/sstimap/sstimap-go/pkg/sstitest"
	"github.com/sstimap/sstimap-go/pkg/timing"
)

var catTagRe = regexp.MustCompile(`\{(\d+)\+(\d+)\}`)
var mulTagRe = regexp.MustCompile(`\{\{(\d+)\*(\d+)\}\}`)

// catEngine evaluates the "{N+M}" concatenation framing tags and the
// "{{7*7}}" style render probe this scenario's plugin declares, wrapping
// the evaluated span in unrelated page noise on either side — the same
// shape spec.md's worked examples describe.
func catEngine(injection string) string {
	out := catTagRe.ReplaceAllStringFunc(injection, func(m string) string {
		sub := catTagRe.FindStringSubmatch(m)
		return sub[1] + sub[2]
	})
	out = mulTagRe.ReplaceAllStringFunc(out, func(m string) string {
		sub := mulTagRe.FindStringSubmatch(m)
		a, _ := strconv.Atoi(sub[1])
		b, _ := strconv.Atoi(sub[2])
		return strconv.Itoa(a * b)
	})
	return "garbage" + out + "garbage"
}

func catPlugin() *registry.Plugin {
	return &registry.Plugin{
		Language:   "test",
		Name:       "catengine",
		HeaderType: "cat",
		Contexts:   []registry.ContextDescriptor{{Level: 0}},
		Actions: registry.ActionTable{
			"render": registry.Action{
				Templates: map[string]string{
					"render":               "{code}",
					"header":               "{{{header[0]}+{header[1]}}}",
					"trailer":              "{{{trailer[0]}+{trailer[1]}}}",
					"test_render":          "{{7*7}}",
					"test_render_expected": "49",
				},
			},
		},
	}
}

// TestS1_CleanRenderHit mirrors spec.md's worked example: a plugin with
// header_type "cat" whose test_render evaluates cleanly once framed,
// confirming render and notifying the channel with the expected string.
func TestS1_CleanRenderHit(t *testing.T) {
	t.Parallel()

	ch := sstitest.NewMockChannel(channel.Args{Technique: "R", Level: 1})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		return catEngine(injection), nil
	}
	s := NewSession(ch, catPlugin(), timing.New(0, 0), nil)

	if err := s.Detect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := ch.Data()
	if !data.GetBool("render") {
		t.Fatal("expected render to be confirmed")
	}
	if len(ch.Detections) != 1 || ch.Detections[0].Kind != "render" {
		t.Fatalf("expected exactly one 'render' detection event, got %+v", ch.Detections)
	}
	if ch.Detections[0].Detail["expected"] != "49" {
		t.Errorf("expected detection detail to carry the expected string '49', got %+v", ch.Detections[0].Detail)
	}
}

// TestS2_UnreliableRenderOnly simulates a target that strips the header/
// trailer framing before reflecting the response (so exact-match render
// detection never fires) but still evaluates the bare test_render payload,
// which detectUnreliableRender catches as a weaker, substring-only signal.
func TestS2_UnreliableRenderOnly(t *testing.T) {
	t.Parallel()

	ch := sstitest.NewMockChannel(channel.Args{Technique: "R", Level: 1})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		evaluated := mulTagRe.ReplaceAllStringFunc(injection, func(m string) string {
			sub := mulTagRe.FindStringSubmatch(m)
			a, _ := strconv.Atoi(sub[1])
			b, _ := strconv.Atoi(sub[2])
			return strconv.Itoa(a * b)
		})
		// Framing digits are evaluated too (the engine doesn't distinguish
		// them from any other tag) but then the app strips everything
		// that isn't the bare evaluated marker before reflecting it.
		stripped := catTagRe.ReplaceAllString(evaluated, "")
		return "...some page html..." + stripped + "...more html...", nil
	}
	s := NewSession(ch, catPlugin(), timing.New(0, 0), nil)

	if err := s.Detect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data := ch.Data()
	if data.GetBool("render") {
		t.Fatal("expected render NOT to be confirmed once framing is stripped")
	}
	if !data.GetBool("unreliable_render") {
		t.Fatal("expected unreliable_render to be set")
	}
	if !data.GetBool("unreliable") {
		t.Fatal("expected the generic 'unreliable' flag to be set alongside it")
	}
}

func blindPlugin(trueMarker, falseMarker string) *registry.Plugin {
	return &registry.Plugin{
		Contexts: []registry.ContextDescriptor{{Level: 0}},
		Actions: registry.ActionTable{
			"blind": registry.Action{
				Call: "inject",
				Templates: map[string]string{
					"test_bool_true":  trueMarker,
					"test_bool_false": falseMarker,
				},
			},
		},
	}
}

// TestS3_BlindTruePath follows the shape of the blind true-path scenario at
// test-friendly scale: both delay budgets are 900ms over a floored average of
// 0s, so the normal pass and the verify pass each need a whole-second delta
// of at least 1s. The true probe sleeps 1.1s, clearing both budgets; the
// false probe never sleeps.
func TestS3_BlindTruePath(t *testing.T) {
	t.Parallel()

	ch := sstitest.NewMockChannel(channel.Args{Technique: "T"})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		if strings.Contains(injection, "TRUE_MARK") {
			time.Sleep(1100 * time.Millisecond)
		}
		return "", nil
	}
	tm := timing.New(900*time.Millisecond, 900*time.Millisecond)
	plugin := blindPlugin("TRUE_MARK", "FALSE_MARK")
	s := NewSession(ch, plugin, tm, nil)

	ok, err := s.detectBlind(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected blind detection to succeed")
	}
	if !ch.Data().GetBool("blind") {
		t.Fatal("expected 'blind' to be set on session data")
	}
	if len(ch.Detections) != 1 || ch.Detections[0].Kind != "blind" {
		t.Fatalf("expected exactly one 'blind' detection event, got %+v", ch.Detections)
	}
}

// TestS4_BlindFalsePositiveRejected has both probes sleep identically, so
// the asymmetry check never passes and the context is abandoned without
// ever setting blind.
func TestS4_BlindFalsePositiveRejected(t *testing.T) {
	t.Parallel()

	ch := sstitest.NewMockChannel(channel.Args{Technique: "T"})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		if strings.Contains(injection, "MARK") {
			time.Sleep(1100 * time.Millisecond)
		}
		return "", nil
	}
	tm := timing.New(900*time.Millisecond, 900*time.Millisecond)
	plugin := blindPlugin("TRUE_MARK", "FALSE_MARK")
	s := NewSession(ch, plugin, tm, nil)

	ok, err := s.detectBlind(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected blind detection to be rejected as a false positive")
	}
	if ch.Data().GetBool("blind") {
		t.Fatal("expected 'blind' to remain unset")
	}
	if ch.Data().GetBool("blind_test") {
		t.Fatal("expected the provisional 'blind_test' marker to be cleared")
	}
}

// TestS6_ContextEnumeration reproduces spec.md's context-enumeration
// example directly: a single level-1 context whose closure matrix
// produces two combinations of equal length, kept in declaration order.
func TestS6_ContextEnumeration(t *testing.T) {
	t.Parallel()

	contexts := []registry.ContextDescriptor{
		{
			Level:  1,
			Prefix: "{closure}}}",
			Closures: map[int][][]string{
				1: {
					{"a", "b"},
					{"x"},
				},
			},
		},
	}
	got := inject.Enumerate(contexts, channel.Args{Level: 1})
	if len(got) != 2 {
		t.Fatalf("expected 2 enumerated prefixes, got %d: %+v", len(got), got)
	}
	if got[0].Prefix != "ax}}" || got[1].Prefix != "bx}}" {
		t.Fatalf("expected prefixes [ax}}, bx}}] in that order, got [%q, %q]", got[0].Prefix, got[1].Prefix)
	}
}

// TestWithTelemetry_RecordsRenderProbeMetrics confirms a Session wired with
// a metrics.Recorder reports the render probe and the resulting detection
// without requiring any caller to thread counters through Detect by hand.
func TestWithTelemetry_RecordsRenderProbeMetrics(t *testing.T) {
	t.Parallel()

	ch := sstitest.NewMockChannel(channel.Args{Technique: "R", Level: 1})
	ch.ReqFunc = func(_ context.Context, injection string) (string, error) {
		return catEngine(injection), nil
	}
	reg := prometheus.NewRegistry()
	rec := metrics.New(reg)
	s := NewSession(ch, catPlugin(), timing.New(0, 0), nil).WithTelemetry(nil, rec)

	if err := s.Detect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}
	var sawDetection bool
	for _, fam := range families {
		if fam.GetName() != "sstimap_detections_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			if m.GetCounter().GetValue() == 1 {
				sawDetection = true
			}
		}
	}
	if !sawDetection {
		t.Fatal("expected a recorded render detection counter")
	}
}
