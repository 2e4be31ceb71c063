// Package detect implements the detection state machine (component D): the
// orchestration that walks a plugin's declared contexts, tells genuine
// template evaluation apart from incidental echo, and confirms time-based
// blind injection when reflected output isn't available.
package detect

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sstimap/sstimap-go/pkg/channel"
	"github.com/sstimap/sstimap-go/pkg/inject"
	"github.com/sstimap/sstimap-go/pkg/metrics"
	"github.com/sstimap/sstimap-go/pkg/registry"
	"github.com/sstimap/sstimap-go/pkg/ssmerr"
	"github.com/sstimap/sstimap-go/pkg/ssmlog"
	"github.com/sstimap/sstimap-go/pkg/telemetry"
	"github.com/sstimap/sstimap-go/pkg/timing"
)

// Session binds one plugin to one channel for the duration of a detection
// run. It is the Go re-expression of the Python Plugin instance: the
// channel carries the mutable facts (session data), the Session itself is
// stateless beyond its collaborators.
//
// Tracer and Metrics are both optional: a Session built by NewSession uses
// a no-op tracer and skips metrics entirely, so instrumentation never needs
// to be threaded through tests that don't care about it.
type Session struct {
	Channel  channel.Channel
	Plugin   *registry.Plugin
	Timing   *timing.Model
	Prim     *inject.Primitives
	Log      *ssmlog.Logger
	Tracer   trace.Tracer
	Metrics  *metrics.Recorder
	Settings *telemetry.Settings
}

// NewSession wires a Session's collaborators together; log may be nil.
func NewSession(ch channel.Channel, plugin *registry.Plugin, tm *timing.Model, log *ssmlog.Logger) *Session {
	if log == nil {
		log = ssmlog.Nop()
	}
	return &Session{
		Channel:  ch,
		Plugin:   plugin,
		Timing:   tm,
		Prim:     inject.New(ch, plugin, tm, log),
		Log:      log,
		Tracer:   telemetry.GetTracer(nil),
		Settings: telemetry.DefaultSettings(),
	}
}

// WithTelemetry attaches telemetry settings and a metrics recorder to the
// session; settings may be nil, which disables tracing (GetTracer then
// returns a no-op tracer), and rec may be nil to skip metrics entirely.
func (s *Session) WithTelemetry(settings *telemetry.Settings, rec *metrics.Recorder) *Session {
	if settings == nil {
		settings = telemetry.DefaultSettings()
	}
	s.Settings = settings
	s.Tracer = telemetry.GetTracer(settings)
	s.Metrics = rec
	return s
}

// Detect runs the full state machine for the requested technique(s): render
// detection (falling back to the unreliable-render signal) strictly before
// blind detection, and blind is skipped entirely once an engine is already
// confirmed — by this plugin or, in a multi-plugin driver, by another one
// sharing the same channel data.
func (s *Session) Detect(ctx context.Context) error {
	_, err := telemetry.RecordSpan(ctx, s.Tracer, telemetry.SpanOptions{
		Name:        "detect.Run",
		Attributes:  telemetry.ProbeAttributes(s.Plugin.EngineName(), s.Plugin.Language, s.Settings),
		EndWhenDone: true,
	}, func(ctx context.Context, _ trace.Span) (struct{}, error) {
		args := s.Channel.Args()

		// A missing action or an unsupported call name only means this
		// plugin lacks the capability; it is skipped rather than aborting.
		fatal := func(err error) bool {
			return err != nil && !errors.Is(err, ssmerr.ErrActionMissing) && !errors.Is(err, ssmerr.ErrCallUnsupported)
		}

		if args.HasTechnique('R') {
			matched, err := s.detectRender(ctx)
			if fatal(err) {
				return struct{}{}, err
			}
			if !matched {
				if err := s.detectUnreliableRender(ctx); fatal(err) {
					return struct{}{}, err
				}
			}
		}

		if args.HasTechnique('T') {
			if s.Channel.Data().Get("engine", nil) == nil {
				if _, err := s.detectBlind(ctx); fatal(err) {
					return struct{}{}, err
				}
			}
		}
		return struct{}{}, nil
	})
	return err
}

// detectRender walks every enumerated context in order and renders the
// plugin's test payload, requiring exact equality between the extracted
// body and the expected string. The first match wins (component B's
// deterministic ordering is the tie-break), persists the winning framing
// onto the channel's session data so later capability calls reuse it, and
// notifies the channel.
func (s *Session) detectRender(ctx context.Context) (bool, error) {
	action := s.Plugin.Actions["render"]
	testRender := action.String("test_render")
	testExpected := action.String("test_render_expected")
	if testRender == "" || testExpected == "" {
		return false, nil
	}
	headerTemplate := action.String("header")
	trailerTemplate := action.String("trailer")

	for i, ctx2 := range inject.Enumerate(s.Plugin.Contexts, s.Channel.Args()) {
		s.Metrics.ContextTried(s.Plugin.EngineName())
		s.Metrics.RenderProbe(s.Plugin.EngineName())

		attrs := append(telemetry.ProbeAttributes(s.Plugin.EngineName(), s.Plugin.Language, s.Settings),
			attribute.Int("context_index", i))
		matched, err := telemetry.RecordSpan(ctx, s.Tracer, telemetry.SpanOptions{
			Name:        "detect.renderProbe",
			Attributes:  attrs,
			EndWhenDone: true,
		}, func(ctx context.Context, span trace.Span) (bool, error) {
			prefix, suffix, wrapper := ctx2.Prefix, ctx2.Suffix, ctx2.Wrapper
			result, _, err := s.Prim.Render(ctx, testRender, inject.RenderOpts{
				CallOpts: inject.CallOpts{Prefix: &prefix, Suffix: &suffix, Wrapper: &wrapper},
			})
			if err != nil {
				return false, err
			}
			if result == "" || result != testExpected {
				return false, nil
			}

			data := s.Channel.Data()
			data.Set("render", true)
			data.Set("header", headerTemplate)
			data.Set("trailer", trailerTemplate)
			data.Set("prefix", prefix)
			data.Set("suffix", suffix)
			data.Set("wrapper", wrapper)
			data.Set("engine", s.Plugin.EngineName())
			data.Delete("unreliable_render")
			data.Delete("unreliable")

			s.Channel.Detected("render", map[string]any{"expected": testExpected})
			s.Metrics.Detection(s.Plugin.EngineName(), "render")
			telemetry.AddResultAttributes(span, map[string]interface{}{"matched": true})
			return true, nil
		})
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// detectUnreliableRender fires a single unframed, unprefixed probe and
// checks for substring containment rather than exact equality: weaker
// evidence the engine is echoing, but not actionable on its own.
func (s *Session) detectUnreliableRender(ctx context.Context) error {
	action := s.Plugin.Actions["render"]
	testRender := action.String("test_render")
	testExpected := action.String("test_render_expected")
	if testRender == "" || testExpected == "" {
		return nil
	}

	empty := ""
	result, _, err := s.Prim.Render(ctx, testRender, inject.RenderOpts{
		Header:  &empty,
		Trailer: &empty,
		CallOpts: inject.CallOpts{
			Prefix: &empty,
			Suffix: &empty,
		},
	})
	if err != nil {
		return err
	}
	if !strings.Contains(result, testExpected) {
		return nil
	}

	data := s.Channel.Data()
	if data.GetBool("unreliable_render") {
		return nil
	}
	data.Set("unreliable_render", true)
	data.Set("unreliable", true)
	s.Log.Warn("unreliable render signal: expected string echoed without framing")
	return nil
}

// detectBlind requires a "blind" action with both boolean test payloads. For
// each context it runs the asymmetry check at the normal delay budget, then
// re-runs it at the verify delay (tm_verify_delay) before committing —
// guarding against noise that happens to clear the first, cheaper bar.
func (s *Session) detectBlind(ctx context.Context) (bool, error) {
	action := s.Plugin.Actions["blind"]
	testTrue := action.String("test_bool_true")
	testFalse := action.String("test_bool_false")
	if testTrue == "" || testFalse == "" {
		return false, nil
	}
	callName := action.Call
	if callName == "" {
		callName = "inject"
	}

	data := s.Channel.Data()

	if s.Timing != nil {
		s.Metrics.TimingAverage(s.Plugin.EngineName(), s.Timing.Average().Seconds())
	}

	for i, ctx2 := range inject.Enumerate(s.Plugin.Contexts, s.Channel.Args()) {
		s.Metrics.ContextTried(s.Plugin.EngineName())
		s.Metrics.BlindProbe(s.Plugin.EngineName())

		attrs := append(telemetry.ProbeAttributes(s.Plugin.EngineName(), s.Plugin.Language, s.Settings),
			attribute.Int("context_index", i))
		matched, err := telemetry.RecordSpan(ctx, s.Tracer, telemetry.SpanOptions{
			Name:        "detect.blindProbe",
			Attributes:  attrs,
			EndWhenDone: true,
		}, func(ctx context.Context, span trace.Span) (bool, error) {
			prefix, suffix, wrapper := ctx2.Prefix, ctx2.Suffix, ctx2.Wrapper
			opts := inject.CallOpts{Prefix: &prefix, Suffix: &suffix, Wrapper: &wrapper, Blind: true}

			_, trueHit, err := s.Prim.Dispatch(ctx, callName, testTrue, opts)
			if err != nil {
				return false, err
			}
			if !trueHit {
				return false, nil
			}

			_, falseHit, err := s.Prim.Dispatch(ctx, callName, testFalse, opts)
			if err != nil {
				return false, err
			}
			if falseHit {
				return false, nil
			}

			data.Set("blind_test", true)
			_, trueVerify, err := s.Prim.Dispatch(ctx, callName, testTrue, opts)
			if err != nil {
				data.Delete("blind_test")
				return false, err
			}
			_, falseVerify, err := s.Prim.Dispatch(ctx, callName, testFalse, opts)
			data.Delete("blind_test")
			if err != nil {
				return false, err
			}

			if trueVerify && !falseVerify {
				data.Set("blind", true)
				data.Set("prefix", prefix)
				data.Set("suffix", suffix)
				data.Set("wrapper", wrapper)
				data.Set("engine", s.Plugin.EngineName())
				data.Delete("unreliable_render")
				data.Delete("unreliable")
				s.Channel.Detected("blind", map[string]any{"context_prefix": prefix})
				s.Metrics.Detection(s.Plugin.EngineName(), "blind")
				telemetry.AddResultAttributes(span, map[string]interface{}{"matched": true})
				return true, nil
			}
			s.Log.Warn("blind re-verification disagreed; treating as false positive")
			return false, nil
		})
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}
