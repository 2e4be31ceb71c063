package telemetry

import (
	"context"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/sstimap/sstimap-go/pkg/ssmlog"
)

// logExporter is a trace.SpanExporter that writes finished spans through a
// core logger instead of shipping them to a collector — enough to let a
// driver run with --verbose tracing without standing up an OTLP backend.
type logExporter struct {
	log *ssmlog.Logger
}

func (e logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		e.log.ContextVariation(s.Name())
	}
	return nil
}

func (e logExporter) Shutdown(context.Context) error { return nil }

// NewLoggingProvider builds a sdktrace.TracerProvider whose spans are
// reported through log, for drivers that want real span objects without an
// external collector (--verbose mode, local debugging).
func NewLoggingProvider(log *ssmlog.Logger) *sdktrace.TracerProvider {
	if log == nil {
		log = ssmlog.Nop()
	}
	return sdktrace.NewTracerProvider(sdktrace.WithSyncer(logExporter{log: log}))
}
