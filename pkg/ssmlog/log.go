// Package ssmlog adapts the Python core's graduated numeric log levels
// (log.log(21..29), interleaved with plain log.debug calls) onto
// github.com/rs/zerolog's structured leveled logger. Every leveled helper
// except Debug carries the original numeric level as the "ssmap_level"
// field so log greps written against the upstream tool still work against
// our output.
package ssmlog

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Numeric levels lifted verbatim from the Python source's log.log(N, ...)
// call sites, preserved here purely as documentation/field values — they do
// not change zerolog's own level filtering.
const (
	LevelFileDownloaded   = 21 // "File downloaded correctly"
	LevelPluginRejected   = 22 // plugin version mismatch at load
	LevelProbing          = 23 // "plugin is testing ..."
	LevelConfirmed        = 24 // "plugin has confirmed injection/blind injection"
	LevelWarn             = 25 // unreliable render / false positive / write refused
	LevelContextVariation = 26 // "testing N variations"
	LevelPossible         = 28 // "has detected possible blind injection"
	LevelVariance         = 29 // "timing varies too much"
)

// Logger wraps a zerolog.Logger with helpers keyed to the numeric levels
// above, so call sites read the same way the Python source's log.log calls
// did while the output is zerolog's structured JSON/console format.
type Logger struct {
	z zerolog.Logger
}

// New builds a Logger writing to w (os.Stderr if w is nil) with the given
// component name attached to every event.
func New(w io.Writer, component string) *Logger {
	if w == nil {
		w = os.Stderr
	}
	z := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{z: z}
}

// Nop returns a Logger that discards everything, for tests that don't care
// about log output.
func Nop() *Logger {
	return &Logger{z: zerolog.Nop()}
}

func (l *Logger) event(level int, zlevel zerolog.Level, msg string) {
	l.z.WithLevel(zlevel).Int("ssmap_level", level).Msg(msg)
}

// Debug mirrors the plain log.debug(...) call sites.
func (l *Logger) Debug(msg string) { l.z.Debug().Msg(msg) }

// Probe logs a "plugin is testing X" message (level 23).
func (l *Logger) Probe(msg string) { l.event(LevelProbing, zerolog.InfoLevel, msg) }

// Confirmed logs a "plugin has confirmed X" message (level 24).
func (l *Logger) Confirmed(msg string) { l.event(LevelConfirmed, zerolog.InfoLevel, msg) }

// Warn logs an operator-visible warning (level 25): unreliable render
// detected, blind false positive, write refused without force, md5 mismatch.
func (l *Logger) Warn(msg string) { l.event(LevelWarn, zerolog.WarnLevel, msg) }

// ContextVariation logs the "testing N variations" message (level 26).
func (l *Logger) ContextVariation(msg string) { l.event(LevelContextVariation, zerolog.DebugLevel, msg) }

// Possible logs the provisional blind-detection message (level 28).
func (l *Logger) Possible(msg string) { l.event(LevelPossible, zerolog.InfoLevel, msg) }

// Variance logs the one-shot timing-variance warning (level 29).
func (l *Logger) Variance(msg string) { l.event(LevelVariance, zerolog.WarnLevel, msg) }

// PluginRejected logs a version-gate rejection at plugin load (level 22).
func (l *Logger) PluginRejected(msg string) { l.event(LevelPluginRejected, zerolog.WarnLevel, msg) }

// FileDownloaded logs successful file download confirmation (level 21).
func (l *Logger) FileDownloaded(msg string) { l.event(LevelFileDownloaded, zerolog.InfoLevel, msg) }

// With returns a derived Logger with an additional string field attached.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{z: l.z.With().Str(key, value).Logger()}
}
