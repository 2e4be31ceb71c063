// Package javascript holds data shared by every JavaScript/Nunjucks-family
// engine plugin. The original Python source imports this shared closure
// matrix from plugins/languages/javascript (referenced by nunjucks.py as
// javascript.ctx_closures) but that module itself was not part of the
// retrieved source tree; the matrix below is authored fresh, grounded on
// the delimiter characters the Nunjucks plugin's own contexts close against
// ('"', "'", "}}", "%}") — payload data is explicitly out of scope for the
// core's behavior per the detection protocol, only its shape matters.
package javascript

import "github.com/sstimap/sstimap-go/pkg/registry"

// CtxClosures is the closure-level matrix shared by contexts that need to
// break out of a surrounding JS string literal or object/array/function
// call expression before the engine's own template syntax can run.
var CtxClosures = map[int][][]string{
	1: {
		{"", "\"", "'", "`"},
		{"", ")", "]", "}"},
	},
}

// BaseContexts is the plain-text, no-escape-needed context a
// JavaScript-family plugin can start its registry.Plugin.Contexts list
// from. The Nunjucks plugin declares the same level-0 context directly.
func BaseContexts() []registry.ContextDescriptor {
	return []registry.ContextDescriptor{{Level: 0}}
}
