// Package registry implements the plugin registry (component H): an
// engine plugin descriptor type, a process-wide priority-ordered registry
// keyed by language family, and version gating at install time. It is
// grounded directly on the teacher SDK's pkg/registry/registry.go, which
// guards a package-level provider map with a sync.RWMutex and exposes both
// an instance API and package-level wrappers over a singleton.
package registry

import "github.com/sstimap/sstimap-go/pkg/template"

// PluginInfo mirrors the Python plugin_info class attribute the original
// implementation carries on every plugin (Description, Usage notes,
// Authors, References, Engine) — present in original_source but dropped
// from the distilled spec. Restored here purely for reporting.
type PluginInfo struct {
	Description string
	UsageNotes  string
	Authors     []string
	References  []string
	Engine      []string
}

// Class flags mirror the Python class-level categorization attributes
// (generic_plugin, legacy_plugin, extra_plugin, no_tests) the original
// carries on every plugin but spec.md never mentions. Only FlagGeneric is
// consulted by the registry, to order plugins; the other flags are carried
// for callers and are not consulted by the registry or the detection state
// machine.
type ClassFlags uint8

const (
	FlagNone ClassFlags = 0
	// FlagGeneric marks a plugin that targets no specific engine (a
	// catch-all fallback); the registry sorts these last within a
	// language's plugin list.
	FlagGeneric ClassFlags = 1 << iota
	// FlagLegacy marks a plugin kept for backward compatibility only.
	FlagLegacy
	// FlagExtra marks an optional plugin; it is loaded and installed like
	// any other.
	FlagExtra
	// FlagNoTests marks a plugin whose actions are deliberately untested
	// (e.g. destructive-only payloads); the registry never skips loading
	// it, but test harnesses can filter on this flag.
	FlagNoTests
)

// ContextDescriptor is one entry of a plugin's declared escape-context
// list (component B's input): a prefix/suffix/wrapper recipe, optionally
// gated behind aggressiveness Level, with an optional closure matrix.
type ContextDescriptor struct {
	Level int

	// Prefix contains the literal placeholder "{closure}"; if empty it
	// defaults to "{closure}" at enumeration time.
	Prefix string
	Suffix string

	// Wrappers defaults to a single "{code}" wrapper at enumeration time.
	Wrappers []string

	// Closures maps a closure aggressiveness level to a matrix of
	// alternative string fragments; the Cartesian product of each row,
	// joined, yields a candidate closure for Prefix's {closure}.
	Closures map[int][][]string
}

// Action names a single injection primitive call plus the template
// strings/lists that primitive consumes. Template compiles a named template
// on first use and memoizes it on that Action value; an Action read out of
// an ActionTable is a copy, so the memo is not kept in the table.
type Action struct {
	// Call names the injection primitive this action dispatches to:
	// "inject", "render", "evaluate", "execute", "evaluate_blind" or
	// "execute_blind". Empty means the primitive's own default (render for
	// non-blind capability adapters, inject for blind ones).
	Call string

	// Templates holds every named template string the action declares,
	// compiled lazily via Template().
	Templates map[string]string

	// Lists holds named lists of template strings (bind_shell,
	// reverse_shell each carry more than one payload variant).
	Lists map[string][]string

	compiled map[string]*template.Template
}

// Template returns (and memoizes) the compiled form of the named template
// string. Returns nil if the key is absent.
func (a *Action) Template(key string) *template.Template {
	if a == nil {
		return nil
	}
	raw, ok := a.Templates[key]
	if !ok {
		return nil
	}
	if a.compiled == nil {
		a.compiled = make(map[string]*template.Template)
	}
	if t, ok := a.compiled[key]; ok {
		return t
	}
	t := template.Compile(raw)
	a.compiled[key] = t
	return t
}

// Has reports whether the named template key is present.
func (a *Action) Has(key string) bool {
	if a == nil {
		return false
	}
	_, ok := a.Templates[key]
	return ok
}

// String returns the raw (uncompiled) template string for key.
func (a *Action) String(key string) string {
	if a == nil {
		return ""
	}
	return a.Templates[key]
}

// ActionTable maps a capability name ("render", "evaluate", "execute",
// "read", "write", "md5", "blind", "bind_shell", "reverse_shell",
// "evaluate_blind", "execute_blind") to its Action descriptor.
type ActionTable map[string]Action

// Plugin is the immutable, per-engine descriptor the detection core
// consumes. Action-tree inheritance from the original's
// update_actions/_recursive_update is resolved before a Plugin reaches
// this shape: callers compose a full ActionTable (e.g. by starting from a
// language-family base and overriding individual actions) and hand the
// flattened result to Install.
type Plugin struct {
	// Language is the language family this plugin belongs to
	// ("javascript", "python", "php", ...).
	Language string

	// Name identifies the plugin within its language family (the engine
	// name, e.g. "nunjucks").
	Name string

	// Priority orders plugins within a language family; lower runs first.
	Priority int

	// HeaderType controls how header_rand/trailer_rand reduce to an
	// expected string: "cat" (concatenation, the default) or "add" (sum).
	HeaderType string

	Info     PluginInfo
	Flags    ClassFlags
	Contexts []ContextDescriptor
	Actions  ActionTable

	// SSTImapVersion is the core version this plugin was written against,
	// version-gated against config.Version/config.MinPluginVersion at
	// Install time.
	SSTImapVersion string
}

// EngineName returns the name detection stores under channel data key
// "engine": Name as given (no case folding), or Language when Name is
// empty.
func (p *Plugin) EngineName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Language
}
