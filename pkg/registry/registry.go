package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sstimap/sstimap-go/pkg/config"
	"github.com/sstimap/sstimap-go/pkg/ssmerr"
	"github.com/sstimap/sstimap-go/pkg/ssmlog"
)

// Registry manages plugin classes grouped by language family, ordered by
// Priority ascending within a family, plus a flat list of plugins rejected
// at load time for an invalid header_type or an incompatible version.
// Grounded on the teacher
// SDK's sync.RWMutex-guarded provider map with package-level singleton
// wrappers (pkg/registry/registry.go in the original go-ai SDK).
type Registry struct {
	mu     sync.RWMutex
	byLang map[string][]*Plugin
	failed []*Plugin
	log    *ssmlog.Logger
}

// NewRegistry builds an empty registry. log may be nil, in which case
// events are discarded.
func NewRegistry(log *ssmlog.Logger) *Registry {
	if log == nil {
		log = ssmlog.Nop()
	}
	return &Registry{
		byLang: make(map[string][]*Plugin),
		log:    log,
	}
}

// Install registers a plugin, gating on its declared SSTImapVersion and
// HeaderType the way the Python core's __init_subclass__ hook gates on
// sstimap_version at class-creation time. A version that is too old or too
// new files the plugin under Failed() and returns the corresponding
// sentinel error rather than installing it.
func (r *Registry) Install(p *Plugin) error {
	if p.HeaderType == "" {
		p.HeaderType = config.DefaultHeaderType
	}
	if p.HeaderType != "cat" && p.HeaderType != "add" {
		r.mu.Lock()
		r.failed = append(r.failed, p)
		r.mu.Unlock()
		r.log.PluginRejected(fmt.Sprintf("%s plugin declares invalid header_type %q and cannot be loaded",
			p.EngineName(), p.HeaderType))
		return ssmerr.ErrInvalidHeaderType
	}

	version := p.SSTImapVersion
	if version == "" {
		version = config.Version
	}
	if config.CompareVersions(version, config.MinPluginVersion) == "<" {
		r.mu.Lock()
		r.failed = append(r.failed, p)
		r.mu.Unlock()
		r.log.PluginRejected(fmt.Sprintf("%s plugin is outdated and cannot be loaded", p.EngineName()))
		return ssmerr.ErrPluginVersionOld
	}
	if config.CompareVersions(version, config.Version) == ">" {
		r.mu.Lock()
		r.failed = append(r.failed, p)
		r.mu.Unlock()
		r.log.PluginRejected(fmt.Sprintf("%s plugin requires a core update and cannot be loaded", p.EngineName()))
		return ssmerr.ErrPluginVersionNew
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang[p.Language] = append(r.byLang[p.Language], p)
	sortPlugins(r.byLang[p.Language])
	return nil
}

func sortPlugins(plugins []*Plugin) {
	sort.SliceStable(plugins, func(i, j int) bool {
		gi := plugins[i].Flags&FlagGeneric != 0
		gj := plugins[j].Flags&FlagGeneric != 0
		if gi != gj {
			// Generic (catch-all) plugins sort after specific ones.
			return gj
		}
		return plugins[i].Priority < plugins[j].Priority
	})
}

// Plugins returns the priority-ordered plugin list for a language family.
// The returned slice is a copy; mutating it does not affect the registry.
func (r *Registry) Plugins(language string) []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.byLang[language]
	out := make([]*Plugin, len(src))
	copy(out, src)
	return out
}

// Languages returns every language family with at least one installed
// plugin.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byLang))
	for lang := range r.byLang {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Failed returns every plugin rejected at Install time.
func (r *Registry) Failed() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, len(r.failed))
	copy(out, r.failed)
	return out
}

// Describe returns the PluginInfo of every installed plugin for a language,
// in priority order — restoring the original's plugin_info reporting
// surface that spec.md dropped.
func (r *Registry) Describe(language string) []PluginInfo {
	plugins := r.Plugins(language)
	out := make([]PluginInfo, len(plugins))
	for i, p := range plugins {
		out[i] = p.Info
	}
	return out
}

// Unload drops every installed and failed plugin, matching the Python
// core's unload_plugins(): the registry returns to its zero state, while
// individual Plugin values already handed out to callers remain valid.
func (r *Registry) Unload() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLang = make(map[string][]*Plugin)
	r.failed = nil
}

// Global registry singleton, mirroring the teacher SDK's package-level
// wrappers over a default instance.
var global = NewRegistry(nil)

// Install registers a plugin in the global registry.
func Install(p *Plugin) error { return global.Install(p) }

// Plugins returns the global registry's plugin list for a language.
func Plugins(language string) []*Plugin { return global.Plugins(language) }

// Global returns the process-wide registry instance.
func Global() *Registry { return global }
