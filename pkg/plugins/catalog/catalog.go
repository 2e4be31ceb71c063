// Package catalog loads engine plugin descriptors from YAML documents,
// as an alternative to constructing registry.Plugin literals in Go. A
// catalog file holds one plugin per document, letting new engines be
// added to a deployment without a rebuild.
package catalog

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/sstimap/sstimap-go/pkg/registry"
)

// contextDoc is the YAML shape of one registry.ContextDescriptor entry.
type contextDoc struct {
	Level    int                 `yaml:"level"`
	Prefix   string              `yaml:"prefix"`
	Suffix   string              `yaml:"suffix"`
	Wrappers []string            `yaml:"wrappers"`
	Closures map[int][][]string  `yaml:"closures"`
}

// actionDoc is the YAML shape of one registry.Action entry.
type actionDoc struct {
	Call      string              `yaml:"call"`
	Templates map[string]string   `yaml:"templates"`
	Lists     map[string][]string `yaml:"lists"`
}

// pluginDoc is the YAML shape of a full plugin descriptor.
type pluginDoc struct {
	Language       string               `yaml:"language"`
	Name           string               `yaml:"name"`
	Priority       int                  `yaml:"priority"`
	HeaderType     string               `yaml:"header_type"`
	SSTImapVersion string               `yaml:"sstimap_version"`
	Info           struct {
		Description string   `yaml:"description"`
		UsageNotes  string   `yaml:"usage_notes"`
		Authors     []string `yaml:"authors"`
		References  []string `yaml:"references"`
		Engine      []string `yaml:"engine"`
	} `yaml:"info"`
	Flags    []string              `yaml:"flags"`
	Contexts []contextDoc          `yaml:"contexts"`
	Actions  map[string]actionDoc  `yaml:"actions"`
}

var flagByName = map[string]registry.ClassFlags{
	"generic":   registry.FlagGeneric,
	"legacy":    registry.FlagLegacy,
	"extra":     registry.FlagExtra,
	"no_tests":  registry.FlagNoTests,
}

// Load decodes every YAML document in r into a registry.Plugin, in file
// order. A catalog file may hold multiple "---"-separated documents.
func Load(r io.Reader) ([]*registry.Plugin, error) {
	dec := yaml.NewDecoder(r)
	var plugins []*registry.Plugin
	for {
		var doc pluginDoc
		if err := dec.Decode(&doc); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("catalog: decode plugin document: %w", err)
		}
		p, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		plugins = append(plugins, p)
	}
	return plugins, nil
}

func fromDoc(doc pluginDoc) (*registry.Plugin, error) {
	if doc.Language == "" {
		return nil, fmt.Errorf("catalog: plugin %q missing language", doc.Name)
	}

	contexts := make([]registry.ContextDescriptor, len(doc.Contexts))
	for i, c := range doc.Contexts {
		contexts[i] = registry.ContextDescriptor{
			Level:    c.Level,
			Prefix:   c.Prefix,
			Suffix:   c.Suffix,
			Wrappers: c.Wrappers,
			Closures: c.Closures,
		}
	}

	actions := make(registry.ActionTable, len(doc.Actions))
	for name, a := range doc.Actions {
		actions[name] = registry.Action{
			Call:      a.Call,
			Templates: a.Templates,
			Lists:     a.Lists,
		}
	}

	var flags registry.ClassFlags
	for _, name := range doc.Flags {
		f, ok := flagByName[name]
		if !ok {
			return nil, fmt.Errorf("catalog: plugin %q has unknown flag %q", doc.Name, name)
		}
		flags |= f
	}

	return &registry.Plugin{
		Language:       doc.Language,
		Name:           doc.Name,
		Priority:       doc.Priority,
		HeaderType:     doc.HeaderType,
		SSTImapVersion: doc.SSTImapVersion,
		Flags:          flags,
		Contexts:       contexts,
		Actions:        actions,
		Info: registry.PluginInfo{
			Description: doc.Info.Description,
			UsageNotes:  doc.Info.UsageNotes,
			Authors:     doc.Info.Authors,
			References:  doc.Info.References,
			Engine:      doc.Info.Engine,
		},
	}, nil
}
