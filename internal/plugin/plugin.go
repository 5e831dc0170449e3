// Package plugin defines the static plugin surface: a plugin is a descriptor
// with a pure registration function contributing (pattern, handler) pairs.
// The set of plugins is fixed at build time; configuration only toggles them.
package plugin

import (
	"fmt"

	"github.com/mattjoyce/voxgate/internal/config"
	"github.com/mattjoyce/voxgate/internal/grammar"
	"github.com/mattjoyce/voxgate/internal/log"
)

// Descriptor declares one plugin's contribution to the command grammar.
type Descriptor struct {
	Name        string
	Description string
	// Register contributes rule definitions and pattern registrations into a
	// registry private to this plugin. It must not retain the registry.
	Register func(reg *grammar.Registry) error
}

// Enabled reports whether cfg enables the named plugin. Plugins absent from
// the config default to enabled.
func Enabled(cfg *config.Config, name string) bool {
	pc, ok := cfg.Plugins[name]
	if !ok {
		return true
	}
	return pc.Enabled
}

// Assemble builds one registry per enabled descriptor and combines them into
// the immutable grammar. Assembly happens once at startup; collisions between
// plugins are a startup failure, not a runtime condition.
func Assemble(cfg *config.Config, descriptors []Descriptor) (*grammar.Grammar, error) {
	logger := log.WithComponent("plugin")

	regs := make([]*grammar.Registry, 0, len(descriptors))
	for _, d := range descriptors {
		if d.Name == "" || d.Register == nil {
			return nil, fmt.Errorf("invalid plugin descriptor: %+v", d)
		}
		if !Enabled(cfg, d.Name) {
			logger.Info("plugin disabled by config", "plugin", d.Name)
			continue
		}

		reg := grammar.NewRegistry()
		if err := d.Register(reg); err != nil {
			return nil, fmt.Errorf("plugin %q: %w", d.Name, err)
		}
		log.WithPlugin(d.Name).Info("plugin registered", "patterns", len(reg.Patterns()))
		regs = append(regs, reg)
	}

	g, err := grammar.Combine(regs...)
	if err != nil {
		return nil, fmt.Errorf("assemble grammar: %w", err)
	}
	return g, nil
}
