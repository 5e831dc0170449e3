package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/mattjoyce/voxgate/internal/config"
	"github.com/mattjoyce/voxgate/internal/grammar"
)

func descriptor(name, pattern string) Descriptor {
	return Descriptor{
		Name:        name,
		Description: name + " test plugin",
		Register: func(reg *grammar.Registry) error {
			return reg.Register(pattern, func(ctx context.Context, args []grammar.Arg) error {
				return nil
			})
		},
	}
}

func TestAssembleMergesEnabledPlugins(t *testing.T) {
	cfg := config.Defaults()

	g, err := Assemble(cfg, []Descriptor{
		descriptor("one", "type <text>"),
		descriptor("two", "alert <text>"),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(g.Patterns()) != 2 {
		t.Fatalf("patterns = %v", g.Patterns())
	}
}

func TestAssembleSkipsDisabledPlugin(t *testing.T) {
	cfg := config.Defaults()
	cfg.Plugins["two"] = config.PluginConf{Enabled: false}

	g, err := Assemble(cfg, []Descriptor{
		descriptor("one", "type <text>"),
		descriptor("two", "alert <text>"),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(g.Patterns()) != 1 {
		t.Fatalf("patterns = %v", g.Patterns())
	}
}

func TestAssembleRejectsCollision(t *testing.T) {
	cfg := config.Defaults()

	_, err := Assemble(cfg, []Descriptor{
		descriptor("one", "type <text>"),
		descriptor("two", "type <text>"),
	})
	if err == nil {
		t.Fatal("expected collision error")
	}
}

func TestAssemblePropagatesRegisterError(t *testing.T) {
	cfg := config.Defaults()
	boom := errors.New("bad plugin")

	_, err := Assemble(cfg, []Descriptor{{
		Name:        "broken",
		Description: "always fails",
		Register:    func(reg *grammar.Registry) error { return boom },
	}})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestEnabledDefaultsToTrue(t *testing.T) {
	cfg := config.Defaults()
	if !Enabled(cfg, "unconfigured") {
		t.Fatal("absent plugin should default to enabled")
	}
}
