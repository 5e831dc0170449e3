// Package basic contributes the core desktop commands: chord presses, window
// switching, literal typing, notifications and window focus.
package basic

import (
	"context"
	"fmt"

	"github.com/mattjoyce/voxgate/internal/automation"
	"github.com/mattjoyce/voxgate/internal/grammar"
	"github.com/mattjoyce/voxgate/internal/plugin"
)

// Descriptor returns the plugin descriptor bound to an automation controller.
func Descriptor(ctrl automation.Controller) plugin.Descriptor {
	return plugin.Descriptor{
		Name:        "basic",
		Description: "chord presses, typing, notifications and window focus",
		Register: func(reg *grammar.Registry) error {
			return register(reg, ctrl)
		},
	}
}

func register(reg *grammar.Registry, ctrl automation.Controller) error {
	if err := reg.Define("key", Keys()); err != nil {
		return err
	}

	registrations := []struct {
		pattern string
		handler grammar.HandlerFunc
	}{
		{"say <chord>", func(ctx context.Context, args []grammar.Arg) error {
			return ctrl.PressChord(ctx, args[0].Chord)
		}},
		{"switch <chord>", func(ctx context.Context, args []grammar.Arg) error {
			chord := args[0].Chord
			chord.Modifiers = append([]string{"super"}, chord.Modifiers...)
			return ctrl.PressChord(ctx, chord)
		}},
		{"type <text>", func(ctx context.Context, args []grammar.Arg) error {
			return ctrl.TypeText(ctx, args[0].Text)
		}},
		{"alert <text>", func(ctx context.Context, args []grammar.Arg) error {
			return ctrl.Notify(ctx, "voxgate", args[0].Text)
		}},
		{"focus <word>", func(ctx context.Context, args []grammar.Arg) error {
			return ctrl.FocusWindow(ctx, args[0].Text)
		}},
	}

	for _, r := range registrations {
		if err := reg.Register(r.pattern, r.handler); err != nil {
			return fmt.Errorf("register %q: %w", r.pattern, err)
		}
	}
	return nil
}
