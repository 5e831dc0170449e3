// Package doctor validates a voxgate deployment before the daemon starts:
// config sanity, grammar assembly, socket placement and automation tooling.
package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/mattjoyce/voxgate/internal/config"
	"github.com/mattjoyce/voxgate/internal/plugin"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the compiled-in plugin set.
type Doctor struct {
	cfg         *config.Config
	descriptors []plugin.Descriptor
	lookPath    func(string) (string, error)
}

// New creates a Doctor from a loaded config and the plugin descriptors the
// daemon would assemble.
func New(cfg *config.Config, descriptors []plugin.Descriptor) *Doctor {
	return &Doctor{cfg: cfg, descriptors: descriptors, lookPath: exec.LookPath}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{}

	d.validateSocket(r)
	d.validateGrammar(r)
	d.warnUnknownPlugins(r)
	d.warnMissingTools(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateSocket checks that the socket can plausibly be bound.
func (d *Doctor) validateSocket(r *Result) {
	path := d.cfg.Socket.Path
	if fi, err := os.Lstat(path); err == nil && fi.Mode().Type() != os.ModeSocket {
		d.addError(r, "socket", "socket.path",
			fmt.Sprintf("%q exists and is not a socket", path))
	}

	dir := filepath.Dir(path)
	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			d.addError(r, "socket", "socket.path", fmt.Sprintf("%q is not a directory", dir))
		}
	} else if !os.IsNotExist(err) {
		d.addError(r, "socket", "socket.path", fmt.Sprintf("stat %q: %v", dir, err))
	}

	if _, _, err := d.cfg.Socket.FileMode(); err != nil {
		d.addError(r, "socket", "socket.mode", err.Error())
	}
}

// validateGrammar performs a dry-run assembly so pattern collisions surface
// here instead of at daemon start.
func (d *Doctor) validateGrammar(r *Result) {
	g, err := plugin.Assemble(d.cfg, d.descriptors)
	if err != nil {
		d.addError(r, "grammar", "plugins", err.Error())
		return
	}
	if len(g.Patterns()) == 0 {
		d.addWarning(r, "grammar", "plugins", "no patterns registered; every utterance will be unrecognized")
	}
}

// warnUnknownPlugins flags config entries that match no compiled-in plugin.
func (d *Doctor) warnUnknownPlugins(r *Result) {
	known := make(map[string]bool, len(d.descriptors))
	for _, desc := range d.descriptors {
		known[desc.Name] = true
	}
	for name := range d.cfg.Plugins {
		if !known[name] {
			d.addWarning(r, "plugins", "plugins."+name, "config references unknown plugin")
		}
	}
}

// warnMissingTools checks that the automation binaries are on PATH.
func (d *Doctor) warnMissingTools(r *Result) {
	for _, tool := range []string{"xdotool", "notify-send"} {
		if _, err := d.lookPath(tool); err != nil {
			d.addWarning(r, "automation", "", fmt.Sprintf("%s not found on PATH", tool))
		}
	}
}
