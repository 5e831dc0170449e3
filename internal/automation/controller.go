// Package automation is the boundary to OS-level input automation. Handlers
// call through the Controller interface; the production implementation
// shells out to desktop tools, and tests substitute a recorder.
package automation

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"

	"github.com/mattjoyce/voxgate/internal/grammar"
)

// maxToolStderrBytes caps captured diagnostic output from automation tools.
const maxToolStderrBytes = 4 * 1024

// Controller performs input automation on behalf of command handlers. All
// methods block until the underlying action completes and honor context
// cancellation.
type Controller interface {
	// PressChord presses the chord's key with its modifiers held.
	PressChord(ctx context.Context, chord grammar.Chord) error
	// TypeText types the literal text into the focused window.
	TypeText(ctx context.Context, text string) error
	// Notify raises a desktop notification.
	Notify(ctx context.Context, summary, body string) error
	// FocusWindow focuses the first window whose title matches the pattern.
	FocusWindow(ctx context.Context, title string) error
}

// ExecController drives automation via the xdotool and notify-send binaries.
type ExecController struct {
	// XDoTool and NotifySend override the binary names, mainly for tests.
	XDoTool    string
	NotifySend string
}

// NewExecController returns a controller using the standard tool names.
func NewExecController() *ExecController {
	return &ExecController{
		XDoTool:    "xdotool",
		NotifySend: "notify-send",
	}
}

func (c *ExecController) PressChord(ctx context.Context, chord grammar.Chord) error {
	return c.run(ctx, c.XDoTool, "key", "--clearmodifiers", chord.Spec())
}

func (c *ExecController) TypeText(ctx context.Context, text string) error {
	return c.run(ctx, c.XDoTool, "type", "--clearmodifiers", "--", text)
}

func (c *ExecController) Notify(ctx context.Context, summary, body string) error {
	return c.run(ctx, c.NotifySend, "--", summary, body)
}

func (c *ExecController) FocusWindow(ctx context.Context, title string) error {
	return c.run(ctx, c.XDoTool, "search", "--name", title, "windowactivate")
}

// run executes one tool invocation, surfacing trimmed stderr on failure.
func (c *ExecController) run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := stderr.String()
		if len(detail) > maxToolStderrBytes {
			detail = detail[:maxToolStderrBytes]
		}
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", name, err, detail)
		}
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
