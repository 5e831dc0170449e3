package grammar

import "context"

// HandlerFunc is the asynchronous handler invoked with a parsed command's
// arguments. Handlers produce side effects only; the protocol carries no
// response.
type HandlerFunc func(ctx context.Context, args []Arg) error

// ArgKind discriminates the value held by an Arg.
type ArgKind string

const (
	ArgText   ArgKind = "text"
	ArgWord   ArgKind = "word"
	ArgNumber ArgKind = "number"
	ArgChord  ArgKind = "chord"
)

// Chord is a named key plus zero or more modifier keys.
type Chord struct {
	Key       string
	Modifiers []string
}

// Spec renders the chord in modifier+modifier+key form, e.g. "ctrl+shift+t".
func (c Chord) Spec() string {
	out := ""
	for _, m := range c.Modifiers {
		out += m + "+"
	}
	return out + c.Key
}

// Arg is one argument value extracted from a matched utterance.
type Arg struct {
	Kind   ArgKind
	Text   string // ArgText, ArgWord
	Number int    // ArgNumber
	Chord  Chord  // ArgChord
}

// ParsedCommand is the result of matching an utterance against the grammar:
// the pattern identifier plus the ordered argument values.
type ParsedCommand struct {
	Name string
	Args []Arg
}
