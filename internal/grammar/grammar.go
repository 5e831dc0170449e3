package grammar

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// ErrNoMatch reports that an utterance matched no registered pattern.
// Per message, non-fatal: callers drop the message and carry on.
var ErrNoMatch = errors.New("grammar: no pattern matches")

// Grammar is the immutable result of combining registries. It is safe for
// concurrent use without locking.
type Grammar struct {
	patterns    []*pattern
	handlers    map[string]HandlerFunc
	rules       map[string]map[string]string
	fingerprint string
}

// Parse matches an utterance against the grammar. Matching is total over
// well-formed input: either a command with its arguments is returned, or
// ErrNoMatch.
func (g *Grammar) Parse(text string) (ParsedCommand, error) {
	input := strings.Fields(strings.ToLower(strings.TrimSpace(text)))
	if len(input) == 0 {
		return ParsedCommand{}, ErrNoMatch
	}

	for _, p := range g.patterns {
		if args, ok := p.match(input, g.rules); ok {
			return ParsedCommand{Name: p.source, Args: args}, nil
		}
	}
	return ParsedCommand{}, ErrNoMatch
}

// Handler returns the handler for a pattern identifier. Present for every
// identifier Parse can return, by construction.
func (g *Grammar) Handler(name string) (HandlerFunc, bool) {
	h, ok := g.handlers[name]
	return h, ok
}

// Patterns returns the pattern identifiers in match-priority order.
func (g *Grammar) Patterns() []string {
	out := make([]string, 0, len(g.patterns))
	for _, p := range g.patterns {
		out = append(out, p.source)
	}
	return out
}

// Fingerprint identifies the compiled grammar shape, for logs and the
// status API.
func (g *Grammar) Fingerprint() string {
	return g.fingerprint
}

// fingerprintGrammar hashes a canonical rendering of the grammar: sorted
// pattern sources plus sorted rule alternations.
func fingerprintGrammar(g *Grammar) (string, error) {
	type rulePair struct {
		Spoken string `json:"spoken"`
		Value  string `json:"value"`
	}
	type ruleShape struct {
		Name  string     `json:"name"`
		Pairs []rulePair `json:"pairs"`
	}
	type grammarShape struct {
		Patterns []string    `json:"patterns"`
		Rules    []ruleShape `json:"rules"`
	}

	shape := grammarShape{
		Patterns: g.Patterns(),
	}
	sort.Strings(shape.Patterns)

	ruleNames := make([]string, 0, len(g.rules))
	for name := range g.rules {
		ruleNames = append(ruleNames, name)
	}
	sort.Strings(ruleNames)
	for _, name := range ruleNames {
		rs := ruleShape{Name: name}
		for spoken, value := range g.rules[name] {
			rs.Pairs = append(rs.Pairs, rulePair{Spoken: spoken, Value: value})
		}
		sort.Slice(rs.Pairs, func(i, j int) bool { return rs.Pairs[i].Spoken < rs.Pairs[j].Spoken })
		shape.Rules = append(shape.Rules, rs)
	}

	body, err := json.Marshal(shape)
	if err != nil {
		return "", fmt.Errorf("marshal grammar fingerprint input: %w", err)
	}
	sum := blake3.Sum256(body)
	return "blake3:" + hex.EncodeToString(sum[:]), nil
}
