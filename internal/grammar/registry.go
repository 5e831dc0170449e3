// Package grammar implements the command registry and the utterance grammar
// assembled from it.
//
// A pattern is a whitespace-separated sequence of tokens. A bare word matches
// itself; <name> matches a slot. Builtin slots:
//
//	<word>    one token, captured verbatim
//	<number>  one token, spoken ("zero".."ten") or digits
//	<chord>   one or more <key> tokens joined by the literal "plus";
//	          leading keys become modifiers
//	<text>    the rest of the utterance (non-empty), only valid last
//
// Any other slot name must be defined with Define as an alternation of
// spoken tokens mapping to emitted values (<chord> requires a "key" rule).
//
// Registries are mutable staging areas. Combine merges one or more registries
// into an immutable Grammar; after that point the grammar is shared freely
// across goroutines without locking.
package grammar

import (
	"fmt"
	"sort"
	"strings"
)

// Registry accumulates rule definitions and pattern registrations from one
// source, typically a plugin.
type Registry struct {
	rules    map[string]map[string]string
	patterns map[string]HandlerFunc
	order    []string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rules:    make(map[string]map[string]string),
		patterns: make(map[string]HandlerFunc),
	}
}

// Define adds a named rule: an alternation of spoken tokens, each mapped to
// the value it emits when matched. Builtin slot names are reserved.
func (r *Registry) Define(name string, values map[string]string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("rule name is empty")
	}
	if isBuiltinSlot(name) {
		return fmt.Errorf("rule %q shadows a builtin slot", name)
	}
	if _, exists := r.rules[name]; exists {
		return fmt.Errorf("rule %q already defined", name)
	}
	if len(values) == 0 {
		return fmt.Errorf("rule %q has no alternatives", name)
	}
	normalized := make(map[string]string, len(values))
	for spoken, value := range values {
		spoken = strings.ToLower(strings.TrimSpace(spoken))
		if spoken == "" || strings.ContainsAny(spoken, " \t") {
			return fmt.Errorf("rule %q: alternative %q must be a single token", name, spoken)
		}
		normalized[spoken] = value
	}
	r.rules[name] = normalized
	return nil
}

// Register associates a command pattern with its handler. The pattern source
// string is the command's identifier.
func (r *Registry) Register(pattern string, handler HandlerFunc) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return fmt.Errorf("pattern is empty")
	}
	if handler == nil {
		return fmt.Errorf("pattern %q: handler is nil", pattern)
	}
	if _, exists := r.patterns[pattern]; exists {
		return fmt.Errorf("pattern %q already registered", pattern)
	}
	r.patterns[pattern] = handler
	r.order = append(r.order, pattern)
	return nil
}

// Patterns returns the registered pattern identifiers in registration order.
func (r *Registry) Patterns() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Combine merges the rule sets and pattern maps of the given registries and
// compiles them into one Grammar. Duplicate pattern identifiers or rule names
// across sources are rejected: contributions must be disjoint, and collisions
// are an assembly-time error rather than a silent override.
func Combine(registries ...*Registry) (*Grammar, error) {
	rules := make(map[string]map[string]string)
	handlers := make(map[string]HandlerFunc)
	var sources []string

	for _, reg := range registries {
		if reg == nil {
			continue
		}
		for name, values := range reg.rules {
			if _, exists := rules[name]; exists {
				return nil, fmt.Errorf("rule %q defined by multiple sources", name)
			}
			rules[name] = values
		}
		for _, src := range reg.order {
			if _, exists := handlers[src]; exists {
				return nil, fmt.Errorf("pattern %q registered by multiple sources", src)
			}
			handlers[src] = reg.patterns[src]
			sources = append(sources, src)
		}
	}

	compiled := make([]*pattern, 0, len(sources))
	for _, src := range sources {
		p, err := compilePattern(src, rules)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", src, err)
		}
		compiled = append(compiled, p)
	}

	// Longer patterns first so the most specific phrasing wins; the source
	// string breaks ties deterministically.
	sort.SliceStable(compiled, func(i, j int) bool {
		if len(compiled[i].tokens) != len(compiled[j].tokens) {
			return len(compiled[i].tokens) > len(compiled[j].tokens)
		}
		return compiled[i].source < compiled[j].source
	})

	g := &Grammar{
		patterns: compiled,
		handlers: handlers,
		rules:    rules,
	}

	fingerprint, err := fingerprintGrammar(g)
	if err != nil {
		return nil, err
	}
	g.fingerprint = fingerprint
	return g, nil
}
