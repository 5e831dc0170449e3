package grammar

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenKind int

const (
	tokenLiteral tokenKind = iota
	tokenWord
	tokenNumber
	tokenChord
	tokenText
	tokenRule
)

type patternToken struct {
	kind tokenKind
	// value is the literal word or the referenced rule name.
	value string
}

type pattern struct {
	source string
	tokens []patternToken
}

func isBuiltinSlot(name string) bool {
	switch name {
	case "word", "number", "chord", "text":
		return true
	}
	return false
}

// compilePattern validates a pattern source against the merged rule set and
// produces its token sequence.
func compilePattern(source string, rules map[string]map[string]string) (*pattern, error) {
	fields := strings.Fields(source)
	if len(fields) == 0 {
		return nil, fmt.Errorf("pattern has no tokens")
	}

	tokens := make([]patternToken, 0, len(fields))
	for i, field := range fields {
		if !strings.HasPrefix(field, "<") {
			if strings.ContainsAny(field, "<>") {
				return nil, fmt.Errorf("malformed token %q", field)
			}
			tokens = append(tokens, patternToken{kind: tokenLiteral, value: strings.ToLower(field)})
			continue
		}

		if !strings.HasSuffix(field, ">") {
			return nil, fmt.Errorf("malformed slot %q", field)
		}
		name := field[1 : len(field)-1]
		switch name {
		case "word":
			tokens = append(tokens, patternToken{kind: tokenWord})
		case "number":
			tokens = append(tokens, patternToken{kind: tokenNumber})
		case "chord":
			if _, ok := rules["key"]; !ok {
				return nil, fmt.Errorf("<chord> requires a \"key\" rule")
			}
			tokens = append(tokens, patternToken{kind: tokenChord})
		case "text":
			if i != len(fields)-1 {
				return nil, fmt.Errorf("<text> must be the last token")
			}
			tokens = append(tokens, patternToken{kind: tokenText})
		default:
			if _, ok := rules[name]; !ok {
				return nil, fmt.Errorf("slot <%s> references an undefined rule", name)
			}
			tokens = append(tokens, patternToken{kind: tokenRule, value: name})
		}
	}

	return &pattern{source: source, tokens: tokens}, nil
}

// spokenNumbers maps spoken digit words to their values.
var spokenNumbers = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

func parseNumberToken(token string) (int, bool) {
	if n, ok := spokenNumbers[token]; ok {
		return n, true
	}
	n, err := strconv.Atoi(token)
	if err != nil {
		return 0, false
	}
	return n, true
}

// match attempts to consume all input tokens against the pattern, producing
// the argument values. Literal pattern words carry no argument.
func (p *pattern) match(input []string, rules map[string]map[string]string) ([]Arg, bool) {
	var args []Arg
	pos := 0

	for _, tok := range p.tokens {
		switch tok.kind {
		case tokenLiteral:
			if pos >= len(input) || input[pos] != tok.value {
				return nil, false
			}
			pos++

		case tokenWord:
			if pos >= len(input) {
				return nil, false
			}
			args = append(args, Arg{Kind: ArgWord, Text: input[pos]})
			pos++

		case tokenNumber:
			if pos >= len(input) {
				return nil, false
			}
			n, ok := parseNumberToken(input[pos])
			if !ok {
				return nil, false
			}
			args = append(args, Arg{Kind: ArgNumber, Number: n})
			pos++

		case tokenRule:
			if pos >= len(input) {
				return nil, false
			}
			value, ok := rules[tok.value][input[pos]]
			if !ok {
				return nil, false
			}
			args = append(args, Arg{Kind: ArgWord, Text: value})
			pos++

		case tokenChord:
			chord, consumed, ok := matchChord(input[pos:], rules["key"])
			if !ok {
				return nil, false
			}
			args = append(args, Arg{Kind: ArgChord, Chord: chord})
			pos += consumed

		case tokenText:
			if pos >= len(input) {
				return nil, false
			}
			args = append(args, Arg{Kind: ArgText, Text: strings.Join(input[pos:], " ")})
			pos = len(input)
		}
	}

	if pos != len(input) {
		return nil, false
	}
	return args, true
}

// matchChord consumes key ("plus" key)* from the front of input. The final
// key is the chord's key; everything before it is a modifier.
func matchChord(input []string, keys map[string]string) (Chord, int, bool) {
	if len(input) == 0 {
		return Chord{}, 0, false
	}
	first, ok := keys[input[0]]
	if !ok {
		return Chord{}, 0, false
	}

	values := []string{first}
	consumed := 1
	for consumed+1 < len(input) && input[consumed] == "plus" {
		next, ok := keys[input[consumed+1]]
		if !ok {
			break
		}
		values = append(values, next)
		consumed += 2
	}

	return Chord{
		Key:       values[len(values)-1],
		Modifiers: values[:len(values)-1],
	}, consumed, true
}
