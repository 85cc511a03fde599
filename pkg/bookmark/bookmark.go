// Package bookmark holds the causal-consistency tokens produced by committed transactions.
//
// Tokens are opaque: a Set is only ever built, compared and replaced as a whole.
package bookmark

import "strings"

// Set is an immutable ordered set of opaque bookmark tokens.
// The zero value is an empty set.
type Set struct {
	tokens []string
}

// NewSet builds a Set keeping the first occurrence of every non-empty token.
func NewSet(tokens ...string) Set {
	if len(tokens) == 0 {
		return Set{}
	}

	seen := make(map[string]struct{}, len(tokens))
	kept := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		kept = append(kept, token)
	}

	if len(kept) == 0 {
		return Set{}
	}

	return Set{tokens: kept}
}

// Tokens returns a copy of the tokens, in order.
func (s Set) Tokens() []string {
	if len(s.tokens) == 0 {
		return nil
	}

	out := make([]string, len(s.tokens))
	copy(out, s.tokens)

	return out
}

func (s Set) Len() int {
	return len(s.tokens)
}

func (s Set) IsEmpty() bool {
	return len(s.tokens) == 0
}

func (s Set) Contains(token string) bool {
	for _, t := range s.tokens {
		if t == token {
			return true
		}
	}

	return false
}

// ContainsAll reports whether every token of other is in s.
func (s Set) ContainsAll(other Set) bool {
	for _, t := range other.tokens {
		if !s.Contains(t) {
			return false
		}
	}

	return true
}

// Equal reports whether both sets hold the same tokens in the same order.
func (s Set) Equal(other Set) bool {
	if len(s.tokens) != len(other.tokens) {
		return false
	}
	for i := range s.tokens {
		if s.tokens[i] != other.tokens[i] {
			return false
		}
	}

	return true
}

// Union returns s followed by the tokens of other not already in s.
func (s Set) Union(other Set) Set {
	return NewSet(append(s.Tokens(), other.tokens...)...)
}

// Without returns s minus the tokens of other.
func (s Set) Without(other Set) Set {
	if other.IsEmpty() {
		return s
	}

	kept := make([]string, 0, len(s.tokens))
	for _, t := range s.tokens {
		if !other.Contains(t) {
			kept = append(kept, t)
		}
	}

	return NewSet(kept...)
}

func (s Set) String() string {
	return "[" + strings.Join(s.tokens, ", ") + "]"
}
