package router

import "strings"

// Pattern is a compiled path pattern: a literal prefix with an optional
// trailing wildcard. Compiled once at table build time so matching is a
// single prefix comparison per candidate.
type Pattern struct {
	literal  string // pattern with the trailing "/*" (or "*") removed
	wildcard bool
}

// CompilePattern compiles a path pattern string. A pattern ending in "*"
// matches the literal prefix itself and any subpath under it; any other
// pattern matches exactly.
func CompilePattern(path string) Pattern {
	if strings.HasSuffix(path, "*") {
		literal := strings.TrimSuffix(path, "*")
		literal = strings.TrimSuffix(literal, "/")
		return Pattern{literal: literal, wildcard: true}
	}
	return Pattern{literal: path}
}

// Matches reports whether the request path satisfies the pattern.
func (p Pattern) Matches(path string) bool {
	if !p.wildcard {
		return path == p.literal
	}
	return path == p.literal || strings.HasPrefix(path, p.literal+"/")
}

// PrefixLen returns the literal prefix length, used for most-specific-wins
// ordering.
func (p Pattern) PrefixLen() int {
	return len(p.literal)
}

// Wildcard reports whether the pattern ends in a wildcard.
func (p Pattern) Wildcard() bool {
	return p.wildcard
}

// Strip removes the matched literal prefix from the path. The remainder
// always starts with a slash; the bare prefix strips to "/".
func (p Pattern) Strip(path string) string {
	remainder := strings.TrimPrefix(path, p.literal)
	if remainder == "" {
		return "/"
	}
	return remainder
}

func (p Pattern) String() string {
	if p.wildcard {
		return p.literal + "/*"
	}
	return p.literal
}
