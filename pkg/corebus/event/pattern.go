package event

import (
	"regexp"
	"strings"
)

// patternKind discriminates the Pattern variants.
type patternKind int

const (
	patternExact patternKind = iota
	patternGlob
	patternRegex
)

// Pattern matches event types during subscription fan-out. It is a closed
// variant: exact string, glob, or regular expression.
type Pattern struct {
	kind  patternKind
	spec  string
	regex *regexp.Regexp
}

// Exact matches the event type verbatim.
func Exact(eventType string) Pattern {
	return Pattern{kind: patternExact, spec: eventType}
}

// Glob matches with "*" standing for any sequence of characters, anchored
// at both ends. A lone "*" matches every event type. A glob without "*"
// degrades to an exact match.
func Glob(spec string) Pattern {
	if !strings.Contains(spec, "*") {
		return Exact(spec)
	}

	parts := strings.Split(spec, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	// Anchored at both ends per the glob contract.
	re := regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")

	return Pattern{kind: patternGlob, spec: spec, regex: re}
}

// Regex matches with a compiled regular expression.
func Regex(re *regexp.Regexp) Pattern {
	return Pattern{kind: patternRegex, spec: re.String(), regex: re}
}

// Matches reports whether the pattern matches the event type.
func (p Pattern) Matches(eventType string) bool {
	switch p.kind {
	case patternExact:
		return p.spec == eventType
	case patternGlob, patternRegex:
		if p.regex == nil {
			return false
		}
		return p.regex.MatchString(eventType)
	default:
		return false
	}
}

// String returns the pattern's source form.
func (p Pattern) String() string {
	return p.spec
}
