package api

import "strings"

type (
	// Policy lists the paths that need an authenticated request, every
	// other path is open. A pattern is either an exact path or a prefix
	// ending in /**.
	Policy struct {
		patterns []string
	}
)

func NewPolicy(patterns ...string) Policy {
	var p Policy
	for _, v := range patterns {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		p.patterns = append(p.patterns, v)
	}
	return p
}

func (p Policy) Patterns() []string {
	return append([]string(nil), p.patterns...)
}

func (p Policy) Requires(path string) bool {
	for _, pattern := range p.patterns {
		if matches(pattern, path) {
			return true
		}
	}
	return false
}

func matches(pattern, path string) bool {
	prefix, wildcard := strings.CutSuffix(pattern, "/**")
	if !wildcard {
		return pattern == path
	}
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
