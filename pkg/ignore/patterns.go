// Package ignore decides which paths a scan of a workspace should skip
// before they ever reach the chunker (§4, scan step).
package ignore

import (
	"path/filepath"
	"strings"
)

// rule is one compiled ignore pattern. Splitting "**" patterns into their
// prefix/contains parts once at construction, instead of on every
// ShouldIgnore call, matters here: a scan walks every file in a
// workspace, often tens of thousands of paths, so the matcher is on the
// hot path.
type rule struct {
	raw       string
	prefix    string   // set for "dir/**" style patterns
	contains  []string // set for "**/dir/**" style patterns
	recursive bool
	dirSuffix string // trailing component for a pattern like "**/target/**"
}

// Matcher matches workspace-relative paths against a set of ignore
// patterns.
type Matcher struct {
	rules []rule
}

// NewMatcher compiles patterns into a Matcher.
func NewMatcher(patterns []string) *Matcher {
	rules := make([]rule, 0, len(patterns))
	for _, p := range patterns {
		rules = append(rules, compile(p))
	}
	return &Matcher{rules: rules}
}

// NewMatcherWithDefaults compiles extra on top of DefaultPatterns, so
// callers only need to supply the overrides their workspace needs.
func NewMatcherWithDefaults(extra []string) *Matcher {
	return NewMatcher(append(DefaultPatterns(), extra...))
}

func compile(pattern string) rule {
	r := rule{raw: filepath.ToSlash(pattern)}
	if !strings.Contains(r.raw, "**") {
		return r
	}
	r.recursive = true
	parts := strings.Split(r.raw, "**")
	if len(parts) > 0 && parts[0] != "" {
		r.prefix = strings.TrimSuffix(parts[0], "/")
	}
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			r.contains = append(r.contains, part)
		}
	}
	r.dirSuffix = strings.TrimSuffix(r.raw, "/**")
	return r
}

// ShouldIgnore returns true if path matches any compiled pattern.
func (m *Matcher) ShouldIgnore(path string) bool {
	path = filepath.ToSlash(path)
	for _, r := range m.rules {
		if r.matches(path) {
			return true
		}
	}
	return false
}

func (r rule) matches(path string) bool {
	if r.recursive {
		if r.prefix != "" && (strings.HasPrefix(path, r.prefix+"/") || path == r.prefix) {
			return true
		}
		for _, part := range r.contains {
			if strings.Contains(path, "/"+part+"/") || strings.HasPrefix(path, part+"/") || strings.HasSuffix(path, "/"+part) {
				return true
			}
		}
	}

	if matched, err := filepath.Match(r.raw, path); err == nil && matched {
		return true
	}
	if matched, err := filepath.Match(r.raw, filepath.Base(path)); err == nil && matched {
		return true
	}

	for dir := filepath.Dir(path); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		if filepath.Base(dir) == r.dirSuffix {
			return true
		}
	}
	return false
}

// DefaultPatterns lists the paths every scan skips; a workspace's
// ignore_patterns config adds to them and cannot remove any: build
// outputs, dependency trees, and generated artifacts across the
// languages this engine chunks plus the common polyglot cases a
// multi-repo index otherwise chokes on.
func DefaultPatterns() []string {
	return []string{
		// Build outputs
		"target/**",
		"build/**",
		"dist/**",
		"out/**",
		".next/**",
		"bin/**",

		// Dependency trees
		"node_modules/**",
		".pnp/**",
		"vendor/**",
		".venv/**",
		"venv/**",
		"__pycache__/**",

		// Generated / minified code, not worth embedding
		"**/*.min.js",
		"**/*.min.css",
		"**/*.bundle.js",
		"**/*.generated.go",

		// Version control and tool caches
		".git/**",
		".cache/**",

		// IDE
		".idea/**",
		".vscode/**",
		"*.iml",

		// Lockfiles: high churn, no semantic content to embed
		"package-lock.json",
		"yarn.lock",
		"go.sum",
	}
}
