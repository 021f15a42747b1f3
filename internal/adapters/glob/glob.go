// Package glob compiles special reload patterns with doublestar.
package glob

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.PatternCompiler = (*Compiler)(nil)

// Compiler builds doublestar matchers.
//
// A pattern without a slash is matched against the base name of the path, so
// "*.css" matches "public/app.css". Dot files are matched by wildcards.
type Compiler struct{}

// NewCompiler creates a Compiler.
func NewCompiler() *Compiler {
	return &Compiler{}
}

// Compile validates pattern and returns its matcher.
func (c *Compiler) Compile(pattern string) (domain.Matcher, error) {
	p := strings.TrimPrefix(pattern, "./")
	if p == "" || !doublestar.ValidatePattern(p) {
		return nil, zerr.With(zerr.Wrap(domain.ErrInvalidPattern, "failed to compile pattern"), "pattern", pattern)
	}

	trimmed := strings.TrimSuffix(p, "/")
	return &Matcher{
		pattern:  p,
		baseOnly: !strings.Contains(trimmed, "/"),
	}, nil
}

// Matcher is a compiled glob.
type Matcher struct {
	pattern  string
	baseOnly bool
}

// Pattern returns the source pattern.
func (m *Matcher) Pattern() string {
	return m.pattern
}

// Match reports whether relPath matches. A trailing slash on relPath marks a
// directory and is kept so that directory patterns like "views/" match.
func (m *Matcher) Match(relPath string) bool {
	if doublestar.MatchUnvalidated(m.pattern, relPath) {
		return true
	}
	if !m.baseOnly {
		return false
	}

	dir := strings.HasSuffix(relPath, "/")
	base := path.Base(strings.TrimSuffix(relPath, "/"))
	if dir {
		base += "/"
	}
	return doublestar.MatchUnvalidated(m.pattern, base)
}
