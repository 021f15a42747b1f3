package watcher

import (
	"bufio"
	"io"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/zerr"
)

type ignoreRule struct {
	pattern  string
	negate   bool
	dirOnly  bool
	anchored bool
}

// IgnoreRules is an ordered list of gitignore-style rules. The last rule that
// matches a path decides; a path inside an ignored directory is ignored.
type IgnoreRules struct {
	rules []ignoreRule
}

// CompileIgnore parses patterns. Blank lines and comments are skipped.
func CompileIgnore(patterns []string) (*IgnoreRules, error) {
	r := &IgnoreRules{}
	for _, raw := range patterns {
		p := strings.TrimSpace(raw)
		if p == "" || strings.HasPrefix(p, "#") {
			continue
		}

		var rule ignoreRule
		if rest, ok := strings.CutPrefix(p, "!"); ok {
			rule.negate = true
			p = rest
		}
		if rest, ok := strings.CutSuffix(p, "/"); ok {
			rule.dirOnly = true
			p = rest
		}
		if rest, ok := strings.CutPrefix(p, "/"); ok {
			rule.anchored = true
			p = rest
		} else if strings.Contains(p, "/") {
			rule.anchored = true
		}
		if p == "" || !doublestar.ValidatePattern(p) {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidPattern, "invalid ignore rule"), "pattern", raw)
		}
		rule.pattern = p
		r.rules = append(r.rules, rule)
	}
	return r, nil
}

// ReadIgnoreFile returns the lines of an ignore file.
func ReadIgnoreFile(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// Ignored reports whether the root-relative, forward-slash path is excluded.
func (r *IgnoreRules) Ignored(rel string, isDir bool) bool {
	rel = strings.Trim(rel, "/")
	if rel == "" || rel == "." {
		return false
	}

	segments := strings.Split(rel, "/")
	for i := 1; i < len(segments); i++ {
		if r.decide(strings.Join(segments[:i], "/"), true) {
			return true
		}
	}
	return r.decide(rel, isDir)
}

func (r *IgnoreRules) decide(rel string, isDir bool) bool {
	ignored := false
	for _, rule := range r.rules {
		if rule.dirOnly && !isDir {
			continue
		}
		if rule.match(rel) {
			ignored = !rule.negate
		}
	}
	return ignored
}

func (rule ignoreRule) match(rel string) bool {
	if rule.anchored {
		return doublestar.MatchUnvalidated(rule.pattern, rel)
	}
	return doublestar.MatchUnvalidated(rule.pattern, path.Base(rel))
}
