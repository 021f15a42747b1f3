// Package classifier decides whether a change restarts the app or is handed to it.
package classifier

import (
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

// Classifier holds the special reload rules registered by the running app.
// It is safe for concurrent use.
type Classifier struct {
	compiler ports.PatternCompiler

	mu    sync.RWMutex
	rules []domain.SpecialReloadRule
}

// New creates a Classifier with an empty rule set.
func New(compiler ports.PatternCompiler) *Classifier {
	return &Classifier{compiler: compiler}
}

// Register compiles msg into a rule and appends it to the rule set.
// A registration without patterns returns ErrMalformedRule and adds nothing.
func (c *Classifier) Register(msg domain.SpecialReloadMessage) error {
	patterns := splitPatterns(msg.Patterns)
	if len(patterns) == 0 {
		return domain.ErrMalformedRule
	}

	matchers := make([]domain.Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := c.compiler.Compile(p)
		if err != nil {
			return zerr.Wrap(err, "special reload rule rejected")
		}
		matchers = append(matchers, m)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, domain.SpecialReloadRule{
		Patterns:    patterns,
		Matchers:    matchers,
		ReplyEvent:  msg.ModifiedEvent,
		AutoRefresh: msg.AutoRefresh,
	})
	return nil
}

// Remove drops every rule registered with replyEvent and returns how many were removed.
func (c *Classifier) Remove(replyEvent string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	kept := c.rules[:0]
	for _, r := range c.rules {
		if r.ReplyEvent != replyEvent {
			kept = append(kept, r)
		}
	}
	removed := len(c.rules) - len(kept)
	clear(c.rules[len(kept):])
	c.rules = kept
	return removed
}

// Reset drops every rule.
func (c *Classifier) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = nil
}

// Rules returns a copy of the registered rules in registration order.
func (c *Classifier) Rules() []domain.SpecialReloadRule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.SpecialReloadRule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Classify evaluates ev against every rule. Without a started app every
// change is ordinary, so the next launch picks it up.
func (c *Classifier) Classify(ev domain.ChangeEvent, started bool) domain.Classification {
	var result domain.Classification
	if !started {
		return result
	}

	rel := RelativePath(ev.Root, ev.Path)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, rule := range c.rules {
		if !matches(rule, rel, ev.IsDirectory) {
			continue
		}
		result.Special = true
		if rule.ReplyEvent != "" {
			result.ReplyEvents = append(result.ReplyEvents, rule.ReplyEvent)
		}
		if result.AutoRefresh == domain.AutoRefreshUnset {
			result.AutoRefresh = rule.AutoRefresh
		}
	}
	return result
}

// RelativePath returns path relative to root with forward slashes.
func RelativePath(root, path string) string {
	rel := path
	if root != "" {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
		}
	}
	rel = filepath.ToSlash(rel)
	rel = strings.TrimPrefix(rel, "./")
	return strings.TrimLeft(rel, "/")
}

func matches(rule domain.SpecialReloadRule, rel string, isDir bool) bool {
	for _, m := range rule.Matchers {
		if m.Match(rel) {
			return true
		}
		if isDir && m.Match(rel+"/") {
			return true
		}
	}
	return false
}

func splitPatterns(in []string) []string {
	var out []string
	for _, p := range in {
		out = append(out, strings.Fields(p)...)
	}
	return out
}
