package ports

import "go.trai.ch/refresh/internal/core/domain"

// PatternCompiler turns glob patterns into matchers.
type PatternCompiler interface {
	// Compile returns a matcher for pattern.
	Compile(pattern string) (domain.Matcher, error)
}
