package domain

// AutoRefresh is the tri-state refresh policy attached to a special reload rule.
type AutoRefresh uint8

const (
	// AutoRefreshUnset leaves the decision to the caller, which refreshes by default.
	AutoRefreshUnset AutoRefresh = iota
	// AutoRefreshOn always refreshes the browser after a special reload.
	AutoRefreshOn
	// AutoRefreshOff suppresses the browser refresh after a special reload.
	AutoRefreshOff
)

// AutoRefreshFromBool converts an optional boolean into an AutoRefresh value.
func AutoRefreshFromBool(v *bool) AutoRefresh {
	switch {
	case v == nil:
		return AutoRefreshUnset
	case *v:
		return AutoRefreshOn
	default:
		return AutoRefreshOff
	}
}

// Matcher reports whether a root-relative, forward-slash path matches a pattern.
type Matcher interface {
	Match(relPath string) bool
}

// SpecialReloadRule routes matching changes to the running child instead of restarting it.
type SpecialReloadRule struct {
	// Patterns are the source patterns the matchers were compiled from.
	Patterns []string
	// Matchers are OR-combined: the rule matches when any of them does.
	Matchers []Matcher
	// ReplyEvent is forwarded to the child alongside the fileModified message.
	ReplyEvent string
	// AutoRefresh controls whether a browser refresh follows the reload.
	AutoRefresh AutoRefresh
}

// Classification is the outcome of evaluating a change against the rule set.
type Classification struct {
	// Special is true when at least one rule matched.
	Special bool
	// ReplyEvents holds the reply events of every matching rule in registration order.
	ReplyEvents []string
	// AutoRefresh is the first explicit setting among the matching rules.
	AutoRefresh AutoRefresh
}

// ShouldRefresh reports whether a browser refresh follows this special reload.
func (c Classification) ShouldRefresh() bool {
	return c.AutoRefresh != AutoRefreshOff
}
