package ports

import (
	"context"
	"iter"

	"go.trai.ch/refresh/internal/core/domain"
)

// WatchOptions configures a watch session.
type WatchOptions struct {
	// Roots are the absolute directories to watch recursively.
	Roots []string
	// IgnorePatterns are gitignore-style patterns evaluated against root-relative paths.
	IgnorePatterns []string
}

// Watcher defines the interface for watching file system changes.
//
//go:generate mockgen -source=watcher.go -destination=mocks/mock_watcher.go -package=mocks
type Watcher interface {
	// Start begins watching the configured roots recursively.
	Start(ctx context.Context, opts WatchOptions) error
	// Stop stops the watcher and releases all resources.
	Stop() error
	// Events returns an iterator of change events, already filtered by ignore rules.
	Events() iter.Seq[domain.ChangeEvent]
}
