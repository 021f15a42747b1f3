// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/refresh/internal/adapters/browser"
	_ "go.trai.ch/refresh/internal/adapters/config"
	_ "go.trai.ch/refresh/internal/adapters/glob"
	_ "go.trai.ch/refresh/internal/adapters/logger"
	_ "go.trai.ch/refresh/internal/adapters/process"
	_ "go.trai.ch/refresh/internal/adapters/transport"
	_ "go.trai.ch/refresh/internal/adapters/watcher"
	// Register app nodes.
	_ "go.trai.ch/refresh/internal/app"
)
