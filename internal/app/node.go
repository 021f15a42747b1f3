package app

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/refresh/internal/adapters/browser"   //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/adapters/config"    //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/adapters/glob"      //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/adapters/logger"    //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/adapters/process"   //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/adapters/transport" //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/adapters/watcher"   //nolint:depguard // Wired in app layer
	"go.trai.ch/refresh/internal/core/ports"
)

const (
	// AppNodeID is the unique identifier for the main App Graft node.
	AppNodeID graft.ID = "app.main"
	// ComponentsNodeID is the unique identifier for the App components Graft node.
	ComponentsNodeID graft.ID = "app.components"
)

// Components contains all the initialized application components.
// This struct provides controlled access to components needed by the CLI layer.
type Components struct {
	App    *App
	Logger ports.Logger
}

func init() {
	graft.Register(graft.Node[*App]{
		ID:        AppNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.NodeID,
			logger.NodeID,
			transport.NodeID,
			watcher.NodeID,
			process.NodeID,
			glob.NodeID,
			browser.NodeID,
		},
		Run: runAppNode,
	})

	graft.Register(graft.Node[*Components]{
		ID:        ComponentsNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			AppNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Components, error) {
			app, err := graft.Dep[*App](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return &Components{App: app, Logger: log}, nil
		},
	})
}

func runAppNode(ctx context.Context) (*App, error) {
	loader, err := graft.Dep[ports.ConfigLoader](ctx)
	if err != nil {
		return nil, err
	}
	log, err := graft.Dep[ports.Logger](ctx)
	if err != nil {
		return nil, err
	}
	server, err := graft.Dep[ports.RefreshServer](ctx)
	if err != nil {
		return nil, err
	}
	w, err := graft.Dep[ports.Watcher](ctx)
	if err != nil {
		return nil, err
	}
	spawner, err := graft.Dep[ports.ProcessSpawner](ctx)
	if err != nil {
		return nil, err
	}
	compiler, err := graft.Dep[ports.PatternCompiler](ctx)
	if err != nil {
		return nil, err
	}
	opener, err := graft.Dep[ports.BrowserOpener](ctx)
	if err != nil {
		return nil, err
	}
	return New(loader, log, server, w, spawner, compiler, opener), nil
}
