package browser

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/refresh/internal/adapters/logger"
	"go.trai.ch/refresh/internal/core/ports"
)

// NodeID is the unique identifier for the browser opener Graft node.
const NodeID graft.ID = "adapter.browser"

func init() {
	graft.Register(graft.Node[ports.BrowserOpener]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.BrowserOpener, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewOpener(log), nil
		},
	})
}
