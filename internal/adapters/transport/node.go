package transport

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/refresh/internal/adapters/logger"
	"go.trai.ch/refresh/internal/core/ports"
)

// NodeID is the unique identifier for the refresh server Graft node.
const NodeID graft.ID = "adapter.transport"

func init() {
	graft.Register(graft.Node[ports.RefreshServer]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.RefreshServer, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewServer(log), nil
		},
	})
}
