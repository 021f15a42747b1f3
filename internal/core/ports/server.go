package ports

import (
	"context"

	"go.trai.ch/refresh/internal/core/domain"
)

// ServerOptions configures the refresh server.
type ServerOptions struct {
	// Port to bind. Zero selects a free port.
	Port int
	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string
	TLSKey  string
}

// Broadcaster delivers notifications to every connected browser.
//
//go:generate mockgen -source=server.go -destination=mocks/mock_server.go -package=mocks
type Broadcaster interface {
	// Broadcast sends n to all connected clients.
	Broadcast(n domain.Notification) error
}

// RefreshServer serves the browser client and the notification socket.
type RefreshServer interface {
	Broadcaster
	// Listen binds the server and returns the bound port.
	Listen(opts ServerOptions) (int, error)
	// Serve handles connections until ctx is cancelled.
	Serve(ctx context.Context) error
	// Close releases the listener if Serve never took it over.
	Close() error
	// Clients returns the number of connected browsers.
	Clients() int
}
