//go:build windows

// Package process starts the app with a private message channel.
package process

import (
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

// Spawner is unavailable on windows.
type Spawner struct{}

// NewSpawner creates a Spawner.
func NewSpawner(_ ports.Logger) *Spawner {
	return &Spawner{}
}

// Spawn always fails: the app channel relies on unix domain socket pairs.
func (s *Spawner) Spawn(_ ports.LaunchSpec) (ports.Process, error) {
	return nil, zerr.New("launching apps is not supported on windows")
}
