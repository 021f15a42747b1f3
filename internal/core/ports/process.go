package ports

import (
	"io"

	"go.trai.ch/refresh/internal/core/domain"
)

// LaunchSpec describes one child process launch.
type LaunchSpec struct {
	// Command is the argv of the app.
	Command []string
	// Dir is the working directory.
	Dir string
	// Env is the complete environment in KEY=VALUE form.
	Env []string
	// TTY runs the app attached to a pseudo terminal.
	TTY bool
	// Stdout and Stderr receive the app's output. With TTY both streams go to Stdout.
	Stdout io.Writer
	Stderr io.Writer
}

// Process is a running child with a private message channel.
//
//go:generate mockgen -source=process.go -destination=mocks/mock_process.go -package=mocks
type Process interface {
	// PID returns the operating system process id.
	PID() int
	// Connected reports whether the message channel is still open.
	Connected() bool
	// Alive reports whether the process has not exited yet.
	Alive() bool
	// Send writes a message to the child.
	Send(msg domain.CoreMessage) error
	// Messages yields decoded child messages until the channel closes.
	Messages() <-chan domain.ChildMessage
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// ExitErr returns the wait error once Done is closed.
	ExitErr() error
	// Terminate asks the process group to exit.
	Terminate() error
	// Kill forcefully stops the process group.
	Kill() error
}

// ProcessSpawner starts child processes.
type ProcessSpawner interface {
	// Spawn starts the process described by spec.
	Spawn(spec LaunchSpec) (Process, error)
}
