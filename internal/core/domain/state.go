package domain

// LauncherState is the lifecycle state of the supervised child process.
type LauncherState uint8

const (
	// StateStopped means no child is running.
	StateStopped LauncherState = iota
	// StateStarted means a child has been forked and is considered live.
	StateStarted
	// StateKilling means a termination signal was sent and the exit is pending.
	StateKilling
)

func (s LauncherState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarted:
		return "started"
	case StateKilling:
		return "killing"
	default:
		return "unknown"
	}
}
