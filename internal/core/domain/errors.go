package domain

import "go.trai.ch/zerr"

var (
	// ErrPortNotAssigned is returned when a child is forked before a port was assigned.
	ErrPortNotAssigned = zerr.New("cannot launch app: no port assigned")

	// ErrAlreadyRunning is returned when a fork is requested while a child is still tracked.
	ErrAlreadyRunning = zerr.New("app is already running")

	// ErrLauncherClosed is returned when a fork is requested after shutdown began.
	ErrLauncherClosed = zerr.New("launcher is shut down")

	// ErrNoCommand is returned when there is no command to supervise.
	ErrNoCommand = zerr.New("no command to run")

	// ErrSpawnFailed is returned when the child process cannot be started.
	ErrSpawnFailed = zerr.New("failed to start app")

	// ErrChildDisconnected is returned when a message is sent to a child whose channel is closed.
	ErrChildDisconnected = zerr.New("app channel is disconnected")

	// ErrMalformedRule is returned when a special reload registration has no patterns.
	ErrMalformedRule = zerr.New("special reload registration has no patterns")

	// ErrInvalidPattern is returned when a glob pattern cannot be compiled.
	ErrInvalidPattern = zerr.New("invalid pattern")

	// ErrUnknownMessage is returned when the child sends a message that cannot be decoded.
	ErrUnknownMessage = zerr.New("unknown message from app")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrUnsupportedConfigFormat is returned when the config file extension is not recognised.
	ErrUnsupportedConfigFormat = zerr.New("unsupported config file format")

	// ErrInvalidConfig is returned when a config value is out of range.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrListenFailed is returned when the refresh server cannot bind its port.
	ErrListenFailed = zerr.New("failed to bind refresh server")

	// ErrBroadcastFailed is returned when a notification could not be delivered to some clients.
	ErrBroadcastFailed = zerr.New("failed to deliver refresh notification")

	// ErrWatchFailed is returned when a directory cannot be watched.
	ErrWatchFailed = zerr.New("failed to watch directory")
)
