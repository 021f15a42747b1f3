package domain

import "time"

// TTYMode selects whether the child runs attached to a pseudo terminal.
type TTYMode string

const (
	// TTYAuto uses a pseudo terminal when the orchestrator's stdout is a terminal.
	TTYAuto TTYMode = "auto"
	// TTYAlways always runs the child in a pseudo terminal.
	TTYAlways TTYMode = "always"
	// TTYNever inherits the orchestrator's stdio.
	TTYNever TTYMode = "never"
)

// Config is the fully resolved configuration of one orchestrator run.
type Config struct {
	// Command is the argv of the supervised app.
	Command []string
	// Dir is the working directory of the app and the default watch root.
	Dir string
	// Port is the refresh server port. Zero binds a free port.
	Port int
	// ReadyEvent is the signal the app sends once it is ready.
	ReadyEvent string
	// ReadyTimeout bounds the wait for ReadyEvent after each launch. Zero disables it.
	ReadyTimeout time.Duration
	// FlushDelay is the coalescing window of refresh notifications.
	FlushDelay time.Duration
	// Watch lists the directories to watch.
	Watch []string
	// Ignore lists the ignore patterns, built-in defaults and ignore file rules first.
	Ignore []string
	// IgnoreFile overrides the ignore file lookup.
	IgnoreFile string
	// TLSCert and TLSKey enable HTTPS on the refresh server when both are set.
	TLSCert string
	TLSKey  string
	// TTY selects pseudo terminal usage for the app.
	TTY TTYMode
	// KeepRulesOnRestart keeps special reload rules registered by a previous app generation.
	KeepRulesOnRestart bool
	// Env is merged into the app environment.
	Env map[string]string
	// OpenBrowser opens the URL reported with the first readiness signal.
	OpenBrowser bool
}

// Secure reports whether TLS material was configured.
func (c *Config) Secure() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() Config {
	return Config{
		ReadyEvent:   DefaultReadyEvent,
		ReadyTimeout: DefaultReadyTimeout,
		FlushDelay:   DefaultFlushDelay,
		TTY:          TTYAuto,
		OpenBrowser:  true,
	}
}
