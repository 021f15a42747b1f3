package domain

import "time"

const (
	// ConfigFileYAML is the YAML config file looked up in the working directory.
	ConfigFileYAML = ".refresh.yaml"

	// ConfigFileYML is the alternative YAML config file name.
	ConfigFileYML = ".refresh.yml"

	// ConfigFileTOML is the TOML config file looked up in the working directory.
	ConfigFileTOML = ".refresh.toml"

	// IgnoreFileName is the dedicated ignore file, preferred over .gitignore.
	IgnoreFileName = ".refresh-ignore"

	// GitIgnoreFileName is the fallback ignore file.
	GitIgnoreFileName = ".gitignore"

	// ScriptPath is the HTTP path serving the browser client.
	ScriptPath = "/refresh.js"

	// SocketPath is the HTTP path upgraded to the notification websocket.
	SocketPath = "/refresh/ws"
)

// Environment variables set on every launched app.
const (
	EnvPort      = "REFRESH_PORT"
	EnvURL       = "REFRESH_URL"
	EnvVersion   = "REFRESH_VERSION"
	EnvChannelFD = "REFRESH_CHANNEL_FD"
	EnvAppEnv    = "APP_ENV"
)

// DefaultAppEnv is the APP_ENV value used when the caller did not set one.
const DefaultAppEnv = "development"

const (
	// DefaultFlushDelay is the default coalescing window for refresh notifications.
	DefaultFlushDelay = 20 * time.Millisecond

	// DefaultReadyTimeout is the default wait for the readiness signal.
	DefaultReadyTimeout = 1000 * time.Millisecond
)

// DefaultIgnorePatterns precede the ignore file and the configured ignore rules.
var DefaultIgnorePatterns = []string{
	".git/",
	"node_modules/",
	"static/",
	".cache/",
	".*",
}
