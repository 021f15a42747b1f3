package config

// File represents the structure of .refresh.yaml and .refresh.toml.
// Pointer fields distinguish an omitted key from its zero value.
type File struct {
	Command            Command           `yaml:"command" toml:"command"`
	Port               *int              `yaml:"port" toml:"port"`
	ReadyEvent         *string           `yaml:"readyEvent" toml:"readyEvent"`
	ReadyTimeout       *int              `yaml:"readyTimeout" toml:"readyTimeout"`
	FlushDelay         *int              `yaml:"flushDelay" toml:"flushDelay"`
	Watch              []string          `yaml:"watch" toml:"watch"`
	Ignore             []string          `yaml:"ignore" toml:"ignore"`
	IgnoreFile         *string           `yaml:"ignoreFile" toml:"ignoreFile"`
	SSLCert            *string           `yaml:"sslCert" toml:"sslCert"`
	SSLKey             *string           `yaml:"sslKey" toml:"sslKey"`
	TTY                *string           `yaml:"tty" toml:"tty"`
	KeepRulesOnRestart *bool             `yaml:"keepRulesOnRestart" toml:"keepRulesOnRestart"`
	Env                map[string]string `yaml:"env" toml:"env"`
	Open               *bool             `yaml:"open" toml:"open"`
}
