package ports

import "go.trai.ch/refresh/internal/core/domain"

// ConfigOverrides holds the values set explicitly on the command line.
// Nil fields were not set and fall back to the config file.
type ConfigOverrides struct {
	ConfigPath         string
	Command            []string
	Port               *int
	ReadyEvent         *string
	ReadyTimeoutMs     *int
	FlushDelayMs       *int
	Watch              []string
	Ignore             []string
	IgnoreFile         *string
	TLSCert            *string
	TLSKey             *string
	TTY                *string
	KeepRulesOnRestart *bool
	OpenBrowser        *bool
}

// ConfigLoader resolves the run configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the config file found in cwd and applies overrides on top of it.
	Load(cwd string, overrides ConfigOverrides) (*domain.Config, error)
}
