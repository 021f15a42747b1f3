package config

import (
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/zerr"
)

const maxPort = 65535

// Validate checks a resolved configuration.
func Validate(cfg *domain.Config) error {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return domain.ErrNoCommand
	}
	if cfg.Port < 0 || cfg.Port > maxPort {
		return invalid("port must be between 0 and 65535", "port", cfg.Port)
	}
	if cfg.ReadyEvent == "" {
		return invalid("readyEvent must not be empty", "readyEvent", cfg.ReadyEvent)
	}
	if cfg.ReadyTimeout < 0 {
		return invalid("readyTimeout must not be negative", "readyTimeout", cfg.ReadyTimeout.Milliseconds())
	}
	if cfg.FlushDelay < 0 {
		return invalid("flushDelay must not be negative", "flushDelay", cfg.FlushDelay.Milliseconds())
	}
	switch cfg.TTY {
	case domain.TTYAuto, domain.TTYAlways, domain.TTYNever:
	default:
		return invalid("tty must be one of auto, always, never", "tty", string(cfg.TTY))
	}
	if (cfg.TLSCert == "") != (cfg.TLSKey == "") {
		return invalid("sslCert and sslKey must be set together", "sslCert", cfg.TLSCert)
	}
	return nil
}

func invalid(msg, key string, value any) error {
	return zerr.With(zerr.Wrap(domain.ErrInvalidConfig, msg), key, value)
}
