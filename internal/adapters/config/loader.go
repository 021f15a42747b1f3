// Package config resolves the run configuration from .refresh.yaml or .refresh.toml
// and the command line.
package config

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.trai.ch/refresh/internal/adapters/watcher"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load merges defaults, the config file and overrides, in increasing precedence.
func (l *Loader) Load(cwd string, overrides ports.ConfigOverrides) (*domain.Config, error) {
	cwd, err := filepath.Abs(cwd)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve working directory")
	}

	file, err := l.readFile(cwd, overrides.ConfigPath)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	cfg.Dir = cwd
	applyFile(&cfg, file)
	applyOverrides(&cfg, overrides)

	cfg.Watch = resolvePaths(cwd, cfg.Watch)
	if len(cfg.Watch) == 0 {
		cfg.Watch = []string{cwd}
	}
	if cfg.IgnoreFile != "" {
		cfg.IgnoreFile = resolvePath(cwd, cfg.IgnoreFile)
	}
	if cfg.TLSCert != "" {
		cfg.TLSCert = resolvePath(cwd, cfg.TLSCert)
	}
	if cfg.TLSKey != "" {
		cfg.TLSKey = resolvePath(cwd, cfg.TLSKey)
	}

	ignore, err := l.resolveIgnore(cwd, cfg.IgnoreFile, cfg.Ignore)
	if err != nil {
		return nil, err
	}
	cfg.Ignore = ignore

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// readFile returns an empty File when no config file exists and none was requested.
func (l *Loader) readFile(cwd, explicit string) (*File, error) {
	path := explicit
	if path != "" {
		path = resolvePath(cwd, path)
	} else {
		path = discover(cwd)
		if path == "" {
			return &File{}, nil
		}
	}

	// #nosec G304 -- path is the discovered or requested config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", path)
	}
	l.Logger.Debug("loading config", "path", path)

	var file File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "path", path)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &file)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "path", path)
		}
		for _, key := range md.Undecoded() {
			l.Logger.Warn("unknown config key", "key", key.String(), "path", path)
		}
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnsupportedConfigFormat, "cannot load config"), "path", path)
	}
	return &file, nil
}

func discover(cwd string) string {
	for _, name := range []string{domain.ConfigFileYAML, domain.ConfigFileYML, domain.ConfigFileTOML} {
		candidate := filepath.Join(cwd, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func applyFile(cfg *domain.Config, f *File) {
	if len(f.Command) > 0 {
		cfg.Command = f.Command
	}
	if f.Port != nil {
		cfg.Port = *f.Port
	}
	if f.ReadyEvent != nil {
		cfg.ReadyEvent = *f.ReadyEvent
	}
	if f.ReadyTimeout != nil {
		cfg.ReadyTimeout = millis(*f.ReadyTimeout)
	}
	if f.FlushDelay != nil {
		cfg.FlushDelay = millis(*f.FlushDelay)
	}
	if len(f.Watch) > 0 {
		cfg.Watch = f.Watch
	}
	cfg.Ignore = append(cfg.Ignore, f.Ignore...)
	if f.IgnoreFile != nil {
		cfg.IgnoreFile = *f.IgnoreFile
	}
	if f.SSLCert != nil {
		cfg.TLSCert = *f.SSLCert
	}
	if f.SSLKey != nil {
		cfg.TLSKey = *f.SSLKey
	}
	if f.TTY != nil {
		cfg.TTY = domain.TTYMode(*f.TTY)
	}
	if f.KeepRulesOnRestart != nil {
		cfg.KeepRulesOnRestart = *f.KeepRulesOnRestart
	}
	if len(f.Env) > 0 {
		cfg.Env = f.Env
	}
	if f.Open != nil {
		cfg.OpenBrowser = *f.Open
	}
}

func applyOverrides(cfg *domain.Config, o ports.ConfigOverrides) {
	if len(o.Command) > 0 {
		cfg.Command = o.Command
	}
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.ReadyEvent != nil {
		cfg.ReadyEvent = *o.ReadyEvent
	}
	if o.ReadyTimeoutMs != nil {
		cfg.ReadyTimeout = millis(*o.ReadyTimeoutMs)
	}
	if o.FlushDelayMs != nil {
		cfg.FlushDelay = millis(*o.FlushDelayMs)
	}
	if len(o.Watch) > 0 {
		cfg.Watch = o.Watch
	}
	cfg.Ignore = append(cfg.Ignore, o.Ignore...)
	if o.IgnoreFile != nil {
		cfg.IgnoreFile = *o.IgnoreFile
	}
	if o.TLSCert != nil {
		cfg.TLSCert = *o.TLSCert
	}
	if o.TLSKey != nil {
		cfg.TLSKey = *o.TLSKey
	}
	if o.TTY != nil {
		cfg.TTY = domain.TTYMode(*o.TTY)
	}
	if o.KeepRulesOnRestart != nil {
		cfg.KeepRulesOnRestart = *o.KeepRulesOnRestart
	}
	if o.OpenBrowser != nil {
		cfg.OpenBrowser = *o.OpenBrowser
	}
}

// resolveIgnore returns the default rules, then the ignore file, then the configured rules.
func (l *Loader) resolveIgnore(cwd, ignoreFile string, configured []string) ([]string, error) {
	patterns := append([]string(nil), domain.DefaultIgnorePatterns...)

	candidates := []string{ignoreFile}
	if ignoreFile == "" {
		candidates = []string{
			filepath.Join(cwd, domain.IgnoreFileName),
			filepath.Join(cwd, domain.GitIgnoreFileName),
		}
	}

	for _, candidate := range candidates {
		f, err := os.Open(candidate)
		if errors.Is(err, fs.ErrNotExist) && ignoreFile == "" {
			continue
		}
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", candidate)
		}
		lines, err := watcher.ReadIgnoreFile(f)
		_ = f.Close()
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", candidate)
		}
		l.Logger.Debug("using ignore file", "path", candidate)
		patterns = append(patterns, lines...)
		break
	}

	return append(patterns, configured...), nil
}

func resolvePaths(cwd string, paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, resolvePath(cwd, p))
	}
	return out
}

func resolvePath(cwd, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(cwd, p)
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
