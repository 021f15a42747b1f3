// Package app implements the application layer for refresh.
package app

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"go.trai.ch/refresh/internal/build"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/refresh/internal/engine/classifier"
	"go.trai.ch/refresh/internal/engine/coordinator"
	"go.trai.ch/refresh/internal/engine/launcher"
	"go.trai.ch/refresh/internal/shutdown"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// shutdownTimeout bounds the cleanup hooks once the run is cancelled.
const shutdownTimeout = 5 * time.Second

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	logger       ports.Logger
	server       ports.RefreshServer
	watcher      ports.Watcher
	spawner      ports.ProcessSpawner
	compiler     ports.PatternCompiler
	browser      ports.BrowserOpener

	stdout     io.Writer
	stderr     io.Writer
	baseEnv    []string
	isTerminal func() bool
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	log ports.Logger,
	server ports.RefreshServer,
	watcher ports.Watcher,
	spawner ports.ProcessSpawner,
	compiler ports.PatternCompiler,
	browser ports.BrowserOpener,
) *App {
	return &App{
		configLoader: loader,
		logger:       log,
		server:       server,
		watcher:      watcher,
		spawner:      spawner,
		compiler:     compiler,
		browser:      browser,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		isTerminal:   stdoutIsTerminal,
	}
}

// WithOutput redirects the app's output streams.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	return a
}

// WithBaseEnv replaces the environment the app inherits.
// This is primarily used for testing.
func (a *App) WithBaseEnv(env []string) *App {
	a.baseEnv = env
	return a
}

// WithTerminal overrides terminal detection for TTY auto mode.
func (a *App) WithTerminal(isTerminal func() bool) *App {
	a.isTerminal = isTerminal
	return a
}

// Run supervises the configured command until ctx is cancelled.
func (a *App) Run(ctx context.Context, cwd string, overrides ports.ConfigOverrides) error {
	cfg, err := a.configLoader.Load(cwd, overrides)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}

	port, err := a.server.Listen(ports.ServerOptions{
		Port:    cfg.Port,
		TLSCert: cfg.TLSCert,
		TLSKey:  cfg.TLSKey,
	})
	if err != nil {
		return err
	}
	defer func() { _ = a.server.Close() }()

	hooks := shutdown.New(a.logger)

	coord := coordinator.New(a.server, a.logger, coordinator.Options{
		FlushDelay:   cfg.FlushDelay,
		ReadyTimeout: cfg.ReadyTimeout,
		ReadyEvent:   cfg.ReadyEvent,
	})
	hooks.Add("stop refresh coordinator", func(context.Context) error {
		coord.Stop()
		return nil
	})

	cls := classifier.New(a.compiler)

	lnch := launcher.New(a.spawner, a.logger, hooks, launcher.Options{
		Command: cfg.Command,
		Dir:     cfg.Dir,
		Env:     cfg.Env,
		BaseEnv: a.baseEnv,
		Version: build.Version,
		Secure:  cfg.Secure(),
		TTY:     a.useTTY(cfg.TTY),
		Stdout:  a.stdout,
		Stderr:  a.stderr,
	})

	session := NewSession(a.logger, lnch, cls, coord, a.browser, SessionOptions{
		ReadyEvent:         cfg.ReadyEvent,
		KeepRulesOnRestart: cfg.KeepRulesOnRestart,
		OpenBrowser:        cfg.OpenBrowser,
	})
	unsubscribe := lnch.Subscribe(session.OnStart)
	defer unsubscribe()

	// The port must be assigned before any change can trigger a restart.
	if err := lnch.Start(port); err != nil {
		return a.stop(ctx, hooks, session, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	if err := a.watcher.Start(gctx, ports.WatchOptions{
		Roots:          cfg.Watch,
		IgnorePatterns: cfg.Ignore,
	}); err != nil {
		return a.stop(ctx, hooks, session, err)
	}
	hooks.Add("stop watcher", func(context.Context) error {
		return a.watcher.Stop()
	})
	for _, dir := range cfg.Watch {
		a.logger.Info("Watching: " + dir)
	}
	for _, pattern := range cfg.Ignore {
		a.logger.Info("Ignore rule: " + pattern)
	}

	g.Go(func() error {
		return a.server.Serve(gctx)
	})

	g.Go(func() error {
		for ev := range a.watcher.Events() {
			session.HandleChange(ev)
		}
		return nil
	})

	return a.stop(ctx, hooks, session, g.Wait())
}

// stop runs the shutdown hooks and drains the message pumps. runErr takes
// precedence over hook failures.
func (a *App) stop(ctx context.Context, hooks *shutdown.Hooks, session *Session, runErr error) error {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := hooks.Run(stopCtx); err != nil && runErr == nil {
		runErr = err
	}
	session.Wait(stopCtx)
	return runErr
}

func (a *App) useTTY(mode domain.TTYMode) bool {
	switch mode {
	case domain.TTYAlways:
		return true
	case domain.TTYNever:
		return false
	default:
		return a.isTerminal != nil && a.isTerminal()
	}
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
