// Package launcher supervises the single app process and restarts it on demand.
package launcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

// forceKillWait bounds how long Shutdown waits after a forced kill.
const forceKillWait = 2 * time.Second

// HookRegistry accepts cleanup callbacks that run when the orchestrator exits.
type HookRegistry interface {
	Add(name string, stop func(context.Context) error) (remove func())
}

// Options configures how the app is launched.
type Options struct {
	Command []string
	Dir     string
	Env     map[string]string
	// BaseEnv is the inherited environment. Nil means os.Environ().
	BaseEnv []string
	Version string
	Secure  bool
	Host    string
	TTY     bool
	Stdout  io.Writer
	Stderr  io.Writer
}

// StartEvent is published every time a new app process is forked.
type StartEvent struct {
	Generation uint64
	Process    ports.Process
}

type subscriber struct {
	id int
	fn func(StartEvent)
}

// Launcher owns the app process lifecycle. It is safe for concurrent use.
//
// The state machine is stopped -> started -> killing -> stopped. A fork only
// happens from stopped, so at most one app process is tracked at a time.
type Launcher struct {
	spawner ports.ProcessSpawner
	logger  ports.Logger
	opts    Options

	// pubMu serializes forks with the publication of their StartEvent so
	// subscribers observe generations in order.
	pubMu sync.Mutex

	mu            sync.Mutex
	state         domain.LauncherState
	port          int
	child         ports.Process
	generation    uint64
	restartOnExit bool
	closed        bool
	subs          []subscriber
	nextSub       int

	removeHook func()
}

// New creates a stopped Launcher and registers its shutdown hook.
func New(spawner ports.ProcessSpawner, logger ports.Logger, hooks HookRegistry, opts Options) *Launcher {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	l := &Launcher{
		spawner: spawner,
		logger:  logger,
		opts:    opts,
		state:   domain.StateStopped,
	}
	if hooks != nil {
		l.removeHook = hooks.Add("stop app", l.Shutdown)
	}
	return l
}

// Subscribe registers fn to be called after every successful fork, in
// registration order. fn must not call back into Fork, Start or Restart.
func (l *Launcher) Subscribe(fn func(StartEvent)) (unsubscribe func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextSub++
	id := l.nextSub
	l.subs = append(l.subs, subscriber{id: id, fn: fn})
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, s := range l.subs {
			if s.id == id {
				l.subs = append(l.subs[:i:i], l.subs[i+1:]...)
				return
			}
		}
	}
}

// State returns the current lifecycle state.
func (l *Launcher) State() domain.LauncherState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// IsStarted reports whether a live app is tracked and not being killed.
func (l *Launcher) IsStarted() bool {
	return l.State() == domain.StateStarted
}

// Port returns the refresh server port handed to the app.
func (l *Launcher) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// Start records the server port and launches the app. A running app is
// restarted. If the app is being killed, it is forked again once it exits.
func (l *Launcher) Start(port int) error {
	l.mu.Lock()
	l.port = port
	if l.state == domain.StateKilling && !l.closed {
		l.restartOnExit = true
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()
	return l.Restart()
}

// Fork launches a new app process. It fails if a process is still tracked.
func (l *Launcher) Fork() error {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	ev, err := l.forkLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.publish(ev)
	return nil
}

// Restart kills the running app and forks a new one once it has exited.
// From stopped it forks immediately. While killing it does nothing, so a
// burst of changes yields a single restart.
func (l *Launcher) Restart() error {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}

	switch l.state {
	case domain.StateKilling:
		l.mu.Unlock()
		l.logger.Debug("restart already pending")
		return nil
	case domain.StateStarted:
		l.restartOnExit = true
		l.state = domain.StateKilling
		child := l.child
		l.mu.Unlock()
		l.logger.Info("Restarting app...")
		if child.Alive() {
			if err := child.Terminate(); err != nil {
				l.logger.Error(zerr.Wrap(err, "failed to stop app"))
			}
		}
		return nil
	}

	ev, err := l.forkLocked()
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.publish(ev)
	return nil
}

// Kill stops the running app without scheduling a new one.
func (l *Launcher) Kill() {
	l.mu.Lock()
	if l.state != domain.StateStarted || !l.child.Alive() {
		l.mu.Unlock()
		return
	}
	l.state = domain.StateKilling
	l.restartOnExit = false
	child := l.child
	l.mu.Unlock()

	if err := child.Terminate(); err != nil {
		l.logger.Error(zerr.Wrap(err, "failed to stop app"))
	}
}

// ForwardToChild sends a file modification and its reply events to the app.
// Nothing is sent unless the app's message channel is connected.
func (l *Launcher) ForwardToChild(path string, replyEvents []string) {
	l.mu.Lock()
	child := l.child
	l.mu.Unlock()

	if child == nil || !child.Connected() {
		return
	}

	if err := child.Send(domain.FileModified(path)); err != nil {
		l.logger.Warn("failed to notify app", "path", path, "error", err)
		return
	}
	for _, ev := range replyEvents {
		if err := child.Send(domain.CoreMessage{Type: ev, Path: path}); err != nil {
			l.logger.Warn("failed to notify app", "event", ev, "path", path, "error", err)
			return
		}
	}
}

// Shutdown stops the app and prevents any further fork. If ctx expires before
// the app exits, the process group is killed.
func (l *Launcher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	l.closed = true
	l.restartOnExit = false
	child := l.child
	terminate := child != nil && l.state == domain.StateStarted
	if terminate {
		l.state = domain.StateKilling
	}
	remove := l.removeHook
	l.removeHook = nil
	l.mu.Unlock()

	if remove != nil {
		remove()
	}
	if child == nil {
		return nil
	}
	if terminate && child.Alive() {
		if err := child.Terminate(); err != nil {
			l.logger.Debug("terminate failed", "error", err)
		}
	}

	select {
	case <-child.Done():
		return nil
	case <-ctx.Done():
	}

	if err := child.Kill(); err != nil {
		l.logger.Debug("kill failed", "error", err)
	}
	select {
	case <-child.Done():
	case <-time.After(forceKillWait):
	}
	return zerr.With(zerr.Wrap(ctx.Err(), "app did not exit in time"), "pid", child.PID())
}

// forkLocked spawns the app. l.mu must be held.
func (l *Launcher) forkLocked() (StartEvent, error) {
	if l.closed {
		return StartEvent{}, domain.ErrLauncherClosed
	}
	if l.port == 0 {
		return StartEvent{}, domain.ErrPortNotAssigned
	}
	if l.child != nil {
		return StartEvent{}, domain.ErrAlreadyRunning
	}
	if len(l.opts.Command) == 0 {
		return StartEvent{}, domain.ErrNoCommand
	}

	base := l.opts.BaseEnv
	if base == nil {
		base = os.Environ()
	}
	spec := ports.LaunchSpec{
		Command: l.opts.Command,
		Dir:     l.opts.Dir,
		Env: BuildEnv(base, l.opts.Env, l.port,
			BaseURL(l.opts.Secure, l.opts.Host, l.port), l.opts.Version),
		TTY:    l.opts.TTY,
		Stdout: l.opts.Stdout,
		Stderr: l.opts.Stderr,
	}

	proc, err := l.spawner.Spawn(spec)
	if err != nil {
		return StartEvent{}, zerr.With(zerr.Wrap(err, domain.ErrSpawnFailed.Error()), "command", l.opts.Command[0])
	}

	l.generation++
	l.child = proc
	l.state = domain.StateStarted
	l.restartOnExit = false
	l.logger.Info(fmt.Sprintf("App started (pid: %d)", proc.PID()))

	go l.awaitExit(proc)

	return StartEvent{Generation: l.generation, Process: proc}, nil
}

func (l *Launcher) awaitExit(proc ports.Process) {
	<-proc.Done()
	l.handleExit(proc)
}

func (l *Launcher) handleExit(proc ports.Process) {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	l.mu.Lock()
	if l.child != proc {
		l.mu.Unlock()
		return
	}
	expected := l.state == domain.StateKilling
	restart := l.restartOnExit && !l.closed
	l.child = nil
	l.state = domain.StateStopped
	l.restartOnExit = false

	if !expected {
		l.logger.Warn(fmt.Sprintf("App stopped unexpectedly (pid: %d)", proc.PID()), "error", proc.ExitErr())
	}

	if !restart {
		l.mu.Unlock()
		return
	}
	ev, err := l.forkLocked()
	l.mu.Unlock()
	if err != nil {
		l.logger.Error(err)
		return
	}
	l.publish(ev)
}

// publish delivers ev to the subscribers. l.pubMu must be held.
func (l *Launcher) publish(ev StartEvent) {
	l.mu.Lock()
	subs := make([]subscriber, len(l.subs))
	copy(subs, l.subs)
	l.mu.Unlock()

	for _, s := range subs {
		s.fn(ev)
	}
}
