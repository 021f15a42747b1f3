package app_test

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/refresh/internal/adapters/glob"
	"go.trai.ch/refresh/internal/app"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/refresh/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

type childProcess struct {
	pid  int
	msgs chan domain.ChildMessage
	done chan struct{}
	once sync.Once
}

func (p *childProcess) PID() int                             { return p.pid }
func (p *childProcess) Connected() bool                      { return p.Alive() }
func (p *childProcess) Send(domain.CoreMessage) error        { return nil }
func (p *childProcess) Messages() <-chan domain.ChildMessage { return p.msgs }
func (p *childProcess) Done() <-chan struct{}                { return p.done }
func (p *childProcess) ExitErr() error                       { return nil }
func (p *childProcess) Terminate() error                     { p.exit(); return nil }
func (p *childProcess) Kill() error                          { p.exit(); return nil }

func (p *childProcess) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

func (p *childProcess) exit() {
	p.once.Do(func() {
		close(p.msgs)
		close(p.done)
	})
}

type spawnRecorder struct {
	mu    sync.Mutex
	specs []ports.LaunchSpec
	procs []*childProcess
}

func (s *spawnRecorder) spawn(spec ports.LaunchSpec) (ports.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &childProcess{
		pid:  200 + len(s.procs),
		msgs: make(chan domain.ChildMessage, 4),
		done: make(chan struct{}),
	}
	s.specs = append(s.specs, spec)
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *spawnRecorder) spec(i int) ports.LaunchSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.specs[i]
}

func (s *spawnRecorder) proc(i int) *childProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[i]
}

func (s *spawnRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

type harness struct {
	app     *app.App
	loader  *mocks.MockConfigLoader
	server  *mocks.MockRefreshServer
	watcher *mocks.MockWatcher
	spawns  *spawnRecorder
	events  chan domain.ChangeEvent
	sent    *recorder

	// launchedAtWatch is the number of spawns when the watcher was started.
	launchedAtWatch atomic.Int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()

	h := &harness{
		loader:  mocks.NewMockConfigLoader(ctrl),
		server:  mocks.NewMockRefreshServer(ctrl),
		watcher: mocks.NewMockWatcher(ctrl),
		spawns:  &spawnRecorder{},
		events:  make(chan domain.ChangeEvent),
		sent:    &recorder{},
	}

	spawner := mocks.NewMockProcessSpawner(ctrl)
	spawner.EXPECT().Spawn(gomock.Any()).DoAndReturn(h.spawns.spawn).AnyTimes()

	h.server.EXPECT().Broadcast(gomock.Any()).DoAndReturn(h.sent.Broadcast).AnyTimes()

	h.app = app.New(h.loader, log, h.server, h.watcher, spawner, glob.NewCompiler(), mocks.NewMockBrowserOpener(ctrl)).
		WithOutput(io.Discard, io.Discard).
		WithBaseEnv([]string{"PATH=/usr/bin"}).
		WithTerminal(func() bool { return false })
	return h
}

func (h *harness) expectHealthyRun(cfg *domain.Config, port int) {
	h.loader.EXPECT().Load("/project", gomock.Any()).Return(cfg, nil)
	h.server.EXPECT().Listen(ports.ServerOptions{Port: cfg.Port}).Return(port, nil)
	h.server.EXPECT().Close().Return(nil)
	h.server.EXPECT().Serve(gomock.Any()).DoAndReturn(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	h.watcher.EXPECT().Start(gomock.Any(), ports.WatchOptions{Roots: cfg.Watch, IgnorePatterns: cfg.Ignore}).
		DoAndReturn(func(ctx context.Context, _ ports.WatchOptions) error {
			h.launchedAtWatch.Store(int64(h.spawns.count()))
			go func() {
				<-ctx.Done()
				close(h.events)
			}()
			return nil
		})
	h.watcher.EXPECT().Events().DoAndReturn(func() iter.Seq[domain.ChangeEvent] {
		return func(yield func(domain.ChangeEvent) bool) {
			for ev := range h.events {
				if !yield(ev) {
					return
				}
			}
		}
	})
	h.watcher.EXPECT().Stop().Return(nil)
}

func testConfig() *domain.Config {
	cfg := domain.DefaultConfig()
	cfg.Command = []string{"node", "server.js"}
	cfg.Dir = "/project"
	cfg.Watch = []string{"/project"}
	cfg.Ignore = domain.DefaultIgnorePatterns
	cfg.ReadyTimeout = 0
	cfg.TTY = domain.TTYNever
	return &cfg
}

func TestApp_Run_RestartsOnChange(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		h.expectHealthyRun(testConfig(), 35729)

		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)
		go func() {
			errCh <- h.app.Run(ctx, "/project", ports.ConfigOverrides{})
		}()

		synctest.Wait()
		require.Equal(t, 1, h.spawns.count())
		assert.Equal(t, int64(1), h.launchedAtWatch.Load(), "app must be launched before changes are watched")
		spec := h.spawns.spec(0)
		assert.Equal(t, []string{"node", "server.js"}, spec.Command)
		assert.Equal(t, "/project", spec.Dir)
		assert.False(t, spec.TTY)
		assert.Contains(t, spec.Env, "REFRESH_PORT=35729")
		assert.Contains(t, spec.Env, "REFRESH_URL=http://localhost:35729")

		h.events <- domain.ChangeEvent{Root: "/project", Path: "/project/server.js", Kind: domain.ChangeChanged}
		synctest.Wait()
		require.Equal(t, 2, h.spawns.count())
		assert.False(t, h.spawns.proc(0).Alive())

		// The restarted app becoming ready refreshes the browsers.
		h.spawns.proc(1).msgs <- domain.SignalMessage{Name: domain.DefaultReadyEvent}
		time.Sleep(50 * time.Millisecond)
		synctest.Wait()
		assert.Equal(t, []domain.Notification{{RefreshPage: true}}, h.sent.notifications())

		cancel()
		require.NoError(t, <-errCh)
		assert.False(t, h.spawns.proc(1).Alive())
		assert.Equal(t, 2, h.spawns.count())
	})
}

func TestApp_Run_SpecialReload(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		h := newHarness(t)
		h.expectHealthyRun(testConfig(), 35729)

		ctx, cancel := context.WithCancel(t.Context())
		errCh := make(chan error, 1)
		go func() {
			errCh <- h.app.Run(ctx, "/project", ports.ConfigOverrides{})
		}()

		synctest.Wait()
		require.Equal(t, 1, h.spawns.count())
		h.spawns.proc(0).msgs <- domain.SpecialReloadMessage{Patterns: []string{"*.css"}, ModifiedEvent: "styles"}
		synctest.Wait()

		h.events <- domain.ChangeEvent{Root: "/project", Path: "/project/public/site.css", Kind: domain.ChangeChanged}
		time.Sleep(50 * time.Millisecond)
		synctest.Wait()

		assert.Equal(t, 1, h.spawns.count(), "special reload must not restart")
		assert.Equal(t, []domain.Notification{{RefreshPage: true}}, h.sent.notifications())

		cancel()
		require.NoError(t, <-errCh)
	})
}

func TestApp_Run_ConfigError(t *testing.T) {
	h := newHarness(t)
	h.loader.EXPECT().Load("/project", gomock.Any()).Return(nil, domain.ErrNoCommand)

	err := h.app.Run(t.Context(), "/project", ports.ConfigOverrides{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoCommand)
}

func TestApp_Run_ListenError(t *testing.T) {
	h := newHarness(t)
	listenErr := errors.New("address already in use")
	h.loader.EXPECT().Load("/project", gomock.Any()).Return(testConfig(), nil)
	h.server.EXPECT().Listen(gomock.Any()).Return(0, listenErr)

	err := h.app.Run(t.Context(), "/project", ports.ConfigOverrides{})
	assert.ErrorIs(t, err, listenErr)
	assert.Equal(t, 0, h.spawns.count())
}

func TestApp_Run_WatchError(t *testing.T) {
	h := newHarness(t)
	h.loader.EXPECT().Load("/project", gomock.Any()).Return(testConfig(), nil)
	h.server.EXPECT().Listen(gomock.Any()).Return(35729, nil)
	h.server.EXPECT().Close().Return(nil)
	h.watcher.EXPECT().Start(gomock.Any(), gomock.Any()).Return(domain.ErrWatchFailed)

	err := h.app.Run(t.Context(), "/project", ports.ConfigOverrides{})
	assert.ErrorIs(t, err, domain.ErrWatchFailed)

	// The app launched before watching began and is stopped again.
	require.Equal(t, 1, h.spawns.count())
	assert.False(t, h.spawns.proc(0).Alive())
}
