package launcher_test

import (
	"context"
	"sync"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/refresh/internal/core/ports/mocks"
	"go.trai.ch/refresh/internal/engine/launcher"
	"go.trai.ch/refresh/internal/shutdown"
	"go.uber.org/mock/gomock"
)

type fakeProcess struct {
	pid int

	mu              sync.Mutex
	alive           bool
	connected       bool
	ignoreTerminate bool
	terminated      int
	killed          int
	sent            []domain.CoreMessage
	done            chan struct{}
	msgs            chan domain.ChildMessage
}

func (p *fakeProcess) PID() int { return p.pid }

func (p *fakeProcess) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakeProcess) Alive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alive
}

func (p *fakeProcess) Send(msg domain.CoreMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakeProcess) Messages() <-chan domain.ChildMessage { return p.msgs }
func (p *fakeProcess) Done() <-chan struct{}                { return p.done }
func (p *fakeProcess) ExitErr() error                       { return nil }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated++
	ignore := p.ignoreTerminate
	p.mu.Unlock()
	if !ignore {
		p.exit()
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed++
	p.mu.Unlock()
	p.exit()
	return nil
}

func (p *fakeProcess) exit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.alive {
		return
	}
	p.alive = false
	p.connected = false
	close(p.done)
}

func (p *fakeProcess) terminateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}

type fakeSpawner struct {
	mu              sync.Mutex
	specs           []ports.LaunchSpec
	procs           []*fakeProcess
	ignoreTerminate bool
}

func (s *fakeSpawner) Spawn(spec ports.LaunchSpec) (ports.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &fakeProcess{
		pid:             100 + len(s.procs),
		alive:           true,
		connected:       true,
		ignoreTerminate: s.ignoreTerminate,
		done:            make(chan struct{}),
		msgs:            make(chan domain.ChildMessage),
	}
	s.specs = append(s.specs, spec)
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

func (s *fakeSpawner) last() *fakeProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.procs[len(s.procs)-1]
}

func quietLogger(t *testing.T) *mocks.MockLogger {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()
	return log
}

func newLauncher(t *testing.T, spawner *fakeSpawner) *launcher.Launcher {
	t.Helper()
	return launcher.New(spawner, quietLogger(t), nil, launcher.Options{
		Command: []string{"node", "server.js"},
		BaseEnv: []string{"PATH=/bin"},
		Version: "1.2.3",
	})
}

func TestLauncher_ForkWithoutPort(t *testing.T) {
	spawner := &fakeSpawner{}
	l := newLauncher(t, spawner)

	err := l.Start(0)
	require.ErrorIs(t, err, domain.ErrPortNotAssigned)
	assert.Equal(t, domain.StateStopped, l.State())
	assert.Equal(t, 0, spawner.count())
}

func TestLauncher_StartPublishesEvent(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{}
		l := newLauncher(t, spawner)

		var events []launcher.StartEvent
		l.Subscribe(func(ev launcher.StartEvent) { events = append(events, ev) })

		require.NoError(t, l.Start(8123))
		assert.True(t, l.IsStarted())
		require.Len(t, events, 1)
		assert.Equal(t, uint64(1), events[0].Generation)
		assert.Equal(t, 100, events[0].Process.PID())

		env := spawner.specs[0].Env
		assert.Contains(t, env, "REFRESH_PORT=8123")
		assert.Contains(t, env, "REFRESH_URL=http://localhost:8123")
		assert.Contains(t, env, "REFRESH_VERSION=1.2.3")
		assert.Contains(t, env, "APP_ENV=development")
		assert.Contains(t, env, "PATH=/bin")

		require.NoError(t, l.Shutdown(context.Background()))
	})
}

func TestLauncher_ForkWhileRunning(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{}
		l := newLauncher(t, spawner)
		require.NoError(t, l.Start(8123))

		require.ErrorIs(t, l.Fork(), domain.ErrAlreadyRunning)
		assert.Equal(t, 1, spawner.count())

		require.NoError(t, l.Shutdown(context.Background()))
	})
}

func TestLauncher_RestartCoalesces(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{ignoreTerminate: true}
		l := newLauncher(t, spawner)

		var gens []uint64
		l.Subscribe(func(ev launcher.StartEvent) { gens = append(gens, ev.Generation) })

		require.NoError(t, l.Start(8123))
		first := spawner.last()

		require.NoError(t, l.Restart())
		assert.Equal(t, domain.StateKilling, l.State())
		require.NoError(t, l.Restart())
		require.NoError(t, l.Restart())
		assert.Equal(t, 1, first.terminateCount())
		assert.Equal(t, 1, spawner.count())

		first.exit()
		synctest.Wait()

		assert.Equal(t, 2, spawner.count())
		assert.Equal(t, domain.StateStarted, l.State())
		assert.Equal(t, []uint64{1, 2}, gens)

		spawner.last().exit()
		synctest.Wait()
	})
}

func TestLauncher_UnexpectedExit(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{}
		l := newLauncher(t, spawner)
		require.NoError(t, l.Start(8123))

		spawner.last().exit()
		synctest.Wait()

		assert.Equal(t, domain.StateStopped, l.State())
		assert.Equal(t, 1, spawner.count())

		// The next change forks a fresh app.
		require.NoError(t, l.Restart())
		assert.Equal(t, 2, spawner.count())
		assert.True(t, l.IsStarted())

		require.NoError(t, l.Shutdown(context.Background()))
	})
}

func TestLauncher_Kill(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{}
		l := newLauncher(t, spawner)
		require.NoError(t, l.Start(8123))

		l.Kill()
		synctest.Wait()

		assert.Equal(t, domain.StateStopped, l.State())
		assert.Equal(t, 1, spawner.count())

		// Killing a stopped launcher is a no-op.
		l.Kill()
		assert.Equal(t, domain.StateStopped, l.State())
	})
}

func TestLauncher_StartWhileKilling(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{ignoreTerminate: true}
		l := newLauncher(t, spawner)
		require.NoError(t, l.Start(8123))
		first := spawner.last()

		l.Kill()
		require.Equal(t, domain.StateKilling, l.State())
		require.NoError(t, l.Start(9000))
		assert.Equal(t, 1, spawner.count())

		first.exit()
		synctest.Wait()

		require.Equal(t, 2, spawner.count())
		assert.Contains(t, spawner.specs[1].Env, "REFRESH_PORT=9000")

		spawner.last().exit()
		synctest.Wait()
	})
}

func TestLauncher_ForwardToChild(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{}
		l := newLauncher(t, spawner)

		// No child yet.
		l.ForwardToChild("views/index.marko", []string{"templateModified"})

		require.NoError(t, l.Start(8123))
		child := spawner.last()

		l.ForwardToChild("views/index.marko", []string{"templateModified", "viewChanged"})
		assert.Equal(t, []domain.CoreMessage{
			{Type: domain.MsgFileModified, Path: "views/index.marko"},
			{Type: "templateModified", Path: "views/index.marko"},
			{Type: "viewChanged", Path: "views/index.marko"},
		}, child.sent)

		child.mu.Lock()
		child.connected = false
		child.mu.Unlock()
		l.ForwardToChild("views/other.marko", nil)
		assert.Len(t, child.sent, 3)

		require.NoError(t, l.Shutdown(context.Background()))
	})
}

func TestLauncher_ShutdownPreventsFork(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{}
		hooks := shutdown.New(quietLogger(t))
		l := launcher.New(spawner, quietLogger(t), hooks, launcher.Options{Command: []string{"app"}})
		require.Equal(t, 1, hooks.Len())

		require.NoError(t, l.Start(8123))
		require.NoError(t, hooks.Run(context.Background()))
		synctest.Wait()

		assert.Equal(t, domain.StateStopped, l.State())
		require.NoError(t, l.Restart())
		assert.Equal(t, 1, spawner.count())
		require.ErrorIs(t, l.Fork(), domain.ErrLauncherClosed)
	})
}

func TestLauncher_ShutdownForceKills(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		spawner := &fakeSpawner{ignoreTerminate: true}
		l := newLauncher(t, spawner)
		require.NoError(t, l.Start(8123))

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		err := l.Shutdown(ctx)
		require.ErrorContains(t, err, "app did not exit in time")

		child := spawner.last()
		child.mu.Lock()
		defer child.mu.Unlock()
		assert.Equal(t, 1, child.killed)
	})
}
