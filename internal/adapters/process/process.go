//go:build !windows

package process

import (
	"net"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.trai.ch/refresh/internal/adapters/ipc"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Process = (*Process)(nil)

const (
	// messageBuffer is the number of decoded messages queued before the reader blocks.
	messageBuffer = 64
	// sendTimeout bounds a single write to the app channel.
	sendTimeout = time.Second
)

// Process is a running app.
type Process struct {
	cmd    *exec.Cmd
	ptmx   *os.File
	conn   net.Conn
	logger ports.Logger

	sendMu    sync.Mutex
	connected atomic.Bool

	msgs    chan domain.ChildMessage
	done    chan struct{}
	exitErr error
}

func newProcess(conn net.Conn, logger ports.Logger) *Process {
	p := &Process{
		conn:   conn,
		logger: logger,
		msgs:   make(chan domain.ChildMessage, messageBuffer),
		done:   make(chan struct{}),
	}
	p.connected.Store(true)
	return p
}

// PID returns the operating system process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// Connected reports whether the message channel is still open.
func (p *Process) Connected() bool {
	return p.connected.Load()
}

// Alive reports whether the process has not been reaped yet.
func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Send writes msg to the app.
func (p *Process) Send(msg domain.CoreMessage) error {
	if !p.Connected() {
		return domain.ErrChildDisconnected
	}

	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	_ = p.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	if err := ipc.Encode(p.conn, msg); err != nil {
		p.connected.Store(false)
		return zerr.With(zerr.Wrap(err, domain.ErrChildDisconnected.Error()), "pid", p.PID())
	}
	return nil
}

// Messages yields decoded app messages. The channel is closed when the app
// closes its end or exits.
func (p *Process) Messages() <-chan domain.ChildMessage {
	return p.msgs
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitErr returns the wait error once Done is closed.
func (p *Process) ExitErr() error {
	select {
	case <-p.done:
		return p.exitErr
	default:
		return nil
	}
}

// Terminate sends SIGTERM to the process group.
func (p *Process) Terminate() error {
	return signalGroup(p.PID(), syscall.SIGTERM)
}

// Kill sends SIGKILL to the process group.
func (p *Process) Kill() error {
	return signalGroup(p.PID(), syscall.SIGKILL)
}

func (p *Process) wait(ioDone <-chan struct{}) {
	err := p.cmd.Wait()
	if ioDone != nil {
		_ = p.ptmx.Close()
		<-ioDone
	}
	p.exitErr = err
	p.connected.Store(false)
	_ = p.conn.Close()
	close(p.done)
}

func (p *Process) read() {
	defer close(p.msgs)
	defer p.connected.Store(false)

	for line, err := range ipc.Lines(p.conn) {
		if err != nil {
			return
		}
		msg, err := ipc.Decode(line)
		if err != nil {
			p.logger.Warn("ignoring message from app", "error", err)
			continue
		}
		select {
		case p.msgs <- msg:
		case <-p.done:
			return
		}
	}
}
