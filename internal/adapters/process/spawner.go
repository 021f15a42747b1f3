//go:build !windows

// Package process starts the app with a private message channel on fd 3.
package process

import (
	"errors"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.ProcessSpawner = (*Spawner)(nil)

// channelFD is the descriptor number the channel has in the app.
// ExtraFiles[0] always becomes fd 3.
const channelFD = 3

// Spawner implements ports.ProcessSpawner using os/exec.
type Spawner struct {
	logger ports.Logger
}

// NewSpawner creates a Spawner. Undecodable app messages are reported to logger.
func NewSpawner(logger ports.Logger) *Spawner {
	return &Spawner{logger: logger}
}

// Spawn starts the command in its own process group. With spec.TTY the app
// runs on a pseudo terminal and its combined output is copied to spec.Stdout.
func (s *Spawner) Spawn(spec ports.LaunchSpec) (ports.Process, error) {
	if len(spec.Command) == 0 {
		return nil, domain.ErrNoCommand
	}

	parentEnd, childEnd, err := socketPair()
	if err != nil {
		return nil, err
	}
	defer func() { _ = childEnd.Close() }()

	conn, err := net.FileConn(parentEnd)
	_ = parentEnd.Close()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open app channel")
	}

	env := append(append([]string{}, spec.Env...), domain.EnvChannelFD+"="+strconv.Itoa(channelFD))

	name := spec.Command[0]
	executable := name
	if !strings.ContainsRune(name, os.PathSeparator) {
		if lp, err := lookPath(name, env); err == nil {
			executable = lp
		}
	}

	cmd := exec.Command(executable, spec.Command[1:]...) //nolint:gosec // user provided command
	cmd.Args[0] = name
	cmd.Dir = spec.Dir
	cmd.Env = env
	cmd.ExtraFiles = []*os.File{childEnd}

	p := newProcess(conn, s.logger)

	if spec.TTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			_ = conn.Close()
			return nil, zerr.Wrap(err, "failed to start pty")
		}
		p.cmd = cmd
		p.ptmx = ptmx
		ioDone := make(chan struct{})
		go func() {
			defer close(ioDone)
			_, _ = io.Copy(writerOrDiscard(spec.Stdout), ptmx)
		}()
		go p.wait(ioDone)
	} else {
		cmd.Stdin = os.Stdin
		cmd.Stdout = writerOrDiscard(spec.Stdout)
		cmd.Stderr = writerOrDiscard(spec.Stderr)
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		if err := cmd.Start(); err != nil {
			_ = conn.Close()
			return nil, err
		}
		p.cmd = cmd
		go p.wait(nil)
	}

	go p.read()
	return p, nil
}

// socketPair returns both ends of a connected unix stream socket.
func socketPair() (parent, child *os.File, err error) {
	fds, err := syscall.Socketpair(syscall.AF_UNIX, syscall.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, zerr.Wrap(err, "failed to create app channel")
	}
	syscall.CloseOnExec(fds[0])
	syscall.CloseOnExec(fds[1])
	return os.NewFile(uintptr(fds[0]), "refresh-parent"), os.NewFile(uintptr(fds[1]), "refresh-child"), nil
}

func writerOrDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}
	return w
}

// signalGroup delivers sig to the process group led by pid.
func signalGroup(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return nil
	}
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

// lookPath searches for an executable in the PATH found in env.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if v, ok := strings.CutPrefix(e, "PATH="); ok {
			path = v
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode()&0o111 == 0 {
			continue
		}
		return candidate, nil
	}
	return "", exec.ErrNotFound
}
