// Package transport serves the browser script and pushes refresh notifications over websockets.
package transport

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/refresh/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.RefreshServer = (*Server)(nil)

//go:embed client.js
var clientScript string

const (
	writeWait       = 2 * time.Second
	shutdownTimeout = 2 * time.Second
	scriptMaxAge    = 365 * 24 * time.Hour
)

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server is the refresh endpoint browsers connect to.
type Server struct {
	logger   ports.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*client]struct{}
	listener net.Listener
	opts     ports.ServerOptions
	script   []byte
}

// NewServer creates a Server that is not listening yet.
func NewServer(logger ports.Logger) *Server {
	return &Server{
		logger:  logger,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Listen binds the port and returns the port actually assigned. Port 0 picks a free one.
func (s *Server) Listen(opts ports.ServerOptions) (int, error) {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(opts.Port))
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrListenFailed.Error()), "port", opts.Port)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	scheme := "ws"
	if opts.TLSCert != "" && opts.TLSKey != "" {
		scheme = "wss"
	}
	socketURL := fmt.Sprintf("%s://localhost:%d%s", scheme, port, domain.SocketPath)

	s.mu.Lock()
	s.listener = ln
	s.opts = opts
	s.script = []byte(strings.ReplaceAll(clientScript, "{{SOCKET_URL}}", socketURL))
	s.mu.Unlock()

	return port, nil
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+domain.ScriptPath, s.handleScript)
	mux.HandleFunc("GET "+domain.SocketPath, s.handleSocket)
	return mux
}

// Serve accepts connections until ctx is cancelled. The listener is closed when Serve returns.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	opts := s.opts
	s.mu.Unlock()
	if ln == nil {
		return zerr.New("server is not listening")
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if opts.TLSCert != "" && opts.TLSKey != "" {
			errCh <- srv.ServeTLS(ln, opts.TLSCert, opts.TLSKey)
		} else {
			errCh <- srv.Serve(ln)
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return zerr.Wrap(err, "refresh server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	<-errCh
	if err != nil {
		return zerr.Wrap(err, "failed to stop refresh server")
	}
	return nil
}

// Close releases a listener that Serve has not taken over. It is a no-op
// once Serve has started.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	return ln.Close()
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast sends n to every connected browser. Browsers that cannot be
// written to are dropped.
func (s *Server) Broadcast(n domain.Notification) error {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	var errs []error
	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := c.conn.WriteJSON(n)
		c.writeMu.Unlock()
		if err != nil {
			errs = append(errs, err)
			s.drop(c)
		}
	}

	if len(errs) > 0 {
		return zerr.With(zerr.Wrap(errors.Join(errs...), domain.ErrBroadcastFailed.Error()), "failed", len(errs))
	}
	return nil
}

func (s *Server) handleScript(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	script := s.script
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(scriptMaxAge.Seconds())))
	w.Header().Set("Expires", time.Now().Add(scriptMaxAge).UTC().Format(http.TimeFormat))
	_, _ = w.Write(script)
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	s.logger.Debug("browser connected", "remote", r.RemoteAddr)

	defer s.drop(c)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) drop(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	delete(s.clients, c)
	s.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		_ = c.conn.Close()
	}
}
