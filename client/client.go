// Package client lets an app supervised by refresh talk to the orchestrator.
//
// A supervised app inherits a private channel on the descriptor named by
// REFRESH_CHANNEL_FD. Apps started without refresh get ErrNotSupervised from
// FromEnv and an empty ScriptTag, so the calls can stay in production code.
package client

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.trai.ch/refresh/internal/adapters/ipc"
	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/zerr"
)

// ErrNotSupervised is returned by FromEnv when the app was not started by refresh.
var ErrNotSupervised = zerr.New("app is not supervised by refresh")

// Event is a notification sent by the orchestrator. Type is "fileModified"
// or the reply event of a special reload rule.
type Event struct {
	Type string
	Path string
}

// Client is the app side of the private channel. It is safe for concurrent use.
type Client struct {
	conn   net.Conn
	wmu    sync.Mutex
	events chan Event
	once   sync.Once
}

// FromEnv connects to the channel inherited from the orchestrator.
func FromEnv() (*Client, error) {
	raw := os.Getenv(domain.EnvChannelFD)
	if raw == "" {
		return nil, ErrNotSupervised
	}
	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 0 {
		return nil, zerr.With(zerr.New("invalid channel descriptor"), domain.EnvChannelFD, raw)
	}

	f := os.NewFile(uintptr(fd), "refresh-channel")
	if f == nil {
		return nil, zerr.With(zerr.New("invalid channel descriptor"), domain.EnvChannelFD, raw)
	}
	defer f.Close()

	conn, err := net.FileConn(f)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to open refresh channel")
	}
	return New(conn), nil
}

// New wraps an established channel connection.
func New(conn net.Conn) *Client {
	c := &Client{
		conn:   conn,
		events: make(chan Event, 16),
	}
	go c.read()
	return c
}

// Events yields notifications until the channel closes. Events that are not
// received while the buffer is full are dropped.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Ready reports the app as ready using the default ready event. A non-empty
// url is opened in the browser the first time the app becomes ready.
func (c *Client) Ready(url string) error {
	return c.Signal(domain.DefaultReadyEvent, url)
}

// Signal sends a named signal, such as a custom ready event.
func (c *Client) Signal(event, url string) error {
	if url == "" {
		return c.send(event)
	}
	return c.send(struct {
		Event string `json:"event"`
		URL   string `json:"url"`
	}{event, url})
}

// SpecialReload asks the orchestrator to forward changes matching patterns
// instead of restarting the app. modifiedEvent is delivered alongside the
// fileModified event. A nil autoRefresh keeps the default page refresh.
func (c *Client) SpecialReload(patterns []string, modifiedEvent string, autoRefresh *bool) error {
	msg := struct {
		Type          string   `json:"type"`
		Patterns      []string `json:"patterns"`
		ModifiedEvent string   `json:"modifiedEvent,omitempty"`
		Options       *struct {
			AutoRefresh *bool `json:"autoRefresh"`
		} `json:"options,omitempty"`
	}{
		Type:          domain.MsgSpecialReload,
		Patterns:      patterns,
		ModifiedEvent: modifiedEvent,
	}
	if autoRefresh != nil {
		msg.Options = &struct {
			AutoRefresh *bool `json:"autoRefresh"`
		}{autoRefresh}
	}
	return c.send(msg)
}

// RemoveSpecialReload drops every rule registered with modifiedEvent.
func (c *Client) RemoveSpecialReload(modifiedEvent string) error {
	return c.send(map[string]string{
		"type":          domain.MsgRemoveSpecialReload,
		"modifiedEvent": modifiedEvent,
	})
}

// RefreshPage reloads every connected browser.
func (c *Client) RefreshPage() error { return c.sendType(domain.MsgRefreshPage) }

// RefreshStyles reloads stylesheets in every connected browser.
func (c *Client) RefreshStyles() error { return c.sendType(domain.MsgRefreshStyles) }

// RefreshImages reloads images in every connected browser.
func (c *Client) RefreshImages() error { return c.sendType(domain.MsgRefreshImages) }

// Close closes the channel.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) sendType(t string) error {
	return c.send(map[string]string{"type": t})
}

func (c *Client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return zerr.Wrap(err, "failed to encode message")
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return zerr.Wrap(err, "failed to send message to refresh")
	}
	return nil
}

func (c *Client) read() {
	defer c.once.Do(func() { close(c.events) })

	for line, err := range ipc.Lines(c.conn) {
		if err != nil {
			return
		}
		var msg domain.CoreMessage
		if json.Unmarshal(line, &msg) != nil || msg.Type == "" {
			continue
		}
		select {
		case c.events <- Event{Type: msg.Type, Path: msg.Path}:
		default:
		}
	}
}

// URL returns the address of the refresh server, or "" when not supervised.
func URL() string {
	return strings.TrimRight(os.Getenv(domain.EnvURL), "/")
}

// ScriptTag returns the HTML tag that loads the browser client, or "" when
// the app is not supervised.
func ScriptTag() string {
	base := URL()
	if base == "" {
		return ""
	}
	return fmt.Sprintf(`<script src="%s%s"></script>`, base, domain.ScriptPath)
}
