// Package ipc encodes the messages exchanged with the app over its private channel.
//
// Every message is a single line of JSON. The app may send a bare string, an
// {"event", "url"} object or an object with a "type" field.
package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"strings"

	"go.trai.ch/refresh/internal/core/domain"
	"go.trai.ch/zerr"
)

// maxLineSize bounds a single message.
const maxLineSize = 1 << 20

type wireMessage struct {
	Type          string          `json:"type"`
	Event         string          `json:"event"`
	URL           string          `json:"url"`
	Patterns      json.RawMessage `json:"patterns"`
	Pattern       json.RawMessage `json:"pattern"`
	ModifiedEvent string          `json:"modifiedEvent"`
	Options       *struct {
		AutoRefresh *bool `json:"autoRefresh"`
	} `json:"options"`
}

// Decode parses one line received from the app.
func Decode(line []byte) (domain.ChildMessage, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, zerr.Wrap(domain.ErrUnknownMessage, "empty message")
	}

	if line[0] == '"' {
		var name string
		if err := json.Unmarshal(line, &name); err != nil {
			return nil, zerr.Wrap(err, "invalid signal")
		}
		return domain.SignalMessage{Name: name}, nil
	}

	var msg wireMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, zerr.Wrap(err, "invalid message")
	}

	switch msg.Type {
	case "":
		if msg.Event == "" {
			return nil, zerr.Wrap(domain.ErrUnknownMessage, "message has neither type nor event")
		}
		return domain.SignalMessage{Name: msg.Event, URL: msg.URL}, nil
	case domain.MsgSpecialReload:
		raw := msg.Patterns
		if len(raw) == 0 {
			raw = msg.Pattern
		}
		patterns, err := decodePatterns(raw)
		if err != nil {
			return nil, err
		}
		out := domain.SpecialReloadMessage{Patterns: patterns, ModifiedEvent: msg.ModifiedEvent}
		if msg.Options != nil {
			out.AutoRefresh = domain.AutoRefreshFromBool(msg.Options.AutoRefresh)
		}
		return out, nil
	case domain.MsgRemoveSpecialReload:
		return domain.RemoveSpecialReloadMessage{ModifiedEvent: msg.ModifiedEvent}, nil
	case domain.MsgRefreshPage:
		return domain.RefreshMessage{Flags: domain.RefreshPage}, nil
	case domain.MsgRefreshStyles:
		return domain.RefreshMessage{Flags: domain.RefreshStyles}, nil
	case domain.MsgRefreshImages:
		return domain.RefreshMessage{Flags: domain.RefreshImages}, nil
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownMessage, "unsupported message type"), "type", msg.Type)
	}
}

// decodePatterns accepts a whitespace separated string or a list of strings.
func decodePatterns(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.Fields(single), nil
	}

	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, zerr.Wrap(err, "patterns must be a string or a list of strings")
	}
	return list, nil
}

// Encode writes msg to w as one line.
func Encode(w io.Writer, msg domain.CoreMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return zerr.Wrap(err, "failed to encode message")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Lines yields every non-empty line read from r until EOF or a read error.
// The yielded slice is only valid until the next iteration.
func Lines(r io.Reader) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(bytes.TrimSpace(line)) == 0 {
				continue
			}
			if !yield(line, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(nil, err)
		}
	}
}
