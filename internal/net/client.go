package net

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"screenspec/internal/state"
)

// EventsURL turns a share address ("host:port" or an http URL) into its
// websocket endpoint.
func EventsURL(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", fmt.Errorf("parse share address: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported share scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

// Follow mirrors a shared screen into r until ctx is done or the host goes
// away. onChange, if set, runs after every op that changed the replica.
func Follow(ctx context.Context, addr string, r *state.Replica, onChange func(state.Op), logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	target, err := EventsURL(addr)
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	logger.Info("Following share", "url", target)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read share events: %w", err)
		}
		var op state.Op
		if err := json.Unmarshal(data, &op); err != nil {
			logger.Warn("Follow: bad op", "error", err)
			continue
		}
		if r.Apply(op) && onChange != nil {
			onChange(op)
		}
	}
}
