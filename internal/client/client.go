// Package client is a Go client for the session WebSocket. It reconnects
// with a fixed backoff and lets the caller resynchronize on every connect.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/protocol"
)

var ErrNotConnected = errors.New("not connected")

const (
	DefaultBackoff = 3 * time.Second
	writeWait      = 5 * time.Second
)

type Client struct {
	URL     string
	Backoff time.Duration
	Dialer  *websocket.Dialer
	// OnConnect runs after every successful dial, before events are read.
	// Returning an error drops the connection and triggers a reconnect.
	OnConnect func(ctx context.Context, c *Client) error
	OnEvent   func(protocol.Event)

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(url string) *Client {
	return &Client{URL: url, Backoff: DefaultBackoff}
}

// Run keeps a connection open until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	for {
		if err := c.session(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Str("module", "client").Str("url", c.URL).Dur("retry_in", backoff).Msg("connection lost")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// Send writes one command. It fails fast while disconnected.
func (c *Client) Send(cmd protocol.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(cmd)
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) session(ctx context.Context) error {
	dialer := c.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.mu.Lock()
	c.conn = ws
	c.mu.Unlock()
	log.Info().Str("module", "client").Str("url", c.URL).Msg("connected")

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessCtx.Done()
		_ = ws.Close()
	}()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}()

	if c.OnConnect != nil {
		if err := c.OnConnect(sessCtx, c); err != nil {
			return fmt.Errorf("on connect: %w", err)
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "client").Msg("bad event")
			continue
		}
		if c.OnEvent != nil {
			c.OnEvent(ev)
		}
	}
}

// Matcher selects the reply a one-shot command waits for.
type Matcher func(protocol.Event) bool

// OfType matches any event of the given type.
func OfType(typ string) Matcher {
	return func(ev protocol.Event) bool { return ev.Type == typ }
}

// Once dials, sends cmd and, when until is set, returns the first event it
// matches. Other events, including the state replayed on connect, are skipped.
func Once(ctx context.Context, url string, cmd protocol.Command, until Matcher) (protocol.Event, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return protocol.Event{}, fmt.Errorf("dial: %w", err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	if err := ws.WriteJSON(cmd); err != nil {
		return protocol.Event{}, fmt.Errorf("send %s: %w", cmd.Type, err)
	}
	if until == nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		return protocol.Event{}, nil
	}
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return protocol.Event{}, ctx.Err()
			}
			return protocol.Event{}, fmt.Errorf("wait reply to %s: %w", cmd.Type, err)
		}
		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			continue
		}
		if until(ev) {
			return ev, nil
		}
	}
}
