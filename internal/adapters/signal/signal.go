// Package signal is the WebSocket side of the session protocol: it owns
// each socket, decodes client frames and feeds them to the orchestrator.
package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/app/orch"
	"github.com/dkeye/OnAir/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	SendBuffer     int
	SubmitLimit    int
	SubmitInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.SubmitLimit <= 0 {
		o.SubmitLimit = 5
	}
	if o.SubmitInterval <= 0 {
		o.SubmitInterval = 10 * time.Second
	}
	return o
}

type SignalWSController struct {
	Orch    *orch.Orchestrator
	opts    Options
	limiter *RateLimiter
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	return &SignalWSController{
		Orch:    o,
		opts:    opts,
		limiter: NewRateLimiter(opts.SubmitLimit, opts.SubmitInterval),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the pumps until the socket or
// ctx goes away. Every connection gets a fresh session id.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := core.SessionID(uuid.NewString())
	logger := log.With().Str("module", "signal").Str("sid", string(sid)).Str("client_token", c.GetString("client_token")).Logger()
	logger.Info().Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.opts.SendBuffer),
	}

	connCtx, cancel := context.WithCancel(ctx)
	if err := ctl.Orch.Post(ctx, orch.Connect{SID: sid, Conn: conn, Cancel: cancel}); err != nil {
		logger.Error().Err(err).Msg("register connection")
		cancel()
		conn.Close()
		return
	}

	go ctl.writePump(connCtx, sid, conn)
	go ctl.readPump(ctx, connCtx, cancel, sid, conn)
}
