package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/app/orch"
	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/protocol"
)

func (ctl *SignalWSController) writePump(ctx context.Context, sid core.SessionID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump ctx done")
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("writePump write error")
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(ctl.opts.WriteWait)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("ping failed")
				c.Close()
				return
			}
		}
	}
}

// readPump owns the disconnect: whatever ends it, the session is
// unregistered exactly once.
func (ctl *SignalWSController) readPump(
	parent context.Context,
	ctx context.Context,
	cancel context.CancelFunc,
	sid core.SessionID,
	c *WsSignalConn,
) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.limiter.Forget(sid)
		if err := ctl.Orch.Post(parent, orch.Disconnect{SID: sid}); err != nil {
			log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("post disconnect")
		}
	}()

	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
			ctl.handleSignal(ctx, sid, c, data)
		}
	}
}

// handleSignal never answers a malformed frame; it is logged and dropped.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, c *WsSignalConn, data []byte) {
	cmd, err := protocol.DecodeCommand(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad json")
		return
	}

	switch cmd.Type {
	case "":
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("frame without type")
		return
	case protocol.TypePing:
		ctl.handlePing(c)
		return
	case protocol.TypeWhoAmI:
		ctl.handleWhoAmI(sid, c)
		return
	case protocol.TypeSubmitMessage:
		if !ctl.limiter.Allow(sid) {
			log.Info().Str("module", "signal").Str("sid", string(sid)).Str("action", "message.submit").Msg("rate limited")
			ctl.sendJSON(c, protocol.SubmitResult{
				Type:  protocol.TypeMessageSubmitted,
				Error: ErrRateLimited.Error(),
			})
			return
		}
	}

	if err := ctl.Orch.Post(ctx, orch.FromClient{SID: sid, Cmd: cmd}); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("type", cmd.Type).Msg("post command")
	}
}

func (ctl *SignalWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
