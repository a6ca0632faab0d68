package signal

import (
	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/protocol"
)

func (ctl *SignalWSController) handlePing(conn core.SignalConnection) {
	ctl.sendJSON(conn, protocol.Envelope{Type: protocol.TypePong})
}

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID, conn core.SignalConnection) {
	ctl.sendJSON(conn, protocol.SessionEvent{Type: protocol.TypeWhoAmI, SessionID: string(sid)})
}
