package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/protocol"
)

func (o *Orchestrator) submit(sid core.SessionID, name, text string) {
	m, err := o.queue.Submit(name, text)
	if err != nil {
		log.Info().Str("module", "orch").Str("action", "message.submit").Str("sid", string(sid)).Err(err).Msg("submission rejected")
		o.sendTo(sid, protocol.SubmitResult{Type: protocol.TypeMessageSubmitted, Success: false, Error: err.Error()})
		return
	}
	log.Info().Str("module", "orch").Str("action", "message.submit").Str("sid", string(sid)).Int64("message_id", m.ID).Msg("message queued")
	o.broadcast(protocol.MessageEvent{Type: protocol.TypeNewMessageInQueue, Message: m})
	o.sendTo(sid, protocol.SubmitResult{Type: protocol.TypeMessageSubmitted, Success: true})
}

func (o *Orchestrator) approve(id int64) {
	m, err := o.queue.Approve(id)
	if err != nil {
		log.Debug().Str("module", "orch").Int64("message_id", id).Err(err).Msg("approve ignored")
		return
	}
	log.Info().Str("module", "orch").Str("action", "message.approve").Int64("message_id", id).Msg("message approved")
	o.broadcast(protocol.MessageEvent{Type: protocol.TypeMessageApproved, Message: m})
}

func (o *Orchestrator) reject(id int64) {
	if _, err := o.queue.Reject(id); err != nil {
		log.Debug().Str("module", "orch").Int64("message_id", id).Err(err).Msg("reject ignored")
		return
	}
	log.Info().Str("module", "orch").Str("action", "message.reject").Int64("message_id", id).Msg("message rejected")
	o.broadcast(protocol.MessageRejectedEvent{Type: protocol.TypeMessageRejected, MessageID: id})
}

func (o *Orchestrator) editorMessage(text string) {
	m, err := o.queue.EditorMessage(text)
	if err != nil {
		log.Warn().Str("module", "orch").Str("action", "message.editor").Err(err).Msg("editor message dropped")
		return
	}
	log.Info().Str("module", "orch").Str("action", "message.editor").Int64("message_id", m.ID).Msg("editor message")
	o.broadcast(protocol.MessageEvent{Type: protocol.TypeEditorMessageReceived, Message: m})
}

func (o *Orchestrator) messagesData() protocol.MessagesData {
	queue, published := o.queue.Snapshot()
	return protocol.MessagesData{Type: protocol.TypeMessagesData, Queue: queue, Published: published}
}
