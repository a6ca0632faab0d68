package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/protocol"
)

func (o *Orchestrator) join(ch domain.ChannelID) {
	if ch == "" {
		return
	}
	if o.roster.Join(ch) {
		log.Info().Str("module", "orch").Str("action", "participant.join").Str("channel", string(ch)).Msg("participant live")
	}
	o.broadcast(protocol.ChannelEvent{Type: protocol.TypeParticipantJoined, ChannelID: ch})
}

// leave also dissolves a pairing involving ch and takes ch off air when it
// is the single selection. A multi selection is left as is.
func (o *Orchestrator) leave(ch domain.ChannelID) {
	if ch == "" {
		return
	}
	_, dropped := o.roster.Leave(ch)
	log.Info().Str("module", "orch").Str("action", "participant.leave").Str("channel", string(ch)).Msg("participant left")
	o.broadcast(protocol.ChannelEvent{Type: protocol.TypeParticipantLeft, ChannelID: ch})
	if dropped != nil {
		o.broadcast(protocol.PairingEvent{
			Type:         protocol.TypeParticipantUnpaired,
			ParticipantA: dropped.ParticipantA,
			ParticipantB: dropped.ParticipantB,
		})
	}
	if o.selection.IsSelected(ch) {
		o.deselectChannel()
	}
}

func (o *Orchestrator) pair(a, b domain.ChannelID) {
	p, err := o.roster.Pair(a, b)
	if err != nil {
		log.Debug().Str("module", "orch").Str("a", string(a)).Str("b", string(b)).Err(err).Msg("pair ignored")
		return
	}
	log.Info().Str("module", "orch").Str("action", "participant.pair").Str("a", string(a)).Str("b", string(b)).Msg("participants paired")
	o.broadcast(protocol.PairingEvent{Type: protocol.TypeParticipantPaired, ParticipantA: p.ParticipantA, ParticipantB: p.ParticipantB})
}

func (o *Orchestrator) unpair() {
	p, ok := o.roster.Unpair()
	if !ok {
		return
	}
	log.Info().Str("module", "orch").Str("action", "participant.unpair").Msg("participants unpaired")
	o.broadcast(protocol.PairingEvent{Type: protocol.TypeParticipantUnpaired, ParticipantA: p.ParticipantA, ParticipantB: p.ParticipantB})
}
