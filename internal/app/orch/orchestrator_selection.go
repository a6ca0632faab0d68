package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/app/onair"
	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/protocol"
)

func (o *Orchestrator) selectChannel(ch domain.ChannelID) {
	if ch == "" {
		log.Debug().Str("module", "orch").Msg("selectChannel without channelId")
		return
	}
	o.cancelCountdown()
	o.selection.Select(ch)
	log.Info().Str("module", "orch").Str("action", "onair.select").Str("channel", string(ch)).Msg("channel on air")
	o.broadcast(protocol.ChannelEvent{Type: protocol.TypeChannelSelected, ChannelID: ch})
}

func (o *Orchestrator) deselectChannel() {
	o.cancelCountdown()
	o.selection.Deselect()
	log.Info().Str("module", "orch").Str("action", "onair.deselect").Msg("nothing on air")
	o.broadcast(protocol.Envelope{Type: protocol.TypeChannelDeselected})
}

func (o *Orchestrator) selectMultipleChannels(chs []domain.ChannelID) {
	o.cancelCountdown()
	sel := o.selection.SelectMany(chs)
	if sel.Mode == domain.SelectionNone {
		log.Info().Str("module", "orch").Str("action", "onair.deselect").Msg("empty multi selection")
		o.broadcast(protocol.Envelope{Type: protocol.TypeChannelDeselected})
		return
	}
	log.Info().Str("module", "orch").Str("action", "onair.select_many").Int("count", len(sel.Channels)).Msg("channels on air")
	o.broadcast(protocol.ChannelsEvent{Type: protocol.TypeMultipleChannelsSelected, ChannelIDs: sel.Channels})
}

func (o *Orchestrator) startCountdown(target onair.Target, seconds int) {
	if target.IsZero() {
		log.Debug().Str("module", "orch").Msg("startCountdown without target")
		return
	}
	if seconds <= 0 {
		seconds = o.opts.DefaultCountdown
	}
	if seconds > o.opts.MaxCountdown {
		seconds = o.opts.MaxCountdown
	}
	o.cancelCountdown()
	s, _ := o.countdown.Start(target, seconds)
	log.Info().Str("module", "orch").Str("action", "countdown.start").Int("seconds", seconds).Msg("countdown started")
	o.broadcast(countdownEvent(protocol.TypeCountdownStart, s))
}

func (o *Orchestrator) cancelCountdown() {
	s, ok := o.countdown.Active()
	if !ok {
		return
	}
	o.countdown.Cancel()
	log.Info().Str("module", "orch").Str("action", "countdown.cancel").Int("remaining", s.Remaining).Msg("countdown cancelled")
	o.broadcast(countdownEvent(protocol.TypeCountdownCancelled, s))
}

// resyncCountdown lets a client correct the remaining seconds of the
// running countdown.
func (o *Orchestrator) resyncCountdown(seconds int) {
	if seconds > o.opts.MaxCountdown {
		seconds = o.opts.MaxCountdown
	}
	s, done, ok := o.countdown.Resync(seconds)
	if !ok {
		return
	}
	if done {
		o.applyTarget(s.Target)
		return
	}
	o.broadcast(countdownEvent(protocol.TypeCountdownUpdate, s))
}

func (o *Orchestrator) onTick(gen uint64) {
	s, done, ok := o.countdown.Tick(gen)
	if !ok {
		return
	}
	if done {
		log.Info().Str("module", "orch").Str("action", "countdown.complete").Msg("countdown complete")
		o.applyTarget(s.Target)
		return
	}
	o.broadcast(countdownEvent(protocol.TypeCountdownUpdate, s))
}

func (o *Orchestrator) applyTarget(t onair.Target) {
	if t.IsMulti() {
		o.selectMultipleChannels(t.Channels)
		return
	}
	o.selectChannel(t.Channel)
}

func countdownEvent(typ string, s onair.Session) protocol.CountdownEvent {
	return protocol.CountdownEvent{
		Type:       typ,
		ChannelID:  s.Target.Channel,
		ChannelIDs: s.Target.Channels,
		Seconds:    s.Remaining,
	}
}
