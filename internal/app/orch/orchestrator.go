// Package orch runs the live session. All shared state is owned by one
// goroutine (Run) that handles inbox messages and countdown ticks to
// completion, one at a time.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/OnAir/internal/app"
	"github.com/dkeye/OnAir/internal/app/moderation"
	"github.com/dkeye/OnAir/internal/app/onair"
	"github.com/dkeye/OnAir/internal/app/roster"
	"github.com/dkeye/OnAir/internal/core"
	"github.com/dkeye/OnAir/internal/domain"
	"github.com/dkeye/OnAir/internal/protocol"
)

var ErrStopped = errors.New("orchestrator stopped")

type Msg interface{ isOrchMsg() }

// Connect registers a connection and replays the steady state to it.
type Connect struct {
	SID    core.SessionID
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

func (Connect) isOrchMsg() {}

type Disconnect struct{ SID core.SessionID }

func (Disconnect) isOrchMsg() {}

type FromClient struct {
	SID core.SessionID
	Cmd protocol.Command
}

func (FromClient) isOrchMsg() {}

type GetState struct{ Reply chan View }

func (GetState) isOrchMsg() {}

type GetMessages struct{ Reply chan protocol.MessagesData }

func (GetMessages) isOrchMsg() {}

type countdownTick struct{ gen uint64 }

func (countdownTick) isOrchMsg() {}

// View is a read-only snapshot for the HTTP API.
type View struct {
	Selection    domain.Selection   `json:"selection"`
	Countdown    *CountdownView     `json:"countdown,omitempty"`
	Participants []domain.ChannelID `json:"participants"`
	Pairing      *domain.Pairing    `json:"pairing,omitempty"`
	Clients      int                `json:"clients"`
	Pending      int                `json:"pending"`
}

type CountdownView struct {
	Target           onair.Target `json:"target"`
	SecondsRemaining int          `json:"secondsRemaining"`
}

type Options struct {
	DefaultCountdown int
	MaxCountdown     int
	TickInterval     time.Duration
	InboxSize        int
	Clock            func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultCountdown <= 0 {
		o.DefaultCountdown = 5
	}
	if o.MaxCountdown < o.DefaultCountdown {
		o.MaxCountdown = 60
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 256
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type Orchestrator struct {
	Registry *app.Registry
	Policy   app.Policy

	opts  Options
	inbox chan Msg
	done  chan struct{}
	ctx   context.Context

	selection *onair.Machine
	countdown *onair.Countdown
	queue     *moderation.Queue
	roster    *roster.Roster
}

func New(reg *app.Registry, policy app.Policy, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	o := &Orchestrator{
		Registry:  reg,
		Policy:    policy,
		opts:      opts,
		inbox:     make(chan Msg, opts.InboxSize),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		selection: onair.NewMachine(),
		queue:     moderation.NewQueue().WithClock(opts.Clock),
		roster:    roster.New(),
	}
	o.countdown = onair.NewCountdown(o.startTicker)
	return o
}

// Run processes the inbox until ctx is done. It must be called once.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.ctx = ctx
	defer close(o.done)
	log.Info().Str("module", "orch").Msg("session loop started")
	for {
		select {
		case <-ctx.Done():
			o.countdown.Cancel()
			log.Info().Str("module", "orch").Msg("session loop stopped")
			return nil
		case m := <-o.inbox:
			o.handle(m)
		}
	}
}

// Post queues msg for the session loop.
func (o *Orchestrator) Post(ctx context.Context, msg Msg) error {
	select {
	case <-o.done:
		return ErrStopped
	default:
	}
	select {
	case o.inbox <- msg:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) State(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := o.Post(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-o.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (o *Orchestrator) Messages(ctx context.Context) (protocol.MessagesData, error) {
	reply := make(chan protocol.MessagesData, 1)
	if err := o.Post(ctx, GetMessages{Reply: reply}); err != nil {
		return protocol.MessagesData{}, err
	}
	select {
	case d := <-reply:
		return d, nil
	case <-o.done:
		return protocol.MessagesData{}, ErrStopped
	case <-ctx.Done():
		return protocol.MessagesData{}, ctx.Err()
	}
}

func (o *Orchestrator) handle(m Msg) {
	switch msg := m.(type) {
	case Connect:
		o.Registry.Register(msg.SID, msg.Conn, msg.Cancel)
		o.replay(msg.SID)
	case Disconnect:
		o.Registry.Unregister(msg.SID)
	case FromClient:
		o.dispatch(msg.SID, msg.Cmd)
	case countdownTick:
		o.onTick(msg.gen)
	case GetState:
		msg.Reply <- o.view()
	case GetMessages:
		msg.Reply <- o.messagesData()
	}
}

func (o *Orchestrator) dispatch(sid core.SessionID, cmd protocol.Command) {
	switch cmd.Type {
	case protocol.TypeSelectChannel:
		o.selectChannel(cmd.ChannelID)
	case protocol.TypeDeselectChannel:
		o.deselectChannel()
	case protocol.TypeSelectMultipleChannels:
		o.selectMultipleChannels(cmd.ChannelIDs)
	case protocol.TypeStartCountdown:
		seconds := 0
		if cmd.Seconds != nil {
			seconds = *cmd.Seconds
		}
		o.startCountdown(onair.NewTarget(cmd.ChannelID, cmd.ChannelIDs), seconds)
	case protocol.TypeCountdownUpdate:
		if cmd.Seconds == nil {
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("countdownUpdate without seconds")
			return
		}
		o.resyncCountdown(*cmd.Seconds)
	case protocol.TypeCancelCountdown:
		o.cancelCountdown()
	case protocol.TypeParticipantJoin:
		o.join(cmd.ChannelID)
	case protocol.TypeParticipantLeave:
		o.leave(cmd.ChannelID)
	case protocol.TypePairParticipants:
		o.pair(cmd.ParticipantA, cmd.ParticipantB)
	case protocol.TypeUnpairParticipants:
		o.unpair()
	case protocol.TypeSubmitMessage:
		o.submit(sid, cmd.Name, cmd.Message)
	case protocol.TypeApproveMessage:
		o.approve(cmd.MessageID)
	case protocol.TypeRejectMessage:
		o.reject(cmd.MessageID)
	case protocol.TypeEditorMessage:
		o.editorMessage(cmd.Message)
	case protocol.TypeGetMessages:
		o.sendTo(sid, o.messagesData())
	default:
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("type", cmd.Type).Msg("unknown message type")
	}
}

// replay sends the steady state to a fresh connection. A running countdown
// is not replayed.
func (o *Orchestrator) replay(sid core.SessionID) {
	switch sel := o.selection.Current(); sel.Mode {
	case domain.SelectionSingle:
		o.sendTo(sid, protocol.ChannelEvent{Type: protocol.TypeChannelSelected, ChannelID: sel.Channel})
	case domain.SelectionMulti:
		o.sendTo(sid, protocol.ChannelsEvent{Type: protocol.TypeMultipleChannelsSelected, ChannelIDs: sel.Channels})
	}
	if p, ok := o.roster.Pairing(); ok {
		o.sendTo(sid, protocol.PairingEvent{
			Type:         protocol.TypeParticipantPaired,
			ParticipantA: p.ParticipantA,
			ParticipantB: p.ParticipantB,
		})
	}
}

func (o *Orchestrator) view() View {
	v := View{
		Selection:    o.selection.Current(),
		Participants: o.roster.Channels(),
		Clients:      o.Registry.Count(),
		Pending:      o.queue.Len(),
	}
	if v.Participants == nil {
		v.Participants = []domain.ChannelID{}
	}
	if s, ok := o.countdown.Active(); ok {
		v.Countdown = &CountdownView{Target: s.Target, SecondsRemaining: s.Remaining}
	}
	if p, ok := o.roster.Pairing(); ok {
		v.Pairing = &p
	}
	return v
}

func (o *Orchestrator) broadcast(v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode broadcast")
		return
	}
	res := o.Registry.Broadcast(frame)
	for _, sid := range res.Dropped {
		action := app.DropFrame
		if o.Policy != nil {
			action = o.Policy.OnBackPressure(sid)
		}
		switch action {
		case app.KickMember:
			log.Warn().Str("module", "orch").Str("sid", string(sid)).Msg("kicking slow client")
			o.Registry.Cancel(sid)
			o.Registry.Unregister(sid)
		case app.DropFrame, app.NoAction:
			log.Debug().Str("module", "orch").Str("sid", string(sid)).Msg("frame dropped")
		}
	}
}

func (o *Orchestrator) sendTo(sid core.SessionID, v any) {
	frame, err := protocol.Encode(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("encode reply")
		return
	}
	if err := o.Registry.Send(sid, frame); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("sid", string(sid)).Msg("reply dropped")
	}
}

// startTicker is the countdown TickSource: it posts a tick stamped with gen
// every TickInterval until stopped.
func (o *Orchestrator) startTicker(gen uint64) func() {
	stop := make(chan struct{})
	ctx := o.ctx
	go func() {
		t := time.NewTicker(o.opts.TickInterval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case o.inbox <- countdownTick{gen: gen}:
				case <-stop:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	var stopped bool
	return func() {
		if !stopped {
			stopped = true
			close(stop)
		}
	}
}
